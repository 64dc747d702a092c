package insight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

func baseline(n int) []models.Sample {
	t0 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Sample, n)
	for i := range out {
		out[i] = models.Sample{
			Timestamp:       t0.Add(time.Duration(i) * time.Hour),
			HeartRate:       70,
			BloodOxygen:     98,
			Steps:           500,
			SleepQuality:    7,
			StressLevel:     5,
			BodyTemperature: 98.6,
		}
	}
	return out
}

func withLatest(mutate func(*models.Sample)) *models.Dataset {
	samples := baseline(20)
	mutate(&samples[len(samples)-1])
	return &models.Dataset{Samples: samples}
}

func byCategory(insights []Insight) map[Category]Insight {
	m := make(map[Category]Insight, len(insights))
	for _, in := range insights {
		m[in.Category] = in
	}
	return m
}

func TestEvaluateNeutralLatest(t *testing.T) {
	got, err := Evaluate(withLatest(func(*models.Sample) {}))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, Insight{Category: CategoryOxygen, Kind: KindInfo, Message: "Blood oxygen levels are healthy."}, got[0])
}

func TestEvaluateElevatedHeartRate(t *testing.T) {
	// mean = (19*70 + 95)/20 = 71.25, so 95 > 91.25
	got, err := Evaluate(withLatest(func(s *models.Sample) { s.HeartRate = 95 }))
	require.NoError(t, err)
	in, ok := byCategory(got)[CategoryHeart]
	require.True(t, ok)
	assert.Equal(t, KindWarning, in.Kind)
	assert.Contains(t, in.Message, "elevated")
}

func TestEvaluateHeartRateMeanIncludesLatest(t *testing.T) {
	// 90 is exactly mean(70)+20 without the latest, but the mean including it is 71, so silent.
	got, err := Evaluate(withLatest(func(s *models.Sample) { s.HeartRate = 90 }))
	require.NoError(t, err)
	_, ok := byCategory(got)[CategoryHeart]
	assert.False(t, ok)
}

func TestEvaluateRestingHeartRate(t *testing.T) {
	got, err := Evaluate(withLatest(func(s *models.Sample) { s.HeartRate = 50 }))
	require.NoError(t, err)
	assert.Equal(t, KindPraise, byCategory(got)[CategoryHeart].Kind)
}

func TestEvaluateLowOxygen(t *testing.T) {
	got, err := Evaluate(withLatest(func(s *models.Sample) { s.BloodOxygen = 94.9 }))
	require.NoError(t, err)
	in := byCategory(got)[CategoryOxygen]
	assert.Equal(t, KindWarning, in.Kind)
	assert.Contains(t, in.Message, "healthcare provider")
}

func TestEvaluateActivity(t *testing.T) {
	low, err := Evaluate(withLatest(func(s *models.Sample) { s.Steps = 100 }))
	require.NoError(t, err)
	assert.Equal(t, KindNudge, byCategory(low)[CategoryActivity].Kind)

	high, err := Evaluate(withLatest(func(s *models.Sample) { s.Steps = 2000 }))
	require.NoError(t, err)
	assert.Equal(t, KindPraise, byCategory(high)[CategoryActivity].Kind)
}

func TestEvaluateSleepAndStress(t *testing.T) {
	got, err := Evaluate(withLatest(func(s *models.Sample) {
		s.SleepQuality = 5.9
		s.StressLevel = 7.1
	}))
	require.NoError(t, err)
	m := byCategory(got)
	assert.Equal(t, KindNudge, m[CategorySleep].Kind)
	assert.Equal(t, KindWarning, m[CategoryStress].Kind)

	got, err = Evaluate(withLatest(func(s *models.Sample) {
		s.SleepQuality = 8.1
		s.StressLevel = 3.9
	}))
	require.NoError(t, err)
	m = byCategory(got)
	assert.Equal(t, "Excellent sleep quality! Keep it up!", m[CategorySleep].Message)
	assert.Equal(t, KindPraise, m[CategoryStress].Kind)
}

func TestEvaluateBoundariesAreStrict(t *testing.T) {
	got, err := Evaluate(withLatest(func(s *models.Sample) {
		s.BloodOxygen = 95
		s.SleepQuality = 8
		s.StressLevel = 7
	}))
	require.NoError(t, err)
	m := byCategory(got)
	assert.Equal(t, KindInfo, m[CategoryOxygen].Kind)
	_, sleep := m[CategorySleep]
	_, stress := m[CategoryStress]
	assert.False(t, sleep)
	assert.False(t, stress)
}

func TestEvaluateOrderAndUniqueness(t *testing.T) {
	got, err := Evaluate(withLatest(func(s *models.Sample) {
		s.HeartRate = 120
		s.BloodOxygen = 88
		s.Steps = 0
		s.SleepQuality = 2
		s.StressLevel = 9
	}))
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, c := range Categories {
		assert.Equal(t, c, got[i].Category)
	}
	assert.Len(t, Messages(got), 5)
	assert.Equal(t, got[1].Message, Messages(got)[1])
}

func TestEvaluateEmptyDataset(t *testing.T) {
	_, err := Evaluate(&models.Dataset{})
	assert.ErrorIs(t, err, models.ErrEmptyDataset)
}
