package report

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/insight"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/ml"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/scoring"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/signal"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

var t0 = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func linearDataset(n, spd int) *models.Dataset {
	ds := &models.Dataset{SamplesPerDay: spd, Days: n / spd}
	for i := 0; i < n; i++ {
		ds.Samples = append(ds.Samples, models.Sample{
			Timestamp:       t0.Add(time.Duration(i) * time.Hour),
			HeartRate:       60 + i,
			BloodOxygen:     98,
			Steps:           100 * i,
			SleepQuality:    float64(i % 10),
			StressLevel:     10 - float64(i%10),
			BodyTemperature: 98.6,
		})
	}
	return ds
}

func TestLatestVitals(t *testing.T) {
	ds := linearDataset(5, 1)
	latest, err := ds.Latest()
	require.NoError(t, err)
	v := LatestVitals(latest, ds.Means())

	assert.Equal(t, 64, v.HeartRate)
	assert.Equal(t, 2.0, v.HeartRateDelta)
	assert.Equal(t, 0.0, v.BloodOxygenDelta)
	assert.Equal(t, 200.0, v.StepsDelta)
	assert.Equal(t, 0.0, v.TemperatureDelta)
}

func TestWeeklyUsesTrailingWindow(t *testing.T) {
	ds := linearDataset(20, 2)
	ds.Samples[19].Anomaly = true
	ds.Samples[0].Anomaly = true

	w := Weekly(ds)
	assert.Equal(t, 14, w.Samples)
	// heart rates 66..79
	assert.Equal(t, 72.5, w.AvgHeartRate)
	assert.Equal(t, 1, w.AnomalousSamples)

	total := 0
	for i := 6; i < 20; i++ {
		total += 100 * i
	}
	assert.Equal(t, total, w.TotalSteps)
}

func TestWeeklyShortDataset(t *testing.T) {
	ds := linearDataset(3, 24)
	assert.Equal(t, 3, Weekly(ds).Samples)
}

func TestRecentAnomaliesKeepsLastFive(t *testing.T) {
	ds := linearDataset(30, 24)
	for _, i := range []int{1, 3, 5, 7, 9, 11, 13} {
		ds.Samples[i].Anomaly = true
	}
	got := RecentAnomalies(ds, nil, RecentAnomalyLimit)
	require.Len(t, got, 5)
	assert.Equal(t, 5, got[0].Index)
	assert.Equal(t, 13, got[4].Index)
	assert.Equal(t, 73, got[4].HeartRate)
}

func TestCorrelate(t *testing.T) {
	ds := linearDataset(10, 1)
	c := Correlate(ds, CorrelationFeatures)

	hrSteps, ok := c.Get(models.FeatureHeartRate, models.FeatureSteps)
	require.True(t, ok)
	assert.InDelta(t, 1.0, hrSteps, 1e-12)

	sleepStress, _ := c.Get(models.FeatureSleepQuality, models.FeatureStressLevel)
	assert.InDelta(t, -1.0, sleepStress, 1e-12)

	// constant oxygen column
	hrOxygen, _ := c.Get(models.FeatureHeartRate, models.FeatureBloodOxygen)
	assert.Equal(t, 0.0, hrOxygen)

	for i := range c.Matrix {
		assert.Equal(t, 1.0, c.Matrix[i][i])
		for j := range c.Matrix {
			assert.Equal(t, c.Matrix[i][j], c.Matrix[j][i])
		}
	}

	_, ok = c.Get(models.FeatureBodyTemperature, models.FeatureSteps)
	assert.False(t, ok)
}

func TestBuildFullReport(t *testing.T) {
	opts := signal.DefaultOptions(14, 24, 42)
	opts.End = t0
	ds, err := signal.NewGenerator().Generate(opts)
	require.NoError(t, err)

	det, err := ml.NewDetector(ml.DefaultDetectorOptions())
	require.NoError(t, err)
	detection, err := det.Detect(ds)
	require.NoError(t, err)
	score, err := scoring.Score(ds)
	require.NoError(t, err)
	insights, err := insight.Evaluate(ds)
	require.NoError(t, err)

	r, err := Build(ds, detection, score, insights, t0)
	require.NoError(t, err)

	assert.Equal(t, 336, r.Samples)
	assert.Equal(t, detection.FlaggedCount(), r.Detection.Flagged)
	assert.Equal(t, 168, r.Weekly.Samples)
	assert.LessOrEqual(t, len(r.RecentAnomalies), RecentAnomalyLimit)
	for _, e := range r.RecentAnomalies {
		assert.True(t, ds.Samples[e.Index].Anomaly)
		assert.Greater(t, e.Score, detection.Threshold)
	}
	assert.Len(t, r.Correlations.Matrix, len(CorrelationFeatures))

	stress, _ := r.Correlations.Get(models.FeatureSleepQuality, models.FeatureStressLevel)
	assert.Less(t, stress, 0.0, "stress is derived from 10 - sleep")

	_, err = json.Marshal(r)
	assert.NoError(t, err)
}

func TestBuildEmptyDataset(t *testing.T) {
	_, err := Build(&models.Dataset{}, nil, nil, nil, t0)
	assert.ErrorIs(t, err, models.ErrEmptyDataset)
}

func TestPearson(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 5, 4, 5}
	assert.InDelta(t, 6/math.Sqrt(60), pearson(x, y), 1e-12)
	assert.InDelta(t, pearson(x, y), pearson(y, x), 1e-15)

	assert.Equal(t, 0.0, pearson(x, []float64{98.6, 98.6, 98.6, 98.6, 98.6}))
	assert.Equal(t, 0.0, pearson([]float64{1}, []float64{2}))
}
