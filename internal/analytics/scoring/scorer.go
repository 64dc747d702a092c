package scoring

// Package scoring computes a composite 0-100 health score for the most recent
// sample of a dataset.
//
// Six sub-scores are computed from the latest sample, each clamped to
// [0,100], then combined with fixed weights:
//
//	heart rate    0.20  100 - |hr - 70| * 2
//	blood oxygen  0.20  spo2 * 1.02
//	activity      0.15  steps / 10
//	sleep         0.20  sleep * 10
//	stress        0.15  (10 - stress) * 10
//	temperature   0.10  100 - |temp - 98.6| * 10
//
// The weighted sum is rounded to one decimal and mapped to a tier.

import (
	"math"

	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

// Tier is the qualitative band of an overall score.
type Tier string

const (
	TierExcellent      Tier = "Excellent"
	TierGood           Tier = "Good"
	TierNeedsAttention Tier = "Needs Attention"
)

// Tier boundaries (inclusive lower bounds).
const (
	ExcellentThreshold = 80.0
	GoodThreshold      = 60.0
)

// Metric names a scored component.
type Metric string

const (
	MetricHeart       Metric = "heart_rate"
	MetricOxygen      Metric = "blood_oxygen"
	MetricActivity    Metric = "activity"
	MetricSleep       Metric = "sleep"
	MetricStress      Metric = "stress"
	MetricTemperature Metric = "temperature"
)

// Weights holds the fixed component weights, in component order. They sum to 1.
var Weights = []struct {
	Metric Metric
	Weight float64
}{
	{MetricHeart, 0.20},
	{MetricOxygen, 0.20},
	{MetricActivity, 0.15},
	{MetricSleep, 0.20},
	{MetricStress, 0.15},
	{MetricTemperature, 0.10},
}

// Component is one weighted sub-score.
type Component struct {
	Metric Metric  `json:"metric" yaml:"metric"`
	Value  float64 `json:"value" yaml:"value"`
	Score  float64 `json:"score" yaml:"score"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// HealthScore is the composite score of the latest sample.
type HealthScore struct {
	Overall    float64     `json:"overall" yaml:"overall"`
	Tier       Tier        `json:"tier" yaml:"tier"`
	Components []Component `json:"components" yaml:"components"`
}

// Score computes the health score of the dataset's latest sample.
func Score(ds *models.Dataset) (*HealthScore, error) {
	latest, err := ds.Latest()
	if err != nil {
		return nil, err
	}
	return ScoreSample(latest), nil
}

// ScoreSample computes the health score of a single sample.
func ScoreSample(s models.Sample) *HealthScore {
	raw := map[Metric]struct{ value, score float64 }{
		MetricHeart:       {float64(s.HeartRate), 100 - math.Abs(float64(s.HeartRate)-70)*2},
		MetricOxygen:      {s.BloodOxygen, s.BloodOxygen * 1.02},
		MetricActivity:    {float64(s.Steps), float64(s.Steps) / 10},
		MetricSleep:       {s.SleepQuality, s.SleepQuality * 10},
		MetricStress:      {s.StressLevel, (10 - s.StressLevel) * 10},
		MetricTemperature: {s.BodyTemperature, 100 - math.Abs(s.BodyTemperature-98.6)*10},
	}

	hs := &HealthScore{Components: make([]Component, 0, len(Weights))}
	var total float64
	for _, w := range Weights {
		r := raw[w.Metric]
		sub := clamp(r.score)
		total += sub * w.Weight
		hs.Components = append(hs.Components, Component{
			Metric: w.Metric,
			Value:  r.value,
			Score:  sub,
			Weight: w.Weight,
		})
	}

	hs.Overall = clamp(math.Round(total*10) / 10)
	hs.Tier = TierFor(hs.Overall)
	return hs
}

// TierFor maps an overall score to its tier.
func TierFor(overall float64) Tier {
	switch {
	case overall >= ExcellentThreshold:
		return TierExcellent
	case overall >= GoodThreshold:
		return TierGood
	default:
		return TierNeedsAttention
	}
}

// Component returns the named component, if present.
func (h *HealthScore) Component(m Metric) (Component, bool) {
	for _, c := range h.Components {
		if c.Metric == m {
			return c, true
		}
	}
	return Component{}, false
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
