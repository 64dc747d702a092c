package report

// Package report assembles the full analysis of a dataset: latest vitals with
// deltas, a trailing weekly summary, the most recent anomalies and a feature
// correlation matrix, alongside the detection outcome, score and insights.

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/insight"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/ml"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/scoring"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

// ReferenceTemperature is the baseline body temperature in °F.
const ReferenceTemperature = 98.6

// RecentAnomalyLimit caps RecentAnomalies.
const RecentAnomalyLimit = 5

// WeekDays is the span of the weekly summary.
const WeekDays = 7

// CorrelationFeatures lists the columns of the correlation matrix.
var CorrelationFeatures = []models.Feature{
	models.FeatureHeartRate,
	models.FeatureBloodOxygen,
	models.FeatureSteps,
	models.FeatureSleepQuality,
	models.FeatureStressLevel,
}

// Vitals is the latest reading of the headline metrics with their deltas.
type Vitals struct {
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	HeartRate        int       `json:"heart_rate" yaml:"heart_rate"`
	HeartRateDelta   float64   `json:"heart_rate_delta" yaml:"heart_rate_delta"`
	BloodOxygen      float64   `json:"blood_oxygen" yaml:"blood_oxygen"`
	BloodOxygenDelta float64   `json:"blood_oxygen_delta" yaml:"blood_oxygen_delta"`
	Steps            int       `json:"steps" yaml:"steps"`
	StepsDelta       float64   `json:"steps_delta" yaml:"steps_delta"`
	Temperature      float64   `json:"body_temperature" yaml:"body_temperature"`
	TemperatureDelta float64   `json:"body_temperature_delta" yaml:"body_temperature_delta"`
}

// WeeklySummary aggregates the trailing seven days.
type WeeklySummary struct {
	Samples          int     `json:"samples" yaml:"samples"`
	AvgHeartRate     float64 `json:"avg_heart_rate" yaml:"avg_heart_rate"`
	AvgSleepQuality  float64 `json:"avg_sleep_quality" yaml:"avg_sleep_quality"`
	AvgBloodOxygen   float64 `json:"avg_blood_oxygen" yaml:"avg_blood_oxygen"`
	AvgStressLevel   float64 `json:"avg_stress_level" yaml:"avg_stress_level"`
	TotalSteps       int     `json:"total_steps" yaml:"total_steps"`
	AnomalousSamples int     `json:"anomalous_samples" yaml:"anomalous_samples"`
}

// AnomalyEntry is one flagged sample.
type AnomalyEntry struct {
	Index       int       `json:"index" yaml:"index"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	HeartRate   int       `json:"heart_rate" yaml:"heart_rate"`
	BloodOxygen float64   `json:"blood_oxygen" yaml:"blood_oxygen"`
	Score       float64   `json:"score,omitempty" yaml:"score,omitempty"`
}

// Correlations is a symmetric Pearson matrix over Features.
type Correlations struct {
	Features []models.Feature `json:"features" yaml:"features"`
	Matrix   [][]float64      `json:"matrix" yaml:"matrix"`
}

// Get returns the coefficient between two features.
func (c Correlations) Get(a, b models.Feature) (float64, bool) {
	ia, ib := -1, -1
	for i, f := range c.Features {
		if f == a {
			ia = i
		}
		if f == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return 0, false
	}
	return c.Matrix[ia][ib], true
}

// DetectionSummary is the detection outcome without per-sample scores.
type DetectionSummary struct {
	Flagged           int      `json:"flagged" yaml:"flagged"`
	Threshold         float64  `json:"threshold" yaml:"threshold"`
	Contamination     float64  `json:"contamination" yaml:"contamination"`
	Insufficient      bool     `json:"insufficient" yaml:"insufficient"`
	DegenerateColumns []string `json:"degenerate_columns,omitempty" yaml:"degenerate_columns,omitempty"`
}

// Report is the complete analysis of one dataset.
type Report struct {
	GeneratedAt     time.Time            `json:"generated_at" yaml:"generated_at"`
	Samples         int                  `json:"samples" yaml:"samples"`
	Days            int                  `json:"days" yaml:"days"`
	SamplesPerDay   int                  `json:"samples_per_day" yaml:"samples_per_day"`
	Seed            int64                `json:"seed" yaml:"seed"`
	Detection       DetectionSummary     `json:"detection" yaml:"detection"`
	Score           *scoring.HealthScore `json:"score" yaml:"score"`
	Insights        []insight.Insight    `json:"insights" yaml:"insights"`
	Vitals          Vitals               `json:"vitals" yaml:"vitals"`
	Weekly          WeeklySummary        `json:"weekly" yaml:"weekly"`
	RecentAnomalies []AnomalyEntry       `json:"recent_anomalies" yaml:"recent_anomalies"`
	Correlations    Correlations         `json:"correlations" yaml:"correlations"`
}

// Build assembles a report from already computed results. det may be nil when
// detection has not run; anomaly sections then reflect the dataset flags as is.
func Build(ds *models.Dataset, det *ml.Detection, score *scoring.HealthScore, insights []insight.Insight, now time.Time) (*Report, error) {
	latest, err := ds.Latest()
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt:     now,
		Samples:         ds.Len(),
		Days:            ds.Days,
		SamplesPerDay:   ds.SamplesPerDay,
		Seed:            ds.Seed,
		Score:           score,
		Insights:        insights,
		Vitals:          LatestVitals(latest, ds.Means()),
		Weekly:          Weekly(ds),
		RecentAnomalies: RecentAnomalies(ds, det, RecentAnomalyLimit),
		Correlations:    Correlate(ds, CorrelationFeatures),
	}
	if det != nil {
		r.Detection = DetectionSummary{
			Flagged:           det.FlaggedCount(),
			Threshold:         det.Threshold,
			Contamination:     det.Contamination,
			Insufficient:      det.Insufficient,
			DegenerateColumns: det.DegenerateColumns,
		}
	} else {
		r.Detection.Flagged = len(ds.Anomalies())
	}
	return r, nil
}

// LatestVitals computes the headline metrics of latest against the dataset means.
func LatestVitals(latest models.Sample, mean models.Means) Vitals {
	return Vitals{
		Timestamp:        latest.Timestamp,
		HeartRate:        latest.HeartRate,
		HeartRateDelta:   round1(float64(latest.HeartRate) - mean.HeartRate),
		BloodOxygen:      latest.BloodOxygen,
		BloodOxygenDelta: round1(latest.BloodOxygen - mean.BloodOxygen),
		Steps:            latest.Steps,
		StepsDelta:       math.Round(float64(latest.Steps) - mean.Steps),
		Temperature:      latest.BodyTemperature,
		TemperatureDelta: round1(latest.BodyTemperature - ReferenceTemperature),
	}
}

// Weekly summarizes the last seven days of samples. Datasets without a known
// sampling rate, or shorter than a week, are summarized in full.
func Weekly(ds *models.Dataset) WeeklySummary {
	n := ds.Len()
	if ds.SamplesPerDay > 0 {
		n = WeekDays * ds.SamplesPerDay
	}
	window := ds.Tail(n)

	var w WeeklySummary
	if len(window) == 0 {
		return w
	}
	m := models.MeansOf(window)
	w.Samples = len(window)
	w.AvgHeartRate = round1(m.HeartRate)
	w.AvgSleepQuality = round1(m.SleepQuality)
	w.AvgBloodOxygen = round1(m.BloodOxygen)
	w.AvgStressLevel = round1(m.StressLevel)
	for _, s := range window {
		w.TotalSteps += s.Steps
		if s.Anomaly {
			w.AnomalousSamples++
		}
	}
	return w
}

// RecentAnomalies returns up to limit flagged samples, most recent last.
func RecentAnomalies(ds *models.Dataset, det *ml.Detection, limit int) []AnomalyEntry {
	idx := ds.Anomalies()
	if len(idx) > limit {
		idx = idx[len(idx)-limit:]
	}
	out := make([]AnomalyEntry, 0, len(idx))
	for _, i := range idx {
		s := ds.Samples[i]
		e := AnomalyEntry{Index: i, Timestamp: s.Timestamp, HeartRate: s.HeartRate, BloodOxygen: s.BloodOxygen}
		if det != nil && i < len(det.Scores) {
			e.Score = det.Scores[i]
		}
		out = append(out, e)
	}
	return out
}

// Correlate computes the Pearson correlation matrix of features. A pair
// involving a zero-variance column reports 0; the diagonal is always 1.
func Correlate(ds *models.Dataset, features []models.Feature) Correlations {
	cols := make([][]float64, len(features))
	for j, f := range features {
		cols[j] = make([]float64, ds.Len())
		for i, s := range ds.Samples {
			cols[j][i] = s.Value(f)
		}
	}

	matrix := make([][]float64, len(features))
	for a := range features {
		matrix[a] = make([]float64, len(features))
		for b := range features {
			if a == b {
				matrix[a][b] = 1
				continue
			}
			if b < a {
				matrix[a][b] = matrix[b][a]
				continue
			}
			matrix[a][b] = pearson(cols[a], cols[b])
		}
	}
	return Correlations{Features: append([]models.Feature(nil), features...), Matrix: matrix}
}

// pearson returns 0 when either column is constant, where the coefficient is undefined.
func pearson(x, y []float64) float64 {
	if len(x) < 2 || constant(x) || constant(y) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

func constant(col []float64) bool {
	for _, v := range col[1:] {
		if v != col[0] {
			return false
		}
	}
	return true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
