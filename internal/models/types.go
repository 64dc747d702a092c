package models

// Package models defines the core data types shared by the analytics pipeline.
//
// A Dataset is an ordered series of Samples for one subject. The generator
// creates it; the detector is the only component that writes to it, and only
// the Anomaly field of each Sample. Scorer, insight engine and report builder
// read it without mutation.

import (
	"fmt"
	"math"
	"time"
)

// Feature identifies one numeric column of a Sample.
type Feature string

const (
	FeatureHeartRate       Feature = "heart_rate"
	FeatureBloodOxygen     Feature = "blood_oxygen"
	FeatureSteps           Feature = "steps"
	FeatureSleepQuality    Feature = "sleep_quality"
	FeatureStressLevel     Feature = "stress_level"
	FeatureBodyTemperature Feature = "body_temperature"
)

// Features lists the feature columns in matrix order.
var Features = []Feature{
	FeatureHeartRate,
	FeatureBloodOxygen,
	FeatureSteps,
	FeatureSleepQuality,
	FeatureStressLevel,
	FeatureBodyTemperature,
}

// Range is an inclusive domain bound.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

var bounds = map[Feature]Range{
	FeatureHeartRate:       {Min: 50, Max: 120},
	FeatureBloodOxygen:     {Min: 85, Max: 100},
	FeatureSteps:           {Min: 0, Max: math.Inf(1)},
	FeatureSleepQuality:    {Min: 0, Max: 10},
	FeatureStressLevel:     {Min: 0, Max: 10},
	FeatureBodyTemperature: {Min: 96, Max: 102},
}

// Bounds returns the domain of a feature. Steps has no upper bound.
func Bounds(f Feature) Range {
	return bounds[f]
}

// Sample is a single timestamped observation.
type Sample struct {
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
	HeartRate       int       `json:"heart_rate" yaml:"heart_rate"`
	BloodOxygen     float64   `json:"blood_oxygen" yaml:"blood_oxygen"`
	Steps           int       `json:"steps" yaml:"steps"`
	SleepQuality    float64   `json:"sleep_quality" yaml:"sleep_quality"`
	StressLevel     float64   `json:"stress_level" yaml:"stress_level"`
	BodyTemperature float64   `json:"body_temperature" yaml:"body_temperature"`

	// Anomaly is written by the detector only.
	Anomaly bool `json:"anomaly" yaml:"anomaly"`
}

// Value returns the numeric value of one feature.
func (s Sample) Value(f Feature) float64 {
	switch f {
	case FeatureHeartRate:
		return float64(s.HeartRate)
	case FeatureBloodOxygen:
		return s.BloodOxygen
	case FeatureSteps:
		return float64(s.Steps)
	case FeatureSleepQuality:
		return s.SleepQuality
	case FeatureStressLevel:
		return s.StressLevel
	case FeatureBodyTemperature:
		return s.BodyTemperature
	}
	return math.NaN()
}

// Vector returns the six features in matrix order.
func (s Sample) Vector() []float64 {
	v := make([]float64, len(Features))
	for i, f := range Features {
		v[i] = s.Value(f)
	}
	return v
}

// Means holds dataset-wide column means.
type Means struct {
	HeartRate       float64 `json:"heart_rate" yaml:"heart_rate"`
	BloodOxygen     float64 `json:"blood_oxygen" yaml:"blood_oxygen"`
	Steps           float64 `json:"steps" yaml:"steps"`
	SleepQuality    float64 `json:"sleep_quality" yaml:"sleep_quality"`
	StressLevel     float64 `json:"stress_level" yaml:"stress_level"`
	BodyTemperature float64 `json:"body_temperature" yaml:"body_temperature"`
}

// Dataset is an ordered series of samples with strictly increasing timestamps.
type Dataset struct {
	Samples       []Sample `json:"samples" yaml:"samples"`
	Days          int      `json:"days" yaml:"days"`
	SamplesPerDay int      `json:"samples_per_day" yaml:"samples_per_day"`
	Seed          int64    `json:"seed" yaml:"seed"`

	// Outliers holds the sorted indices of injected outliers (ground truth).
	Outliers []int `json:"outliers,omitempty" yaml:"outliers,omitempty"`
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Samples)
}

// Latest returns the most recent sample.
func (d *Dataset) Latest() (Sample, error) {
	if d.Len() == 0 {
		return Sample{}, ErrEmptyDataset
	}
	return d.Samples[len(d.Samples)-1], nil
}

// Matrix extracts one row per sample, six columns in Features order.
func (d *Dataset) Matrix() [][]float64 {
	m := make([][]float64, d.Len())
	for i, s := range d.Samples {
		m[i] = s.Vector()
	}
	return m
}

// Means computes the column means over every sample, latest included.
func (d *Dataset) Means() Means {
	return MeansOf(d.Samples)
}

// MeansOf computes column means over an arbitrary slice of samples.
func MeansOf(samples []Sample) Means {
	var m Means
	if len(samples) == 0 {
		return m
	}
	for _, s := range samples {
		m.HeartRate += float64(s.HeartRate)
		m.BloodOxygen += s.BloodOxygen
		m.Steps += float64(s.Steps)
		m.SleepQuality += s.SleepQuality
		m.StressLevel += s.StressLevel
		m.BodyTemperature += s.BodyTemperature
	}
	n := float64(len(samples))
	m.HeartRate /= n
	m.BloodOxygen /= n
	m.Steps /= n
	m.SleepQuality /= n
	m.StressLevel /= n
	m.BodyTemperature /= n
	return m
}

// Tail returns the last n samples (all of them when n exceeds the length).
func (d *Dataset) Tail(n int) []Sample {
	if n <= 0 {
		return nil
	}
	if n > d.Len() {
		n = d.Len()
	}
	return d.Samples[d.Len()-n:]
}

// Anomalies returns the indices currently flagged by the detector.
func (d *Dataset) Anomalies() []int {
	var idx []int
	for i, s := range d.Samples {
		if s.Anomaly {
			idx = append(idx, i)
		}
	}
	return idx
}

// Validate checks ordering and that every feature value is finite.
func (d *Dataset) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: dataset is nil", ErrMalformedInput)
	}
	for i, s := range d.Samples {
		if i > 0 && !s.Timestamp.After(d.Samples[i-1].Timestamp) {
			return fmt.Errorf("%w: timestamp at row %d is not after row %d", ErrMalformedInput, i, i-1)
		}
		for _, f := range Features {
			v := s.Value(f)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s at row %d is not a finite number", ErrMalformedInput, f, i)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	c := *d
	c.Samples = append([]Sample(nil), d.Samples...)
	c.Outliers = append([]int(nil), d.Outliers...)
	return &c
}
