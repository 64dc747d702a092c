package signal

// Package signal synthesizes physiological time series.
//
// Each signal is a circadian base curve driven by the hour of day, plus
// independent Gaussian noise, clamped to its physiological domain. A small
// fraction of samples is then corrupted with heart-rate and blood-oxygen
// excursions so the detector has something to find.
//
// All randomness flows from the seed in Options. Two calls with the same
// Options (End included) return identical datasets.

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

// DefaultOutlierFraction is the share of samples that receive an injected excursion.
const DefaultOutlierFraction = 0.05

// Outlier shifts applied to heart rate, chosen uniformly per outlier.
var heartRateShifts = [2]float64{-20, 30}

// Blood oxygen drop for an outlier is a uniform integer in [minOxygenDrop, maxOxygenDrop].
const (
	minOxygenDrop = 5
	maxOxygenDrop = 15
)

// Limits on a single request. MaxDays keeps the window inside time.Duration;
// MaxSamples keeps days*samples_per_day well clear of int overflow.
const (
	MaxDays    = int(math.MaxInt64 / int64(24*time.Hour))
	MaxSamples = 1 << 24
)

// Options controls a generation request.
type Options struct {
	Days            int
	SamplesPerDay   int
	Seed            int64
	OutlierFraction float64

	// End anchors the window. Zero means the generator clock.
	End time.Time
}

// DefaultOptions returns options with the standard outlier fraction.
func DefaultOptions(days, samplesPerDay int, seed int64) Options {
	return Options{
		Days:            days,
		SamplesPerDay:   samplesPerDay,
		Seed:            seed,
		OutlierFraction: DefaultOutlierFraction,
	}
}

// Validate checks the request parameters.
func (o Options) Validate() error {
	if o.Days < 1 {
		return fmt.Errorf("%w: days must be at least 1, got %d", models.ErrInvalidParameter, o.Days)
	}
	if o.SamplesPerDay < 1 {
		return fmt.Errorf("%w: samples_per_day must be at least 1, got %d", models.ErrInvalidParameter, o.SamplesPerDay)
	}
	if o.Days > MaxDays {
		return fmt.Errorf("%w: days must be at most %d, got %d", models.ErrInvalidParameter, MaxDays, o.Days)
	}
	if o.SamplesPerDay > MaxSamples/o.Days {
		return fmt.Errorf("%w: days*samples_per_day must be at most %d", models.ErrInvalidParameter, MaxSamples)
	}
	if o.OutlierFraction < 0 || o.OutlierFraction >= 1 || math.IsNaN(o.OutlierFraction) {
		return fmt.Errorf("%w: outlier fraction must be in [0,1), got %v", models.ErrInvalidParameter, o.OutlierFraction)
	}
	return nil
}

// Generator produces synthetic datasets.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: func() time.Time { return time.Now().UTC() }}
}

// NewGeneratorWithClock creates a generator with an injected clock.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Generate builds a dataset with default options and the wall clock.
func Generate(days, samplesPerDay int, seed int64) (*models.Dataset, error) {
	return NewGenerator().Generate(DefaultOptions(days, samplesPerDay, seed))
}

// Generate builds a dataset for the given options.
func (g *Generator) Generate(opts Options) (*models.Dataset, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	end := opts.End
	if end.IsZero() {
		end = g.now()
	}
	total := opts.Days * opts.SamplesPerDay
	timestamps := timeline(end, opts.Days, total)

	rng := rand.New(rand.NewSource(opts.Seed))

	hours := make([]float64, total)
	for i, ts := range timestamps {
		hours[i] = float64(ts.Hour())
	}

	// Noise is drawn column by column so the base series does not depend on
	// how many outliers are injected afterwards.
	heartRate := make([]float64, total)
	for i, h := range hours {
		heartRate[i] = 70 + 10*math.Sin((h-6)*math.Pi/12) + rng.NormFloat64()*5
		heartRate[i] = models.Bounds(models.FeatureHeartRate).Clamp(heartRate[i])
	}

	oxygen := make([]float64, total)
	for i := range oxygen {
		oxygen[i] = models.Bounds(models.FeatureBloodOxygen).Clamp(98 + rng.NormFloat64())
	}

	steps := make([]float64, total)
	for i, h := range hours {
		steps[i] = math.Max(0, 500+300*math.Sin((h-12)*math.Pi/12)+rng.NormFloat64()*100)
	}

	sleep := make([]float64, total)
	for i, h := range hours {
		sleep[i] = 7 + 2*math.Sin((h-2)*math.Pi/12) + rng.NormFloat64()*0.5
		sleep[i] = models.Bounds(models.FeatureSleepQuality).Clamp(sleep[i])
	}

	stress := make([]float64, total)
	for i := range stress {
		stress[i] = models.Bounds(models.FeatureStressLevel).Clamp(10 - sleep[i] + rng.NormFloat64())
	}

	temperature := make([]float64, total)
	for i := range temperature {
		temperature[i] = models.Bounds(models.FeatureBodyTemperature).Clamp(98.6 + rng.NormFloat64()*0.5)
	}

	outliers := selectOutliers(rng, total, opts.OutlierFraction)
	for _, idx := range outliers {
		shift := heartRateShifts[rng.Intn(len(heartRateShifts))]
		drop := oxygenDrop(rng)
		heartRate[idx] = models.Bounds(models.FeatureHeartRate).Clamp(heartRate[idx] + shift)
		oxygen[idx] = models.Bounds(models.FeatureBloodOxygen).Clamp(oxygen[idx] - drop)
	}

	ds := &models.Dataset{
		Samples:       make([]models.Sample, total),
		Days:          opts.Days,
		SamplesPerDay: opts.SamplesPerDay,
		Seed:          opts.Seed,
		Outliers:      outliers,
	}
	for i := 0; i < total; i++ {
		ds.Samples[i] = models.Sample{
			Timestamp:       timestamps[i],
			HeartRate:       int(heartRate[i]),
			BloodOxygen:     round1(oxygen[i]),
			Steps:           int(steps[i]),
			SleepQuality:    round1(sleep[i]),
			StressLevel:     round1(stress[i]),
			BodyTemperature: round1(temperature[i]),
		}
	}
	return ds, nil
}

// oxygenDrop draws a uniform integer in [minOxygenDrop, maxOxygenDrop], both ends included.
func oxygenDrop(rng *rand.Rand) float64 {
	return float64(minOxygenDrop + rng.Intn(maxOxygenDrop-minOxygenDrop+1))
}

// OutlierCount returns how many samples receive an excursion for a series of
// the given length.
func OutlierCount(total int, fraction float64) int {
	if total <= 0 || fraction <= 0 {
		return 0
	}
	n := int(math.Ceil(fraction * float64(total)))
	if n > total {
		n = total
	}
	return n
}

// selectOutliers picks indices without replacement and returns them sorted.
// The draw order is the permutation order, so shifts remain tied to the seed.
func selectOutliers(rng *rand.Rand, total int, fraction float64) []int {
	n := OutlierCount(total, fraction)
	if n == 0 {
		return nil
	}
	picked := rng.Perm(total)[:n]
	sort.Ints(picked)
	return picked
}

// timeline spreads total timestamps evenly over [end-days, end], both ends
// included. A single sample sits at the start of the window.
func timeline(end time.Time, days, total int) []time.Time {
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	ts := make([]time.Time, total)
	if total == 1 {
		ts[0] = start
		return ts
	}
	span := end.Sub(start)
	for i := 0; i < total-1; i++ {
		offset := time.Duration(float64(span) * float64(i) / float64(total-1))
		ts[i] = start.Add(offset)
	}
	ts[total-1] = end
	return ts
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
