package ml

import (
	"fmt"
	"math"
	"sort"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/normalize"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

// DetectorOptions configures the contamination-labelled isolation forest.
type DetectorOptions struct {
	Contamination float64 `json:"contamination"`
	NumTrees      int     `json:"num_trees"`
	SubSampleSize int     `json:"sub_sample_size"`
	MaxDepth      int     `json:"max_depth"`
	Seed          int64   `json:"seed"`
	MinSamples    int     `json:"min_samples"`
}

// DefaultDetectorOptions returns the standard detector configuration.
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		Contamination: 0.10,
		NumTrees:      100,
		SubSampleSize: 256,
		MaxDepth:      0,
		Seed:          42,
		MinSamples:    10,
	}
}

// Validate rejects out-of-range options.
func (o DetectorOptions) Validate() error {
	if !(o.Contamination > 0 && o.Contamination < 1) {
		return fmt.Errorf("%w: contamination must be in (0,1), got %v", models.ErrInvalidParameter, o.Contamination)
	}
	if o.NumTrees < 1 {
		return fmt.Errorf("%w: num_trees must be positive, got %d", models.ErrInvalidParameter, o.NumTrees)
	}
	if o.SubSampleSize < 1 {
		return fmt.Errorf("%w: sub_sample_size must be positive, got %d", models.ErrInvalidParameter, o.SubSampleSize)
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth must not be negative, got %d", models.ErrInvalidParameter, o.MaxDepth)
	}
	if o.MinSamples < 1 {
		return fmt.Errorf("%w: min_samples must be positive, got %d", models.ErrInvalidParameter, o.MinSamples)
	}
	return nil
}

// Detection is the outcome of one Detect call.
type Detection struct {
	Scores            []float64 `json:"scores"`
	Threshold         float64   `json:"threshold"`
	Flagged           []int     `json:"flagged"`
	Contamination     float64   `json:"contamination"`
	DegenerateColumns []string  `json:"degenerate_columns,omitempty"`

	// Insufficient is set when the dataset was too small to fit a forest.
	Insufficient bool `json:"insufficient"`
}

// FlaggedCount returns how many samples were labelled anomalous.
func (d *Detection) FlaggedCount() int {
	return len(d.Flagged)
}

// Detector labels samples of a dataset as anomalous. It keeps no model
// between calls; every Detect fits a fresh forest.
type Detector struct {
	opts DetectorOptions
}

// NewDetector validates opts and returns a detector.
func NewDetector(opts DetectorOptions) (*Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Detector{opts: opts}, nil
}

// Options returns the detector configuration.
func (d *Detector) Options() DetectorOptions {
	return d.opts
}

// Detect standardizes the feature matrix, scores every sample with a freshly
// fitted forest, and overwrites Sample.Anomaly for every row. Samples scoring
// strictly above the (1 - contamination) percentile are flagged.
//
// On ErrMalformedInput the dataset flags are left untouched.
func (d *Detector) Detect(ds *models.Dataset) (*Detection, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: dataset is nil", models.ErrMalformedInput)
	}
	matrix := ds.Matrix()
	for i, row := range matrix {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: %s at row %d is not a finite number", models.ErrMalformedInput, models.Features[j], i)
			}
		}
	}

	result := &Detection{
		Scores:        make([]float64, len(matrix)),
		Contamination: d.opts.Contamination,
	}

	if len(matrix) < d.opts.MinSamples {
		result.Insufficient = true
		for i := range ds.Samples {
			ds.Samples[i].Anomaly = false
		}
		return result, nil
	}

	scaler := normalize.NewStandardScaler()
	scaled, err := scaler.FitTransform(matrix)
	if err != nil {
		return nil, fmt.Errorf("failed to standardize features: %w", err)
	}
	for _, j := range scaler.DegenerateColumns() {
		result.DegenerateColumns = append(result.DegenerateColumns, string(models.Features[j]))
	}

	points := make([]DataPoint, len(scaled))
	for i, row := range scaled {
		points[i] = DataPoint{Features: row, Timestamp: ds.Samples[i].Timestamp}
	}

	forest := NewIsolationForest(d.opts.NumTrees, d.opts.SubSampleSize, d.opts.MaxDepth, d.opts.Seed)
	if err := forest.Fit(points); err != nil {
		return nil, fmt.Errorf("failed to fit isolation forest: %w", err)
	}
	for i, r := range forest.BatchPredict(points) {
		result.Scores[i] = r.Score
	}

	result.Threshold = Percentile(result.Scores, 1-d.opts.Contamination)
	for i := range ds.Samples {
		flag := result.Scores[i] > result.Threshold
		ds.Samples[i].Anomaly = flag
		if flag {
			result.Flagged = append(result.Flagged, i)
		}
	}

	return result, nil
}

// Percentile returns the q-quantile (q in [0,1]) of values using linear
// interpolation between closest ranks. values is not modified.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
