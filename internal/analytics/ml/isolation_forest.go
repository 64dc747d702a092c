package ml

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// Severity represents the severity level of an anomaly detected by IsolationForest.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultScoreThreshold is the fixed cut used by Predict when no contamination
// based threshold is available.
const DefaultScoreThreshold = 0.6

// eulerGamma is the Euler-Mascheroni constant.
const eulerGamma = 0.5772156649

// IsolationTree represents a single tree in the Isolation Forest
type IsolationTree struct {
	splitFeature int
	splitValue   float64
	left         *IsolationTree
	right        *IsolationTree
	size         int
	isLeaf       bool
}

// IsolationForest implements the Isolation Forest algorithm for anomaly detection.
// Fit rebuilds the ensemble from scratch; the same seed and data yield the same trees.
type IsolationForest struct {
	trees         []*IsolationTree
	numTrees      int
	subSampleSize int
	maxDepth      int
	seed          int64
	rng           *rand.Rand

	// effective sample size and depth of the last Fit
	psi   int
	depth int
}

// DataPoint represents a multi-dimensional data point
type DataPoint struct {
	Features  []float64
	Label     string    // Optional label for debugging
	Timestamp time.Time // Optional timestamp for time-series use
	Value     float64   // Optional scalar value for time-series use
}

// AnomalyResult contains the anomaly score and details
type AnomalyResult struct {
	Score       float64 // 0.0 to 1.0, higher = more anomalous
	IsAnomaly   bool
	PathLength  float64
	Explanation string
	Severity    Severity // low, medium, high, critical
}

// ScoredPoint pairs a point with its prediction.
type ScoredPoint struct {
	Point  DataPoint
	Result AnomalyResult
}

// NewIsolationForest creates a new Isolation Forest with specified parameters.
// maxDepth <= 0 selects ceil(log2(ψ)) where ψ is the effective sub-sample size.
func NewIsolationForest(numTrees, subSampleSize, maxDepth int, seed int64) *IsolationForest {
	return &IsolationForest{
		trees:         make([]*IsolationTree, 0, numTrees),
		numTrees:      numTrees,
		subSampleSize: subSampleSize,
		maxDepth:      maxDepth,
		seed:          seed,
	}
}

// normalizeDataPoints ensures every DataPoint has a populated Features slice.
// If Features is empty but Value is set, we use [Value] as a 1-D feature vector.
func normalizeDataPoints(data []DataPoint) []DataPoint {
	normalized := make([]DataPoint, len(data))
	for i, dp := range data {
		if len(dp.Features) == 0 {
			dp.Features = []float64{dp.Value}
		}
		normalized[i] = dp
	}
	return normalized
}

// Fit trains the Isolation Forest on the given data
func (f *IsolationForest) Fit(data []DataPoint) error {
	f.trees = f.trees[:0]
	f.rng = rand.New(rand.NewSource(f.seed))
	if len(data) == 0 {
		f.psi, f.depth = 0, 0
		return nil
	}

	data = normalizeDataPoints(data)

	f.psi = f.subSampleSize
	if f.psi <= 0 || f.psi > len(data) {
		f.psi = len(data)
	}
	f.depth = f.maxDepth
	if f.depth <= 0 {
		f.depth = int(math.Ceil(math.Log2(float64(f.psi))))
		if f.depth < 1 {
			f.depth = 1
		}
	}

	for i := 0; i < f.numTrees; i++ {
		sample := f.sampleData(data)
		f.trees = append(f.trees, f.buildTree(sample, 0))
	}

	return nil
}

// Trained reports whether Fit produced at least one tree.
func (f *IsolationForest) Trained() bool {
	return len(f.trees) > 0
}

// Predict calculates the anomaly score for a single data point
func (f *IsolationForest) Predict(point DataPoint) AnomalyResult {
	if len(point.Features) == 0 {
		point.Features = []float64{point.Value}
	}
	if len(f.trees) == 0 {
		return AnomalyResult{
			Score:       0.5,
			IsAnomaly:   false,
			Explanation: "Model not trained",
			Severity:    SeverityLow,
		}
	}

	totalPathLength := 0.0
	for _, tree := range f.trees {
		totalPathLength += f.pathLength(tree, point, 0)
	}
	avgPathLength := totalPathLength / float64(len(f.trees))

	// score = 2^(-E[h(x)] / c(ψ))
	score := 0.5
	if c := averagePathLength(f.psi); c > 0 {
		score = math.Pow(2, -avgPathLength/c)
	}

	return AnomalyResult{
		Score:       score,
		IsAnomaly:   score > DefaultScoreThreshold,
		PathLength:  avgPathLength,
		Explanation: explainScore(score),
		Severity:    scoreSeverity(score),
	}
}

// scoreSeverity maps anomaly score to a severity level.
func scoreSeverity(score float64) Severity {
	if score > 0.85 {
		return SeverityCritical
	} else if score > 0.75 {
		return SeverityHigh
	} else if score > 0.65 {
		return SeverityMedium
	}
	return SeverityLow
}

// sampleData draws ψ points without replacement using a partial Fisher-Yates shuffle.
func (f *IsolationForest) sampleData(data []DataPoint) []DataPoint {
	shuffled := make([]DataPoint, len(data))
	copy(shuffled, data)

	for i := 0; i < f.psi; i++ {
		j := i + f.rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	return shuffled[:f.psi]
}

// buildTree recursively builds an isolation tree
func (f *IsolationForest) buildTree(data []DataPoint, depth int) *IsolationTree {
	if len(data) <= 1 || depth >= f.depth {
		return &IsolationTree{size: len(data), isLeaf: true}
	}

	// Only features that still vary inside this node can split it.
	numFeatures := len(data[0].Features)
	candidates := make([]int, 0, numFeatures)
	for j := 0; j < numFeatures; j++ {
		if lo, hi := featureRange(data, j); hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &IsolationTree{size: len(data), isLeaf: true}
	}

	splitFeature := candidates[f.rng.Intn(len(candidates))]
	minVal, maxVal := featureRange(data, splitFeature)
	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	left, right := splitData(data, splitFeature, splitValue)
	if len(left) == 0 || len(right) == 0 {
		return &IsolationTree{size: len(data), isLeaf: true}
	}

	return &IsolationTree{
		splitFeature: splitFeature,
		splitValue:   splitValue,
		left:         f.buildTree(left, depth+1),
		right:        f.buildTree(right, depth+1),
		size:         len(data),
	}
}

// pathLength calculates the path length for a data point in a tree
func (f *IsolationForest) pathLength(tree *IsolationTree, point DataPoint, currentDepth int) float64 {
	if tree.isLeaf {
		// unresolved points in a leaf add the expected depth of a BST of that size
		return float64(currentDepth) + averagePathLength(tree.size)
	}

	if point.Features[tree.splitFeature] < tree.splitValue {
		return f.pathLength(tree.left, point, currentDepth+1)
	}
	return f.pathLength(tree.right, point, currentDepth+1)
}

// averagePathLength is c(n), the average path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}

	// c(n) = 2H(n-1) - (2(n-1)/n)
	return 2*harmonicNumber(n-1) - (2 * float64(n-1) / float64(n))
}

// harmonicNumber approximates H(n) as ln(n) + γ.
func harmonicNumber(n int) float64 {
	return math.Log(float64(n)) + eulerGamma
}

// featureRange gets min and max values for a feature
func featureRange(data []DataPoint, feature int) (float64, float64) {
	minVal := data[0].Features[feature]
	maxVal := data[0].Features[feature]

	for _, point := range data {
		val := point.Features[feature]
		if val < minVal {
			minVal = val
		}
		if val > maxVal {
			maxVal = val
		}
	}

	return minVal, maxVal
}

// splitData splits data based on feature and split value
func splitData(data []DataPoint, feature int, splitValue float64) ([]DataPoint, []DataPoint) {
	left := make([]DataPoint, 0, len(data))
	right := make([]DataPoint, 0, len(data))

	for _, point := range data {
		if point.Features[feature] < splitValue {
			left = append(left, point)
		} else {
			right = append(right, point)
		}
	}

	return left, right
}

// explainScore provides a human-readable explanation of the anomaly score
func explainScore(score float64) string {
	switch {
	case score > 0.7:
		return "Strong anomaly - vitals differ sharply from this subject's usual pattern"
	case score > 0.6:
		return "Likely anomaly - deviates from the usual pattern"
	case score > 0.5:
		return "Borderline - slightly unusual but within normal variation"
	default:
		return "Normal - consistent with the usual pattern"
	}
}

// BatchPredict predicts anomaly scores for multiple data points
func (f *IsolationForest) BatchPredict(points []DataPoint) []AnomalyResult {
	results := make([]AnomalyResult, len(points))
	for i, point := range points {
		results[i] = f.Predict(point)
	}
	return results
}

// GetAnomalies returns the points scoring above threshold, highest score first.
func (f *IsolationForest) GetAnomalies(points []DataPoint, threshold float64) []ScoredPoint {
	anomalies := make([]ScoredPoint, 0)

	for _, point := range points {
		result := f.Predict(point)
		if result.Score > threshold {
			anomalies = append(anomalies, ScoredPoint{Point: point, Result: result})
		}
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Result.Score > anomalies[j].Result.Score
	})

	return anomalies
}
