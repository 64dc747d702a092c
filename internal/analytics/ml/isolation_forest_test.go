package ml

import (
	"math"
	"testing"
)

func clusteredPoints() []DataPoint {
	return []DataPoint{
		{Features: []float64{1.0, 2.0}},
		{Features: []float64{1.1, 2.1}},
		{Features: []float64{0.9, 1.9}},
		{Features: []float64{1.2, 2.2}},
		{Features: []float64{0.8, 1.8}},
		{Features: []float64{1.0, 2.0}},
		{Features: []float64{1.1, 2.0}},
		{Features: []float64{0.9, 2.1}},
	}
}

func TestIsolationForest_Basic(t *testing.T) {
	forest := NewIsolationForest(100, 8, 0, 42)
	if err := forest.Fit(clusteredPoints()); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}
	if !forest.Trained() {
		t.Fatal("Expected forest to be trained")
	}

	normalResult := forest.Predict(DataPoint{Features: []float64{1.0, 2.0}})
	anomalousResult := forest.Predict(DataPoint{Features: []float64{10.0, 20.0}})

	if anomalousResult.Score <= normalResult.Score {
		t.Errorf("Anomaly score (%f) should be higher than normal score (%f)",
			anomalousResult.Score, normalResult.Score)
	}
	for _, r := range []AnomalyResult{normalResult, anomalousResult} {
		if r.Score <= 0 || r.Score > 1 {
			t.Errorf("Score should be in (0,1], got %f", r.Score)
		}
		if r.Explanation == "" {
			t.Error("Expected an explanation")
		}
	}
}

func TestIsolationForest_SingleDimension(t *testing.T) {
	data := []DataPoint{
		{Value: 1.0},
		{Value: 2.0},
		{Value: 1.5},
		{Value: 2.5},
		{Value: 1.8},
	}

	forest := NewIsolationForest(50, 5, 0, 7)
	if err := forest.Fit(data); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	normalResult := forest.Predict(DataPoint{Value: 1.8})
	outlierResult := forest.Predict(DataPoint{Value: 100.0})

	if outlierResult.Score <= normalResult.Score {
		t.Errorf("Outlier score (%f) should be higher than normal score (%f)",
			outlierResult.Score, normalResult.Score)
	}
}

func TestIsolationForest_SeedIsDeterministic(t *testing.T) {
	a := NewIsolationForest(20, 8, 0, 99)
	b := NewIsolationForest(20, 8, 0, 99)
	a.Fit(clusteredPoints())
	b.Fit(clusteredPoints())

	point := DataPoint{Features: []float64{1.05, 1.95}}
	if a.Predict(point).Score != b.Predict(point).Score {
		t.Error("Forests with the same seed should score identically")
	}

	// refitting resets the ensemble rather than growing it
	first := a.Predict(point).Score
	a.Fit(clusteredPoints())
	if got := a.Predict(point).Score; got != first {
		t.Errorf("Refit changed score: %f != %f", got, first)
	}
	if len(a.trees) != 20 {
		t.Errorf("Expected 20 trees after refit, got %d", len(a.trees))
	}
}

func TestIsolationForest_BatchPredict(t *testing.T) {
	forest := NewIsolationForest(50, 8, 0, 42)
	forest.Fit(clusteredPoints())

	testPoints := []DataPoint{
		{Features: []float64{1.0, 2.0}},
		{Features: []float64{10.0, 10.0}},
		{Features: []float64{1.05, 2.05}},
	}

	results := forest.BatchPredict(testPoints)
	if len(results) != len(testPoints) {
		t.Fatalf("Expected %d results, got %d", len(testPoints), len(results))
	}
	if results[1].Score <= results[0].Score || results[1].Score <= results[2].Score {
		t.Errorf("Anomaly should have highest score: %+v", results)
	}
}

func TestIsolationForest_GetAnomalies(t *testing.T) {
	forest := NewIsolationForest(50, 8, 0, 42)
	forest.Fit(clusteredPoints())

	testPoints := []DataPoint{
		{Features: []float64{1.0, 2.0}, Label: "normal1"},
		{Features: []float64{10.0, 10.0}, Label: "anomaly1"},
		{Features: []float64{1.05, 2.05}, Label: "normal2"},
		{Features: []float64{-5.0, 15.0}, Label: "anomaly2"},
	}

	anomalies := forest.GetAnomalies(testPoints, 0)
	if len(anomalies) != len(testPoints) {
		t.Fatalf("Expected every point above a zero threshold, got %d", len(anomalies))
	}
	for i := 1; i < len(anomalies); i++ {
		if anomalies[i].Result.Score > anomalies[i-1].Result.Score {
			t.Error("Anomalies not sorted by score descending")
		}
	}
	if anomalies[0].Point.Label == "normal1" || anomalies[0].Point.Label == "normal2" {
		t.Errorf("Expected an outlier first, got %s", anomalies[0].Point.Label)
	}

	if got := forest.GetAnomalies(testPoints, 1); len(got) != 0 {
		t.Errorf("No score exceeds 1, got %d anomalies", len(got))
	}
}

func TestIsolationForest_EmptyData(t *testing.T) {
	forest := NewIsolationForest(10, 5, 10, 1)

	if err := forest.Fit([]DataPoint{}); err != nil {
		t.Errorf("Fit with empty data should not error: %v", err)
	}
	if forest.Trained() {
		t.Error("Empty fit should leave the forest untrained")
	}

	result := forest.Predict(DataPoint{Features: []float64{1.0}})
	if result.Score != 0.5 || result.IsAnomaly {
		t.Errorf("Untrained forest should return the neutral score, got %+v", result)
	}
}

func TestIsolationForest_IdenticalPoints(t *testing.T) {
	data := []DataPoint{
		{Features: []float64{1.0, 1.0}},
		{Features: []float64{1.0, 1.0}},
		{Features: []float64{1.0, 1.0}},
	}

	forest := NewIsolationForest(10, 3, 5, 1)
	forest.Fit(data)

	// every tree is a single leaf, so every point sits at exactly c(ψ)
	for _, p := range []DataPoint{{Features: []float64{1, 1}}, {Features: []float64{5, 5}}} {
		if got := forest.Predict(p).Score; math.Abs(got-0.5) > 1e-12 {
			t.Errorf("Expected score 0.5 for %v, got %f", p.Features, got)
		}
	}
}

func TestIsolationForest_ConstantFeatureIsNeverSplit(t *testing.T) {
	data := make([]DataPoint, 64)
	for i := range data {
		data[i] = DataPoint{Features: []float64{float64(i), 3.0}}
	}

	forest := NewIsolationForest(10, 64, 0, 5)
	forest.Fit(data)

	var walk func(n *IsolationTree)
	walk = func(n *IsolationTree) {
		if n.isLeaf {
			return
		}
		if n.splitFeature != 0 {
			t.Fatalf("Split on constant feature %d", n.splitFeature)
		}
		walk(n.left)
		walk(n.right)
	}
	for _, tree := range forest.trees {
		walk(tree)
	}
}

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n        int
		expected float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{10, 3.75},
		{256, 10.24},
	}

	for _, tt := range tests {
		if got := averagePathLength(tt.n); math.Abs(got-tt.expected) > 0.01 {
			t.Errorf("averagePathLength(%d) = %f, expected ~%f", tt.n, got, tt.expected)
		}
	}
}

func TestScoreSeverity(t *testing.T) {
	tests := []struct {
		score float64
		want  Severity
	}{
		{0.9, SeverityCritical},
		{0.8, SeverityHigh},
		{0.7, SeverityMedium},
		{0.5, SeverityLow},
	}
	for _, tt := range tests {
		if got := scoreSeverity(tt.score); got != tt.want {
			t.Errorf("scoreSeverity(%f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func BenchmarkIsolationForest_Fit(b *testing.B) {
	data := make([]DataPoint, 1000)
	for i := range data {
		data[i] = DataPoint{
			Features: []float64{
				float64(i % 100),
				float64((i * 2) % 100),
			},
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		forest := NewIsolationForest(100, 256, 0, 42)
		forest.Fit(data)
	}
}

func BenchmarkIsolationForest_Predict(b *testing.B) {
	data := make([]DataPoint, 1000)
	for i := range data {
		data[i] = DataPoint{
			Features: []float64{
				float64(i % 100),
				float64((i * 2) % 100),
			},
		}
	}

	forest := NewIsolationForest(100, 256, 0, 42)
	forest.Fit(data)

	testPoint := DataPoint{Features: []float64{50.0, 50.0}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		forest.Predict(testPoint)
	}
}
