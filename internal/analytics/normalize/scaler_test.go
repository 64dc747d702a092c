package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

func TestStandardScalerZeroMeanUnitVariance(t *testing.T) {
	matrix := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
		{4, 40},
	}
	s := NewStandardScaler()
	out, err := s.FitTransform(matrix)
	require.NoError(t, err)
	require.Len(t, out, 4)

	for j := 0; j < 2; j++ {
		var sum, sq float64
		for _, row := range out {
			sum += row[j]
			sq += row[j] * row[j]
		}
		assert.InDelta(t, 0, sum/4, 1e-12)
		// population variance of the standardized column is 1
		assert.InDelta(t, 1, sq/4, 1e-12)
	}

	assert.InDelta(t, 2.5, s.Mean()[0], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), s.Std()[0], 1e-12)
	assert.Empty(t, s.DegenerateColumns())

	// input untouched
	assert.Equal(t, 1.0, matrix[0][0])
}

func TestStandardScalerDegenerateColumn(t *testing.T) {
	matrix := [][]float64{
		{1, 5},
		{2, 5},
		{3, 5},
	}
	s := NewStandardScaler()
	out, err := s.FitTransform(matrix)
	require.NoError(t, err)

	for _, row := range out {
		assert.Equal(t, 0.0, row[1])
		assert.False(t, math.IsNaN(row[0]))
	}
	assert.Equal(t, []int{1}, s.DegenerateColumns())
}

func TestStandardScalerErrors(t *testing.T) {
	s := NewStandardScaler()

	_, err := s.Transform([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	assert.ErrorIs(t, s.Fit(nil), models.ErrMalformedInput)
	assert.ErrorIs(t, s.Fit([][]float64{{1, 2}, {3}}), models.ErrMalformedInput)
	assert.ErrorIs(t, s.Fit([][]float64{{1, math.NaN()}}), models.ErrMalformedInput)
	assert.ErrorIs(t, s.Fit([][]float64{{1, math.Inf(1)}}), models.ErrMalformedInput)

	require.NoError(t, s.Fit([][]float64{{1, 2}, {3, 4}}))
	_, err = s.Transform([][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, models.ErrMalformedInput)
}

func TestStandardScalerConstantDecimalColumn(t *testing.T) {
	// 98.6 is not exactly representable; summing it must not leave a
	// rounding-sized variance behind.
	matrix := make([][]float64, 7)
	for i := range matrix {
		matrix[i] = []float64{float64(i), 98.6}
	}
	s := NewStandardScaler()
	out, err := s.FitTransform(matrix)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, s.DegenerateColumns())
	assert.Equal(t, 98.6, s.Mean()[1])
	assert.Equal(t, 0.0, s.Std()[1])
	for _, row := range out {
		assert.Equal(t, 0.0, row[1])
	}
	assert.InDelta(t, 3.0, s.Mean()[0], 1e-12)
	assert.InDelta(t, 2.0, s.Std()[0], 1e-12)
}

func TestStandardScalerSingleRow(t *testing.T) {
	s := NewStandardScaler()
	out, err := s.FitTransform([][]float64{{3, 4}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}}, out)
	assert.Equal(t, []int{0, 1}, s.DegenerateColumns())
}
