package normalize

// Package normalize rescales feature matrices to zero mean and unit variance.
//
// Standard deviation is the population form (divide by n). A column whose
// variance is zero standardizes to 0 on every row; the column is reported
// through DegenerateColumns and is never an error.

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

// ErrNotFitted is returned by Transform before Fit.
var ErrNotFitted = errors.New("scaler has not been fitted")

// StandardScaler holds per-column means and standard deviations.
type StandardScaler struct {
	mean       []float64
	std        []float64
	degenerate []int
}

// NewStandardScaler returns an unfitted scaler.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit learns column statistics from matrix.
func (s *StandardScaler) Fit(matrix [][]float64) error {
	cols, err := checkMatrix(matrix)
	if err != nil {
		return err
	}
	if len(matrix) == 0 {
		return fmt.Errorf("%w: cannot fit on an empty matrix", models.ErrMalformedInput)
	}

	mean := make([]float64, cols)
	std := make([]float64, cols)
	col := make([]float64, len(matrix))
	var degenerate []int
	for j := 0; j < cols; j++ {
		for i, row := range matrix {
			col[i] = row[j]
		}
		if constant(col) {
			mean[j] = col[0]
			degenerate = append(degenerate, j)
			continue
		}
		mean[j], std[j] = stat.PopMeanStdDev(col, nil)
	}

	s.mean, s.std, s.degenerate = mean, std, degenerate
	return nil
}

// Transform standardizes matrix using the fitted statistics. The input is not modified.
func (s *StandardScaler) Transform(matrix [][]float64) ([][]float64, error) {
	if s.mean == nil {
		return nil, ErrNotFitted
	}
	cols, err := checkMatrix(matrix)
	if err != nil {
		return nil, err
	}
	if len(matrix) > 0 && cols != len(s.mean) {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", models.ErrMalformedInput, len(s.mean), cols)
	}

	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		z := make([]float64, len(row))
		for j, v := range row {
			if s.std[j] == 0 {
				continue
			}
			z[j] = (v - s.mean[j]) / s.std[j]
		}
		out[i] = z
	}
	return out, nil
}

// FitTransform fits on matrix and returns its standardized form.
func (s *StandardScaler) FitTransform(matrix [][]float64) ([][]float64, error) {
	if err := s.Fit(matrix); err != nil {
		return nil, err
	}
	return s.Transform(matrix)
}

// Mean returns a copy of the fitted column means.
func (s *StandardScaler) Mean() []float64 {
	return append([]float64(nil), s.mean...)
}

// Std returns a copy of the fitted population standard deviations.
func (s *StandardScaler) Std() []float64 {
	return append([]float64(nil), s.std...)
}

// DegenerateColumns lists the zero-variance column indices found by the last Fit.
func (s *StandardScaler) DegenerateColumns() []int {
	return append([]int(nil), s.degenerate...)
}

// constant reports whether every value equals the first. Such a column has
// zero variance exactly, whatever rounding the variance computation would add.
func constant(col []float64) bool {
	for _, v := range col[1:] {
		if v != col[0] {
			return false
		}
	}
	return true
}

// checkMatrix verifies the matrix is rectangular and finite, returning its width.
func checkMatrix(matrix [][]float64) (int, error) {
	if len(matrix) == 0 {
		return 0, nil
	}
	cols := len(matrix[0])
	if cols == 0 {
		return 0, fmt.Errorf("%w: rows have no columns", models.ErrMalformedInput)
	}
	for i, row := range matrix {
		if len(row) != cols {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", models.ErrMalformedInput, i, len(row), cols)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: value at (%d,%d) is not finite", models.ErrMalformedInput, i, j)
			}
		}
	}
	return cols, nil
}
