// Package matutils implements utility function for working with mat.Matrix
// structs
package matutils

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Format formats a matrix for printing
func Format(X mat.Matrix) string {
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	return fmt.Sprintf("%v", fa)
}

// VecOnes returns a vector of 1.0's
func VecOnes(length int) *mat.VecDense {
	oneSlice := make([]float64, length)
	for i := 0; i < length; i++ {
		oneSlice[i] = 1.0
	}
	return mat.NewVecDense(length, oneSlice)
}

// RowShiftUp returns a new matrix whose row i equals row i+1 of m for
// all but the final row, which is set to last. That is, RowShiftUp
// drops the first row of m and appends last at the bottom. The
// argument last must have length equal to the number of columns of m.
func RowShiftUp(m *mat.Dense, last mat.Vector) *mat.Dense {
	r, c := m.Dims()
	if last.Len() != c {
		panic(fmt.Sprintf("rowShiftUp: expected final row of length "+
			"%v, got %v", c, last.Len()))
	}

	shifted := mat.NewDense(r, c, nil)
	for i := 0; i < r-1; i++ {
		shifted.SetRow(i, m.RawRowView(i+1))
	}
	for j := 0; j < c; j++ {
		shifted.Set(r-1, j, last.AtVec(j))
	}
	return shifted
}

// DenseApply returns a new matrix computed by applying f element-wise
// to m
func DenseApply(m *mat.Dense, f func(float64) float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, m)
	return out
}
