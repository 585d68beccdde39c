package utils

import (
	"gonum.org/v1/gonum/mat"
)

// Identity matrix.
func Eye(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}

// Add d to the diagonal of the square matrix dst.
func AddDiag(dst *mat.Dense, d []float64) {
	for i, v := range d {
		dst.Set(i, i, dst.At(i, i)+v)
	}
}

// Symmetrize a square matrix in place: a <- a + a^T.
func SymmetrizeInPlace(a *mat.Dense) {
	n, _ := a.Dims()
	for i := 0; i < n; i++ {
		a.Set(i, i, 2*a.At(i, i))
		for j := i + 1; j < n; j++ {
			v := a.At(i, j) + a.At(j, i)
			a.Set(i, j, v)
			a.Set(j, i, v)
		}
	}
}
