package kern

import (
	"gonum.org/v1/gonum/mat"
)

// Grads holds the gradient of a scalar loss with respect to a kernel's
// parameters, as computed by UpdateGradientsFull or UpdateGradientsDiag.
type Grads struct {
	DW     *mat.Dense
	DKappa *mat.VecDense
}

// Kernel is a covariance function over discrete output indices.
type Kernel interface {
	// Dimensionality of the continuous covariate.
	InputDim() int

	// Recompute cached quantities after a parameter mutation. Must be
	// called after every mutation and before any subsequent evaluation.
	ParametersChanged()

	// Covariance matrix between index vectors X and X2. A nil X2 means
	// K(X, X), which is symmetric.
	K(X, X2 []int) (*mat.Dense, error)

	// Diagonal of K(X, X), computed directly.
	Kdiag(X []int) (*mat.VecDense, error)

	// Gradient of a scalar loss w.r.t. the kernel parameters, given the
	// loss gradient w.r.t. each entry of K(X, X2).
	UpdateGradientsFull(dLdK mat.Matrix, X, X2 []int) (*Grads, error)

	// Same, given the loss gradient w.r.t. each entry of Kdiag(X).
	UpdateGradientsDiag(dLdKdiag []float64, X []int) (*Grads, error)

	// Gradient of the loss w.r.t. the continuous covariate X.
	GradientsX(dLdK mat.Matrix, X, X2 *mat.Dense) *mat.Dense

	// Same, for the diagonal-only evaluation.
	GradientsXDiag(dLdKdiag []float64, X *mat.Dense) *mat.Dense
}
