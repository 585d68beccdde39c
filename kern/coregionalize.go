package kern

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Yannicked/GPy/param"
	"github.com/Yannicked/GPy/utils"
)

var _ Kernel = (*Coregionalize)(nil) // Check that Coregionalize respects the Kernel interface.

// Coregionalize is the covariance function of an intrinsic/linear
// coregionalization model. The covariance between output channels a and b
// is B[a, b], where
//
//	B = W W^T + diag(kappa)
//
// W is a low-rank factor coupling the channels and kappa lets each channel
// keep some independent variance. Inputs to K and Kdiag are not points in
// covariate space but integer indices in [0, output_dim) identifying the
// output channel of each observation.
type Coregionalize struct {
	inputDim  int
	outputDim int
	rank      int

	w     *param.Param
	kappa *param.Param

	// Cached B = W W^T + diag(kappa); valid until the next parameter
	// mutation, refreshed by ParametersChanged.
	b *mat.Dense
}

// NewCoregionalize creates a coregionalization kernel over outputDim
// channels with a factor of width rank. A nil w is initialized with
// independent N(0, (0.5/sqrt(rank))^2) draws, a nil kappa with 0.5
// everywhere. Supplied parameters must have shape (outputDim, rank) and
// length outputDim respectively.
func NewCoregionalize(inputDim, outputDim, rank int, w *mat.Dense, kappa []float64) (*Coregionalize, error) {
	if outputDim <= 0 || rank <= 0 {
		return nil, fmt.Errorf("%w: output_dim=%d, rank=%d", ErrInvalidDim, outputDim, rank)
	}
	if rank > outputDim {
		slog.Warn("kern: unusual choice of rank, it should normally be less than output_dim",
			"rank", rank, "output_dim", outputDim)
	}

	wData := make([]float64, outputDim*rank)
	if w == nil {
		norm := distuv.Normal{Mu: 0.0, Sigma: 0.5 / math.Sqrt(float64(rank))}
		for i := range wData {
			wData[i] = norm.Rand()
		}
	} else {
		r, c := w.Dims()
		if r != outputDim || c != rank {
			return nil, fmt.Errorf("%w: W is %dx%d, want %dx%d",
				ErrShapeMismatch, r, c, outputDim, rank)
		}
		for i := 0; i < outputDim; i++ {
			for j := 0; j < rank; j++ {
				wData[i*rank+j] = w.At(i, j)
			}
		}
	}

	kData := make([]float64, outputDim)
	if kappa == nil {
		for i := range kData {
			kData[i] = 0.5
		}
	} else {
		if len(kappa) != outputDim {
			return nil, fmt.Errorf("%w: kappa has length %d, want %d",
				ErrShapeMismatch, len(kappa), outputDim)
		}
		copy(kData, kappa)
	}

	k := &Coregionalize{
		inputDim:  inputDim,
		outputDim: outputDim,
		rank:      rank,
		w:         param.New("W", outputDim, rank, wData, nil),
		kappa:     param.New("kappa", outputDim, 1, kData, param.Logexp{}),
	}
	k.ParametersChanged()
	return k, nil
}

func (k *Coregionalize) InputDim() int {
	return k.inputDim
}

func (k *Coregionalize) OutputDim() int {
	return k.outputDim
}

func (k *Coregionalize) Rank() int {
	return k.rank
}

// W returns the factor parameter. The optimizer mutates it in place and
// must call ParametersChanged afterwards.
func (k *Coregionalize) W() *param.Param {
	return k.w
}

// Kappa returns the diagonal parameter (positivity-constrained).
func (k *Coregionalize) Kappa() *param.Param {
	return k.kappa
}

// B returns a copy of the cached output-covariance matrix.
func (k *Coregionalize) B() *mat.Dense {
	return mat.DenseCopyOf(k.b)
}

// wMat views the factor parameter's backing slice as an (outputDim, rank)
// matrix without copying.
func (k *Coregionalize) wMat() *mat.Dense {
	return mat.NewDense(k.outputDim, k.rank, k.w.Values())
}

// ParametersChanged recomputes the cached B.
func (k *Coregionalize) ParametersChanged() {
	w := k.wMat()
	// B = dot(W, W.T) + diag(kappa)
	b := mat.NewDense(k.outputDim, k.outputDim, nil)
	b.Mul(w, w.T())
	utils.AddDiag(b, k.kappa.Values())
	k.b = b
}

func (k *Coregionalize) checkIndices(x []int) error {
	// gonum/mat cannot represent 0-sized matrices, so an empty index
	// vector is rejected here rather than left to panic downstream.
	if len(x) == 0 {
		return fmt.Errorf("%w: empty index vector", ErrShapeMismatch)
	}
	for i, v := range x {
		if v < 0 || v >= k.outputDim {
			return fmt.Errorf("%w: index %d at position %d, output_dim=%d",
				ErrIndexOutOfRange, v, i, k.outputDim)
		}
	}
	return nil
}

// K returns the covariance matrix R with R[i, j] = B[X[i], X2[j]]. A nil
// X2 is treated as X, yielding a symmetric matrix.
func (k *Coregionalize) K(X, X2 []int) (*mat.Dense, error) {
	if err := k.checkIndices(X); err != nil {
		return nil, err
	}
	if X2 != nil {
		if err := k.checkIndices(X2); err != nil {
			return nil, err
		}
	}
	if FastPathEnabled() {
		target, err := k.kLoop(X, X2)
		if err == nil {
			return target, nil
		}
		disableFastPath(err)
	}
	return k.kGather(X, X2), nil
}

// kGather is the baseline implementation: a plain gather over B.
func (k *Coregionalize) kGather(X, X2 []int) *mat.Dense {
	if X2 == nil {
		X2 = X
	}
	target := mat.NewDense(len(X), len(X2), nil)
	for i, a := range X {
		for j, b := range X2 {
			target.Set(i, j, k.b.At(a, b))
		}
	}
	return target
}

// Kdiag returns B[X[i], X[i]] for each i, read directly from the diagonal
// of B.
func (k *Coregionalize) Kdiag(X []int) (*mat.VecDense, error) {
	if err := k.checkIndices(X); err != nil {
		return nil, err
	}
	target := mat.NewVecDense(len(X), nil)
	for i, a := range X {
		target.SetVec(i, k.b.At(a, a))
	}
	return target, nil
}

// UpdateGradientsFull computes the gradient of a scalar loss w.r.t. W and
// kappa, given dLdK, the loss gradient w.r.t. each entry of K(X, X2). The
// result is returned and also stored into the parameters' gradient
// accumulators.
func (k *Coregionalize) UpdateGradientsFull(dLdK mat.Matrix, X, X2 []int) (*Grads, error) {
	if err := k.checkIndices(X); err != nil {
		return nil, err
	}
	index2 := X2
	if index2 == nil {
		index2 = X
	} else if err := k.checkIndices(index2); err != nil {
		return nil, err
	}
	if r, c := dLdK.Dims(); r != len(X) || c != len(index2) {
		return nil, fmt.Errorf("%w: dL_dK is %dx%d, want %dx%d",
			ErrShapeMismatch, r, c, len(X), len(index2))
	}

	small := k.gradientReduce(dLdK, X, index2)

	// dkappa = diag(small): the diagonal term of B only touches the
	// diagonal of the covariance.
	dkappa := mat.NewVecDense(k.outputDim, nil)
	for a := 0; a < k.outputDim; a++ {
		dkappa.SetVec(a, small.At(a, a))
	}

	// small += small.T: both orderings of an (a, b) pair contribute,
	// since B is symmetric.
	utils.SymmetrizeInPlace(small)

	// dW = dot(small, W)
	dw := mat.NewDense(k.outputDim, k.rank, nil)
	dw.Mul(small, k.wMat())

	grads := &Grads{DW: dw, DKappa: dkappa}
	k.storeGrads(grads)
	return grads, nil
}

// gradientReduce buckets the upstream gradient into an
// (outputDim, outputDim) matrix: small[a, b] = sum of dLdK[i, j] over all
// (i, j) with X[i]=a, X2[j]=b. Row-major iteration keeps the summation
// order deterministic.
func (k *Coregionalize) gradientReduce(dLdK mat.Matrix, X, X2 []int) *mat.Dense {
	if FastPathEnabled() {
		if rm, ok := dLdK.(mat.RawMatrixer); ok {
			small, err := k.gradientReduceLoop(rm, X, X2)
			if err == nil {
				return small
			}
			disableFastPath(err)
		}
	}
	small := mat.NewDense(k.outputDim, k.outputDim, nil)
	for i, a := range X {
		for j, b := range X2 {
			small.Set(a, b, small.At(a, b)+dLdK.At(i, j))
		}
	}
	return small
}

// UpdateGradientsDiag computes the parameter gradients for the
// diagonal-only evaluation: with s[a] the sum of dLdKdiag over
// observations of channel a,
//
//	dkappa[a] = s[a]
//	dW[a, :]  = 2 s[a] W[a, :]
//
// since B[a, a] = sum_k W[a, k]^2 + kappa[a].
func (k *Coregionalize) UpdateGradientsDiag(dLdKdiag []float64, X []int) (*Grads, error) {
	if err := k.checkIndices(X); err != nil {
		return nil, err
	}
	if len(dLdKdiag) != len(X) {
		return nil, fmt.Errorf("%w: dL_dKdiag has length %d, want %d",
			ErrShapeMismatch, len(dLdKdiag), len(X))
	}

	s := make([]float64, k.outputDim)
	for i, a := range X {
		s[a] += dLdKdiag[i]
	}

	dkappa := mat.NewVecDense(k.outputDim, s)
	dw := mat.NewDense(k.outputDim, k.rank, nil)
	w := k.w.Values()
	for a := 0; a < k.outputDim; a++ {
		for j := 0; j < k.rank; j++ {
			dw.Set(a, j, 2.0*s[a]*w[a*k.rank+j])
		}
	}

	grads := &Grads{DW: dw, DKappa: dkappa}
	k.storeGrads(grads)
	return grads, nil
}

// GradientsX is identically zero: the covariance depends only on the
// discrete output indices, never on the continuous covariate.
func (k *Coregionalize) GradientsX(dLdK mat.Matrix, X, X2 *mat.Dense) *mat.Dense {
	r, c := X.Dims()
	return mat.NewDense(r, c, nil)
}

// GradientsXDiag is identically zero, see GradientsX.
func (k *Coregionalize) GradientsXDiag(dLdKdiag []float64, X *mat.Dense) *mat.Dense {
	r, c := X.Dims()
	return mat.NewDense(r, c, nil)
}

func (k *Coregionalize) storeGrads(g *Grads) {
	gw := k.w.Gradient()
	for a := 0; a < k.outputDim; a++ {
		for j := 0; j < k.rank; j++ {
			gw[a*k.rank+j] = g.DW.At(a, j)
		}
	}
	gk := k.kappa.Gradient()
	for a := 0; a < k.outputDim; a++ {
		gk[a] = g.DKappa.AtVec(a)
	}
}
