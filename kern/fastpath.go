package kern

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// The loop implementations of K and the gradient reduction index raw
// backing slices directly. They are guarded process-wide: the first
// runtime failure on either path permanently downgrades every kernel in
// the process to the bounds-checked gather implementations.
var fastPath atomic.Bool

func init() {
	fastPath.Store(true)
}

// FastPathEnabled reports whether the loop implementations are in use.
func FastPathEnabled() bool {
	return fastPath.Load()
}

// SetFastPath enables or disables the loop implementations. Mainly useful
// for tests and benchmarks; a runtime failure still downgrades permanently.
func SetFastPath(enabled bool) {
	fastPath.Store(enabled)
}

func disableFastPath(cause error) {
	if fastPath.CompareAndSwap(true, false) {
		slog.Warn("kern: fast path failed, falling back to gather implementation",
			"cause", cause)
	}
}

// kLoop evaluates K over raw slices. The symmetric case fills i <= j and
// mirrors, which equals the gather definition exactly since both entries
// are the same read of B.
func (k *Coregionalize) kLoop(X, X2 []int) (target *mat.Dense, err error) {
	defer func() {
		if r := recover(); r != nil {
			target = nil
			err = fmt.Errorf("kern: K loop path: %v", r)
		}
	}()
	b := k.b.RawMatrix()
	if X2 == nil {
		n := len(X)
		target = mat.NewDense(n, n, nil)
		t := target.RawMatrix()
		for i := 0; i < n; i++ {
			bRow := b.Data[X[i]*b.Stride : X[i]*b.Stride+b.Cols]
			t.Data[i*t.Stride+i] = bRow[X[i]]
			for j := 0; j < i; j++ {
				v := bRow[X[j]]
				t.Data[i*t.Stride+j] = v
				t.Data[j*t.Stride+i] = v
			}
		}
		return target, nil
	}
	target = mat.NewDense(len(X), len(X2), nil)
	t := target.RawMatrix()
	for i := 0; i < len(X); i++ {
		bRow := b.Data[X[i]*b.Stride : X[i]*b.Stride+b.Cols]
		tRow := t.Data[i*t.Stride : i*t.Stride+t.Cols]
		for j, c := range X2 {
			tRow[j] = bRow[c]
		}
	}
	return target, nil
}

// gradientReduceLoop performs the scatter-reduce over raw slices. It
// iterates (i, j) row-major, the same summation order as the baseline, so
// the two paths agree bit-for-bit.
func (k *Coregionalize) gradientReduceLoop(dLdK mat.RawMatrixer, X, X2 []int) (small *mat.Dense, err error) {
	defer func() {
		if r := recover(); r != nil {
			small = nil
			err = fmt.Errorf("kern: gradient reduce loop path: %v", r)
		}
	}()
	d := dLdK.RawMatrix()
	small = mat.NewDense(k.outputDim, k.outputDim, nil)
	s := small.RawMatrix()
	for i, a := range X {
		dRow := d.Data[i*d.Stride : i*d.Stride+d.Cols]
		sRow := s.Data[a*s.Stride : a*s.Stride+s.Cols]
		for j, b := range X2 {
			sRow[b] += dRow[j]
		}
	}
	return small, nil
}
