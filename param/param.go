// Package param provides the minimal optimizable-parameter container that
// kernels expose to an external optimizer: a named block of values with a
// matching gradient accumulator and an optional positivity transform.
package param

import (
	"fmt"
	"math"
)

// Transform maps between the constrained model space a parameter lives in
// and the unconstrained space an optimizer works in.
type Transform interface {
	// Forward maps an optimizer-space value to model space.
	Forward(x float64) float64
	// Backward maps a model-space value to optimizer space.
	Backward(y float64) float64
	// Gradfactor converts a model-space gradient at value y into the
	// optimizer-space gradient.
	Gradfactor(y, grad float64) float64
}

// Logexp constrains a parameter to be strictly positive via the softplus
// map y = log(1 + e^x).
type Logexp struct{}

// Beyond this magnitude log(1+e^x) is x (resp. e^x is 0) to within float64
// precision, and the naive formulas overflow.
const limVal = 36.0

func (Logexp) Forward(x float64) float64 {
	if x > limVal {
		return x
	}
	return math.Log1p(math.Exp(x))
}

func (Logexp) Backward(y float64) float64 {
	if y > limVal {
		return y
	}
	return math.Log(math.Expm1(y))
}

func (Logexp) Gradfactor(y, grad float64) float64 {
	if y > limVal {
		return grad
	}
	// dy/dx = sigmoid(x) = 1 - e^(-y)
	return grad * (1.0 - math.Exp(-y))
}

// Param is a named, dense, row-major block of parameter values together
// with a gradient accumulator of the same shape. Mutating the values does
// not recompute anything downstream; the owner's ParametersChanged must be
// called afterwards.
type Param struct {
	name      string
	rows      int
	cols      int
	values    []float64
	gradient  []float64
	transform Transform
}

// New creates a parameter of the given shape. A nil values slice allocates
// zeros; otherwise its length must equal rows*cols (the slice is adopted,
// not copied). transform may be nil for a free parameter.
func New(name string, rows, cols int, values []float64, transform Transform) *Param {
	if values == nil {
		values = make([]float64, rows*cols)
	}
	if len(values) != rows*cols {
		panic(fmt.Sprintf("param: %s has %d values, want %d", name, len(values), rows*cols))
	}
	return &Param{
		name:      name,
		rows:      rows,
		cols:      cols,
		values:    values,
		gradient:  make([]float64, rows*cols),
		transform: transform,
	}
}

func (p *Param) Name() string {
	return p.name
}

func (p *Param) Dims() (rows, cols int) {
	return p.rows, p.cols
}

// Values returns the live backing slice, row-major.
func (p *Param) Values() []float64 {
	return p.values
}

func (p *Param) At(i, j int) float64 {
	return p.values[i*p.cols+j]
}

func (p *Param) Set(i, j int, v float64) {
	p.values[i*p.cols+j] = v
}

// Gradient returns the live gradient accumulator, row-major.
func (p *Param) Gradient() []float64 {
	return p.gradient
}

// SetGradient copies g into the gradient accumulator.
func (p *Param) SetGradient(g []float64) {
	if len(g) != len(p.gradient) {
		panic(fmt.Sprintf("param: %s gradient has %d values, want %d", p.name, len(g), len(p.gradient)))
	}
	copy(p.gradient, g)
}

func (p *Param) ZeroGrad() {
	for i := range p.gradient {
		p.gradient[i] = 0.0
	}
}

// Transform returns the attached transform, or nil for a free parameter.
func (p *Param) Transform() Transform {
	return p.transform
}

// OptValues returns the parameter values mapped to optimizer space.
func (p *Param) OptValues() []float64 {
	out := make([]float64, len(p.values))
	if p.transform == nil {
		copy(out, p.values)
		return out
	}
	for i, v := range p.values {
		out[i] = p.transform.Backward(v)
	}
	return out
}

// SetOptValues maps optimizer-space values into model space and stores
// them. The length must match the parameter size.
func (p *Param) SetOptValues(x []float64) {
	if len(x) != len(p.values) {
		panic(fmt.Sprintf("param: %s given %d values, want %d", p.name, len(x), len(p.values)))
	}
	if p.transform == nil {
		copy(p.values, x)
		return
	}
	for i, v := range x {
		p.values[i] = p.transform.Forward(v)
	}
}

// OptGradient returns the gradient accumulator mapped to optimizer space.
func (p *Param) OptGradient() []float64 {
	out := make([]float64, len(p.gradient))
	if p.transform == nil {
		copy(out, p.gradient)
		return out
	}
	for i, g := range p.gradient {
		out[i] = p.transform.Gradfactor(p.values[i], g)
	}
	return out
}
