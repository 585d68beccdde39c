package kern

import "errors"

var (
	// ErrInvalidDim indicates a non-positive output dimension or rank.
	ErrInvalidDim = errors.New("kern: dimensions must be positive")
	// ErrShapeMismatch indicates a supplied parameter does not match the
	// expected dimensions.
	ErrShapeMismatch = errors.New("kern: parameter shape mismatch")
	// ErrIndexOutOfRange indicates an output index outside [0, output_dim).
	ErrIndexOutOfRange = errors.New("kern: output index out of range")
)
