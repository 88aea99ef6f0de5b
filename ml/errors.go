package ml

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrEmptyNetwork      = errors.New("network has no layers")
	ErrShapeMismatch     = errors.New("shape mismatch")
	ErrNoDerivative      = errors.New("activation has no standalone derivative")
	ErrUnknownActivation = errors.New("unknown activation")
	ErrUnknownLoss       = errors.New("unknown loss")
	ErrUnknownOptimizer  = errors.New("unknown optimizer")
	ErrUnknownInit       = errors.New("unknown weight init")
	ErrEmptyDataset      = errors.New("empty dataset")
	ErrCorruptModel      = errors.New("corrupt model")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// ShapeError reports which operand failed to chain.
type ShapeError struct {
	Op      string // Operation that detected the mismatch (e.g. "forward")
	Layer   int    // Layer index, -1 when the input itself is wrong
	Want    int    // Expected column count
	Got     int    // Actual column count
	Operand string // What was checked (e.g. "input", "target")
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Layer >= 0 {
		return fmt.Sprintf("%s: layer %d %s has %d columns, want %d", e.Op, e.Layer, e.Operand, e.Got, e.Want)
	}
	return fmt.Sprintf("%s: %s has %d columns, want %d", e.Op, e.Operand, e.Got, e.Want)
}

// Unwrap lets errors.Is match ErrShapeMismatch.
func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }
