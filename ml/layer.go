package ml

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

const (
	// InitSmallNormal draws N(0, 1) * 0.01.
	InitSmallNormal WeightInit = iota
	// InitXavier draws uniformly from +-sqrt(6 / (fan_in + fan_out)).
	InitXavier
)

var initMap = map[string]WeightInit{
	"small_normal": InitSmallNormal,
	"xavier":       InitXavier,
}

// -------- TYPE DEFINITIONS -------- //
type WeightInit int

func ParseWeightInit(name string) (WeightInit, error) {
	w, exists := initMap[name]
	if !exists {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInit, name)
	}
	return w, nil
}

// GradientSet holds the calculated gradients for one layer
type GradientSet struct {
	dW *Matrix
	db *Matrix
}

// Layer is one dense layer: output = act(input·W + b).
//
// Forward caches Input, Z and A for the following backward pass, so a
// Layer must not run Forward from two goroutines at once.
type Layer struct {
	Weights *Matrix // in x out
	Biases  *Matrix // 1 x out
	ActType Activation

	// Forward State
	Input *Matrix
	Z     *Matrix
	A     *Matrix

	// Backward State
	dZ    *Matrix
	grads GradientSet
}

// NewLayer allocates a layer with random weights and zero bias.
func NewLayer(inputSize, outputSize int, act Activation, init WeightInit, rng *rand.Rand) (*Layer, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("%w: layer size [%d, %d]", ErrInvalidConfig, inputSize, outputSize)
	}
	if !act.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownActivation, int(act))
	}

	layer := &Layer{
		Weights: NewMatrix(inputSize, outputSize),
		Biases:  NewMatrix(1, outputSize),
		ActType: act,
	}
	switch init {
	case InitXavier:
		layer.Weights.RandomizeXavier(rng)
	case InitSmallNormal:
		layer.Weights.RandomizeSmall(rng)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownInit, int(init))
	}
	layer.allocGradients()
	return layer, nil
}

func (l *Layer) allocGradients() {
	l.grads = GradientSet{
		dW: NewMatrix(l.Weights.rows, l.Weights.cols),
		db: NewMatrix(1, l.Biases.cols),
	}
}

func (l *Layer) InputSize() int  { return l.Weights.rows }
func (l *Layer) OutputSize() int { return l.Weights.cols }

// Forward stores input, computes Z = input·W + b and returns A = act(Z).
// The returned matrix is the layer's cache and is overwritten by the next call.
func (l *Layer) Forward(input *Matrix) (*Matrix, error) {
	if input.cols != l.Weights.rows {
		return nil, &ShapeError{Op: "forward", Layer: -1, Operand: "input", Want: l.Weights.rows, Got: input.cols}
	}
	batchSize, outputDim := input.rows, l.Weights.cols

	l.Input = input
	l.Z = reuse(l.Z, batchSize, outputDim)
	l.A = reuse(l.A, batchSize, outputDim)

	MatMul(input.dense, l.Weights.dense, l.Z)
	l.Z.AddVector(l.Biases)
	l.ActType.apply(l.Z, l.A)
	return l.A, nil
}

// computeGradients fills l.grads from the cached input and l.dZ:
// dW = Inputᵀ·dZ / m, db = colSum(dZ) / m.
func (l *Layer) computeGradients(m float64) {
	MatMul(l.Input.dense.T(), l.dZ.dense, l.grads.dW)
	l.dZ.ColSums(l.grads.db)

	floats.Scale(1.0/m, l.grads.dW.data)
	floats.Scale(1.0/m, l.grads.db.data)
}
