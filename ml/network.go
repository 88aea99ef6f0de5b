package ml

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Network is an ordered stack of dense layers trained with mini-batch
// gradient descent.
//
// A Network is not safe for concurrent use: Forward rewrites every layer's
// cache. Own one Network per goroutine or guard it with a lock.
type Network struct {
	Layers       []*Layer
	LearningRate float64
	Loss         Loss

	init      WeightInit
	optKind   OptimizerType
	optimizer Optimizer
	rng       *rand.Rand
}

type Option func(*Network)

func WithLearningRate(lr float64) Option {
	return func(nw *Network) { nw.LearningRate = lr }
}

func WithLoss(loss Loss) Option {
	return func(nw *Network) { nw.Loss = loss }
}

// WithSeed makes weight init and shuffling reproducible.
func WithSeed(seed uint64) Option {
	return func(nw *Network) { nw.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func WithInit(init WeightInit) Option {
	return func(nw *Network) { nw.init = init }
}

func WithOptimizer(kind OptimizerType) Option {
	return func(nw *Network) { nw.optKind = kind }
}

// Neural Network Builder
func NewNetwork(opts ...Option) (*Network, error) {
	nw := &Network{
		LearningRate: 0.01,
		Loss:         LossMSE,
		init:         InitSmallNormal,
		optKind:      OptSGD,
	}
	for _, opt := range opts {
		opt(nw)
	}
	if nw.rng == nil {
		nw.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if nw.LearningRate <= 0 {
		return nil, fmt.Errorf("%w: learning rate %v", ErrInvalidConfig, nw.LearningRate)
	}
	if !nw.Loss.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLoss, int(nw.Loss))
	}

	optimizer, err := NewOptimizer(nw.optKind, nw.LearningRate)
	if err != nil {
		return nil, err
	}
	nw.optimizer = optimizer
	return nw, nil
}

// Build creates a network from a topology: sizes[i] -> sizes[i+1] with acts[i].
func Build(sizes []int, acts []Activation, opts ...Option) (*Network, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("%w: need at least input and output sizes, got %v", ErrInvalidConfig, sizes)
	}
	if len(acts) != len(sizes)-1 {
		return nil, fmt.Errorf("%w: %d activations for %d layers", ErrInvalidConfig, len(acts), len(sizes)-1)
	}
	nw, err := NewNetwork(opts...)
	if err != nil {
		return nil, err
	}
	for i, act := range acts {
		if err := nw.AddLayer(sizes[i], sizes[i+1], act); err != nil {
			return nil, err
		}
	}
	return nw, nil
}

// -------- NEURAL NETWORK METHODS -------- //

// AddLayer appends a dense layer. Chaining with the previous layer is
// checked by Forward, not here.
func (nw *Network) AddLayer(inputSize, outputSize int, act Activation) error {
	layer, err := NewLayer(inputSize, outputSize, act, nw.init, nw.rng)
	if err != nil {
		return err
	}
	nw.Layers = append(nw.Layers, layer)
	return nil
}

func (nw *Network) InputSize() int {
	if len(nw.Layers) == 0 {
		return 0
	}
	return nw.Layers[0].InputSize()
}

func (nw *Network) OutputSize() int {
	if len(nw.Layers) == 0 {
		return 0
	}
	return nw.Layers[len(nw.Layers)-1].OutputSize()
}

// checkChain verifies out(i) == in(i+1) for every adjacent pair.
func (nw *Network) checkChain() error {
	if len(nw.Layers) == 0 {
		return ErrEmptyNetwork
	}
	for i := 1; i < len(nw.Layers); i++ {
		if got, want := nw.Layers[i-1].OutputSize(), nw.Layers[i].InputSize(); got != want {
			return &ShapeError{Op: "chain", Layer: i, Operand: "previous layer output", Want: want, Got: got}
		}
	}
	return nil
}

// Forward feeds the batch X through every layer and returns the last
// layer's output. The result aliases the output layer's cache.
func (nw *Network) Forward(X *Matrix) (*Matrix, error) {
	if len(nw.Layers) == 0 {
		return nil, ErrEmptyNetwork
	}
	if X == nil || X.rows == 0 {
		return nil, ErrEmptyDataset
	}

	activation := X
	for i, layer := range nw.Layers {
		if activation.cols != layer.InputSize() {
			operand := "input"
			if i > 0 {
				operand = "previous layer output"
			}
			return nil, &ShapeError{Op: "forward", Layer: i, Operand: operand, Want: layer.InputSize(), Got: activation.cols}
		}
		out, err := layer.Forward(activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		activation = out
	}
	return activation, nil
}

// Predict runs Forward and returns a copy of the output that the caller may keep.
func (nw *Network) Predict(X *Matrix) (*Matrix, error) {
	out, err := nw.Forward(X)
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// ComputeLoss dispatches to MSE or cross-entropy per the network's loss kind.
func (nw *Network) ComputeLoss(pred, truth *Matrix) (float64, error) {
	if pred.rows != truth.rows || pred.cols != truth.cols {
		return 0, fmt.Errorf("%w: prediction [%d, %d] vs target [%d, %d]",
			ErrShapeMismatch, pred.rows, pred.cols, truth.rows, truth.cols)
	}
	switch nw.Loss {
	case LossMSE:
		return MeanSquaredError(pred, truth), nil
	case LossCrossEntropy:
		return CrossEntropyLoss(pred, truth), nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownLoss, int(nw.Loss))
}

// checkDerivatives fails before any weight moves if backprop would need a
// derivative that does not exist.
func (nw *Network) checkDerivatives() error {
	last := len(nw.Layers) - 1
	for i, layer := range nw.Layers {
		if i == last && layer.ActType == ActSoftmax && nw.Loss == LossCrossEntropy {
			continue
		}
		if _, err := layer.ActType.derivative(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

// Backward runs one gradient step over the batch (X, Y).
//
// Each layer's gradients come from its own forward cache, and the error
// signal for the previous layer is propagated through this layer's weights
// before the optimizer touches them.
func (nw *Network) Backward(X, Y *Matrix) error {
	if len(nw.Layers) == 0 {
		return ErrEmptyNetwork
	}
	if err := nw.checkDerivatives(); err != nil {
		return err
	}

	if Y == nil {
		return ErrEmptyDataset
	}
	pred, err := nw.Forward(X)
	if err != nil {
		return err
	}
	if Y.rows != pred.rows {
		return fmt.Errorf("%w: %d targets for %d inputs", ErrShapeMismatch, Y.rows, pred.rows)
	}
	if Y.cols != pred.cols {
		return &ShapeError{Op: "backward", Layer: -1, Operand: "target", Want: pred.cols, Got: Y.cols}
	}

	m := float64(X.rows)
	lastLayerIdx := len(nw.Layers) - 1
	lastLayer := nw.Layers[lastLayerIdx]
	lastLayer.dZ = reuse(lastLayer.dZ, pred.rows, pred.cols)

	// 1. Output Error
	if lastLayer.ActType == ActSoftmax && nw.Loss == LossCrossEntropy {
		// softmax + cross-entropy collapses to pred - y
		floats.SubTo(lastLayer.dZ.data, pred.data, Y.data)
	} else {
		deriv, _ := lastLayer.ActType.derivative()
		zData := lastLayer.Z.data
		for k, p := range pred.data {
			var dLoss float64
			if nw.Loss == LossMSE {
				dLoss = -2 * (Y.data[k] - p) / m
			} else {
				dLoss = p - Y.data[k]
			}
			lastLayer.dZ.data[k] = dLoss * deriv(zData[k])
		}
	}

	// 2. Backprop Loop
	for i := lastLayerIdx; i >= 0; i-- {
		layer := nw.Layers[i]
		layer.computeGradients(m)

		// --- CALC dZ_prev ---
		if i > 0 {
			prevLayer := nw.Layers[i-1]
			prevLayer.dZ = reuse(prevLayer.dZ, layer.dZ.rows, prevLayer.OutputSize())
			MatMul(layer.dZ.dense, layer.Weights.dense.T(), prevLayer.dZ)

			deriv, _ := prevLayer.ActType.derivative()
			zData := prevLayer.Z.data
			dZPrevData := prevLayer.dZ.data
			for k := range dZPrevData {
				dZPrevData[k] *= deriv(zData[k])
			}
		}

		nw.optimizer.Update(i, layer, layer.grads)
	}
	return nil
}
