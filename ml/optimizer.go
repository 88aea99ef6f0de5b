package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	OptSGD      OptimizerType = "sgd"
	OptMomentum OptimizerType = "momentum"
	OptAdam     OptimizerType = "adam"
)

// Default settings generally recommended for Adam
var DefaultAdamConfig = AdamConfig{
	Beta1:   0.9,
	Beta2:   0.999,
	Epsilon: 1e-8,
}

type OptimizerType string

type AdamConfig struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

type layerState struct {
	mW, vW *Matrix
	mB, vB *Matrix
}

// Optimizer applies one layer's gradients to its parameters. Backward calls
// Update once per layer, last layer first, during the same sweep.
type Optimizer interface {
	Update(layerIdx int, layer *Layer, grads GradientSet)
}

func ParseOptimizer(name string) (OptimizerType, error) {
	switch t := OptimizerType(name); t {
	case OptSGD, OptMomentum, OptAdam:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOptimizer, name)
}

// NewOptimizer builds an optimizer with default hyperparameters.
func NewOptimizer(kind OptimizerType, lr float64) (Optimizer, error) {
	switch kind {
	case OptSGD, "":
		return &SGDOptimizer{LearningRate: lr}, nil
	case OptMomentum:
		return &MomentumOptimizer{LearningRate: lr, Mu: 0.9}, nil
	case OptAdam:
		return &AdamOptimizer{cfg: DefaultAdamConfig, LearningRate: lr}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOptimizer, string(kind))
}

// state grows the per-layer slot list on demand.
func state(states []*layerState, idx int) ([]*layerState, *layerState) {
	for len(states) <= idx {
		states = append(states, nil)
	}
	if states[idx] == nil {
		states[idx] = &layerState{}
	}
	return states, states[idx]
}

// ------ SGD OPTIMIZER METHODS ------ //
type SGDOptimizer struct {
	LearningRate float64
}

// Update applies W -= lr*dW, b -= lr*db.
func (opt *SGDOptimizer) Update(_ int, layer *Layer, grads GradientSet) {
	floats.AddScaled(layer.Weights.data, -opt.LearningRate, grads.dW.data)
	floats.AddScaled(layer.Biases.data, -opt.LearningRate, grads.db.data)
}

// ------ MOMENTUM OPTIMIZER METHODS ------ //
type MomentumOptimizer struct {
	LearningRate float64
	Mu           float64 // Momentum Factor (usually 0.9)

	layerStates []*layerState
}

func (opt *MomentumOptimizer) Update(layerIdx int, layer *Layer, grads GradientSet) {
	var st *layerState
	opt.layerStates, st = state(opt.layerStates, layerIdx)
	if st.mW == nil {
		st.mW = NewMatrix(layer.Weights.rows, layer.Weights.cols)
		st.mB = NewMatrix(layer.Biases.rows, layer.Biases.cols)
	}

	// v = mu * v - lr * grad
	// w = w + v
	applyMomentum := func(params, grads, velocity []float64) {
		for i := range params {
			velocity[i] = (opt.Mu * velocity[i]) - (opt.LearningRate * grads[i])
			params[i] += velocity[i]
		}
	}
	applyMomentum(layer.Weights.data, grads.dW.data, st.mW.data)
	applyMomentum(layer.Biases.data, grads.db.data, st.mB.data)
}

// ------ ADAM OPTIMIZER METHODS ------ //
type AdamOptimizer struct {
	cfg          AdamConfig
	LearningRate float64

	layerStates []*layerState
	timeSteps   []int // 't' in the Adam paper, per layer
}

func (opt *AdamOptimizer) Update(layerIdx int, layer *Layer, grads GradientSet) {
	var st *layerState
	opt.layerStates, st = state(opt.layerStates, layerIdx)
	if st.mW == nil {
		st.mW = NewMatrix(layer.Weights.rows, layer.Weights.cols)
		st.vW = NewMatrix(layer.Weights.rows, layer.Weights.cols)
		st.mB = NewMatrix(layer.Biases.rows, layer.Biases.cols)
		st.vB = NewMatrix(layer.Biases.rows, layer.Biases.cols)
	}
	for len(opt.timeSteps) <= layerIdx {
		opt.timeSteps = append(opt.timeSteps, 0)
	}
	opt.timeSteps[layerIdx]++
	t := float64(opt.timeSteps[layerIdx])

	beta1, beta2, eps := opt.cfg.Beta1, opt.cfg.Beta2, opt.cfg.Epsilon
	correction1 := 1.0 - math.Pow(beta1, t)
	correction2 := 1.0 - math.Pow(beta2, t)

	apply := func(params, grads, m, v []float64) {
		for i := range params {
			g := grads[i]
			m[i] = beta1*m[i] + (1.0-beta1)*g
			v[i] = beta2*v[i] + (1.0-beta2)*(g*g)

			mHat := m[i] / correction1
			vHat := v[i] / correction2
			params[i] -= opt.LearningRate * mHat / (math.Sqrt(vHat) + eps)
		}
	}
	apply(layer.Weights.data, grads.dW.data, st.mW.data, st.vW.data)
	apply(layer.Biases.data, grads.db.data, st.mB.data, st.vB.data)
}
