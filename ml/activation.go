package ml

import (
	"fmt"
	"math"
)

const (
	ActLinear Activation = iota
	ActSigmoid
	ActRelu
	ActTanh
	ActSoftmax
)

const (
	LossMSE Loss = iota
	LossCrossEntropy
)

// crossEntropyEps keeps log() away from -inf.
const crossEntropyEps = 1e-15

var activationMap = map[string]Activation{
	"linear":  ActLinear,
	"sigmoid": ActSigmoid,
	"relu":    ActRelu,
	"tanh":    ActTanh,
	"softmax": ActSoftmax,
}

var lossMap = map[string]Loss{
	"mse":           LossMSE,
	"cross_entropy": LossCrossEntropy,
}

// -------- TYPE DEFINITIONS -------- //
type Activation int
type Loss int

// ParseActivation maps a config tag to an Activation.
func ParseActivation(name string) (Activation, error) {
	act, exists := activationMap[name]
	if !exists {
		return 0, fmt.Errorf("%w: %q", ErrUnknownActivation, name)
	}
	return act, nil
}

func (a Activation) String() string {
	for name, act := range activationMap {
		if act == a {
			return name
		}
	}
	return fmt.Sprintf("activation(%d)", int(a))
}

func (a Activation) valid() bool {
	return a >= ActLinear && a <= ActSoftmax
}

// ParseLoss maps a config tag to a Loss.
func ParseLoss(name string) (Loss, error) {
	l, exists := lossMap[name]
	if !exists {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLoss, name)
	}
	return l, nil
}

func (l Loss) String() string {
	switch l {
	case LossMSE:
		return "mse"
	case LossCrossEntropy:
		return "cross_entropy"
	}
	return fmt.Sprintf("loss(%d)", int(l))
}

func (l Loss) valid() bool {
	return l == LossMSE || l == LossCrossEntropy
}

// ------- SCALAR FUNCTIONS ------- //
func Sigmoid(x float64) float64 {
	x = math.Max(-500, math.Min(500, x))
	return 1.0 / (1.0 + math.Exp(-x))
}

func SigmoidDerivative(x float64) float64 {
	s := Sigmoid(x)
	return s * (1 - s)
}

func Relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func ReluDerivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

func Tanh(x float64) float64 {
	return math.Tanh(x)
}

func TanhDerivative(x float64) float64 {
	t := math.Tanh(x)
	return 1 - t*t
}

func one(float64) float64 { return 1 }

// SoftmaxRows applies softmax to each row of the matrix in place.
func SoftmaxRows(m *Matrix) {
	for i := 0; i < m.rows; i++ {
		row := m.data[i*m.cols : (i+1)*m.cols]
		maxVal := math.Inf(-1)
		for _, v := range row {
			if v > maxVal {
				maxVal = v
			}
		}
		sum := 0.0
		for j, v := range row {
			e := math.Exp(v - maxVal)
			row[j] = e
			sum += e
		}
		for j := range row {
			row[j] /= sum
		}
	}
}

// apply writes act(z) into out. out and z must have the same shape.
func (a Activation) apply(z, out *Matrix) {
	copy(out.data, z.data)
	switch a {
	case ActSoftmax:
		SoftmaxRows(out)
	case ActRelu:
		out.ApplyFunc(Relu)
	case ActSigmoid:
		out.ApplyFunc(Sigmoid)
	case ActTanh:
		out.ApplyFunc(Tanh)
	case ActLinear:
	}
}

// derivative returns the elementwise derivative evaluated at z.
func (a Activation) derivative() (func(float64) float64, error) {
	switch a {
	case ActSigmoid:
		return SigmoidDerivative, nil
	case ActRelu:
		return ReluDerivative, nil
	case ActTanh:
		return TanhDerivative, nil
	case ActLinear:
		return one, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDerivative, a)
}

// ------- LOSSES ------- //

// CrossEntropyLoss returns -mean(truth * log(clip(pred))) over all elements.
func CrossEntropyLoss(pred, truth *Matrix) float64 {
	total := 0.0
	for i, p := range pred.data {
		p = math.Max(crossEntropyEps, math.Min(1-crossEntropyEps, p))
		total += truth.data[i] * math.Log(p)
	}
	return -total / float64(len(pred.data))
}

// MeanSquaredError returns mean((truth - pred)^2) over all elements.
func MeanSquaredError(pred, truth *Matrix) float64 {
	total := 0.0
	for i, p := range pred.data {
		d := truth.data[i] - p
		total += d * d
	}
	return total / float64(len(pred.data))
}
