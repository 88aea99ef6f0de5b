package ml

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRNG() *rand.Rand { return rand.New(rand.NewPCG(7, 11)) }

func TestNewLayer(t *testing.T) {
	layer, err := NewLayer(4, 3, ActSigmoid, InitSmallNormal, testRNG())
	require.NoError(t, err)

	assert.Equal(t, 4, layer.Weights.Rows())
	assert.Equal(t, 3, layer.Weights.Cols())
	assert.Equal(t, 1, layer.Biases.Rows())
	assert.Equal(t, 3, layer.Biases.Cols())
	assert.Equal(t, ActSigmoid, layer.ActType)

	for _, b := range layer.Biases.Data() {
		assert.Equal(t, 0.0, b)
	}
	for _, w := range layer.Weights.Data() {
		assert.Less(t, w, 0.1, "small init stays narrow")
		assert.Greater(t, w, -0.1)
	}
}

func TestNewLayerRejectsBadSizes(t *testing.T) {
	_, err := NewLayer(0, 3, ActRelu, InitSmallNormal, testRNG())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewLayer(3, -1, ActRelu, InitSmallNormal, testRNG())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewLayer(3, 3, Activation(99), InitSmallNormal, testRNG())
	assert.ErrorIs(t, err, ErrUnknownActivation)
}

func TestLayerForward(t *testing.T) {
	layer, err := NewLayer(2, 2, ActSigmoid, InitSmallNormal, testRNG())
	require.NoError(t, err)
	copy(layer.Weights.Data(), []float64{0.1, 0.2, 0.3, 0.4})
	copy(layer.Biases.Data(), []float64{0.1, 0.1})

	input := mustMatrix(t, [][]float64{{1.0, 2.0}})
	out, err := layer.Forward(input)
	require.NoError(t, err)

	// z = [1*0.1 + 2*0.3 + 0.1, 1*0.2 + 2*0.4 + 0.1]
	assert.InDeltaSlice(t, []float64{0.8, 1.1}, layer.Z.Data(), 1e-12)
	assert.InDeltaSlice(t, []float64{Sigmoid(0.8), Sigmoid(1.1)}, out.Data(), 1e-12)
	assert.Same(t, input, layer.Input)
}

func TestLayerForwardCachesResizeWithBatch(t *testing.T) {
	layer, err := NewLayer(3, 2, ActRelu, InitXavier, testRNG())
	require.NoError(t, err)

	big := NewMatrix(8, 3)
	_, err = layer.Forward(big)
	require.NoError(t, err)
	assert.Equal(t, 8, layer.A.Rows())

	small := NewMatrix(3, 3)
	out, err := layer.Forward(small)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Rows())
	assert.Len(t, out.Data(), 6)
}

func TestLayerForwardShapeMismatch(t *testing.T) {
	layer, err := NewLayer(3, 2, ActRelu, InitSmallNormal, testRNG())
	require.NoError(t, err)

	_, err = layer.Forward(NewMatrix(1, 4))
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, 3, shapeErr.Want)
	assert.Equal(t, 4, shapeErr.Got)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestParseWeightInit(t *testing.T) {
	w, err := ParseWeightInit("xavier")
	require.NoError(t, err)
	assert.Equal(t, InitXavier, w)

	_, err = ParseWeightInit("he")
	assert.ErrorIs(t, err, ErrUnknownInit)
}
