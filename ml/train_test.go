package ml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchRecorder counts optimizer calls and remembers each batch size.
type batchRecorder struct {
	inner   Optimizer
	batches []int
}

func (r *batchRecorder) Update(layerIdx int, layer *Layer, grads GradientSet) {
	if layerIdx == 0 {
		r.batches = append(r.batches, layer.Input.Rows())
	}
	r.inner.Update(layerIdx, layer, grads)
}

func orDataset(t *testing.T) (*Matrix, *Matrix) {
	X := mustMatrix(t, [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}})
	Y := mustMatrix(t, [][]float64{{0}, {1}, {1}, {1}})
	return X, Y
}

func TestTrainLearnsOR(t *testing.T) {
	nw, err := Build([]int{2, 4, 1}, []Activation{ActSigmoid, ActSigmoid},
		WithLearningRate(0.05), WithOptimizer(OptAdam), WithInit(InitXavier), WithSeed(21))
	require.NoError(t, err)

	X, Y := orDataset(t)
	history, err := nw.Train(context.Background(), X, Y, TrainingConfig{Epochs: 500, BatchSize: 4})
	require.NoError(t, err)
	require.Len(t, history, 500)

	assert.Less(t, history[len(history)-1], history[0])
	assert.Less(t, history[len(history)-1], 0.05)

	out, err := nw.Predict(X)
	require.NoError(t, err)
	assert.Less(t, out.At(0, 0), 0.5)
	for r := 1; r < 4; r++ {
		assert.Greater(t, out.At(r, 0), 0.5, "row %d", r)
	}
}

func TestTrainXOR(t *testing.T) {
	nw, err := Build([]int{2, 8, 1}, []Activation{ActSigmoid, ActSigmoid},
		WithLearningRate(0.05), WithOptimizer(OptAdam), WithInit(InitXavier), WithSeed(8))
	require.NoError(t, err)

	X := mustMatrix(t, [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}})
	Y := mustMatrix(t, [][]float64{{0}, {1}, {1}, {0}})
	history, err := nw.Train(context.Background(), X, Y, TrainingConfig{Epochs: 1500, BatchSize: 4})
	require.NoError(t, err)

	assert.Less(t, history[len(history)-1], history[0])
}

func TestTrainPlainSGDReducesLoss(t *testing.T) {
	nw, err := Build([]int{9, 27, 18, 9}, []Activation{ActRelu, ActRelu, ActSigmoid},
		WithLearningRate(0.5), WithSeed(3))
	require.NoError(t, err)

	X := NewMatrix(12, 9)
	Y := NewMatrix(12, 9)
	for r := 0; r < 12; r++ {
		X.Set(r, r%9, 1)
		Y.Set(r, (r+4)%9, 1)
	}

	history, err := nw.Train(context.Background(), X, Y, TrainingConfig{Epochs: 40, BatchSize: 5})
	require.NoError(t, err)
	require.Len(t, history, 40)
	assert.Less(t, history[39], history[0])
}

func TestTrainIncludesPartialBatch(t *testing.T) {
	nw, err := Build([]int{2, 1}, []Activation{ActSigmoid}, WithSeed(1))
	require.NoError(t, err)
	rec := &batchRecorder{inner: nw.optimizer}
	nw.optimizer = rec

	X := NewMatrix(5, 2)
	Y := NewMatrix(5, 1)
	_, err = nw.Train(context.Background(), X, Y, TrainingConfig{Epochs: 3, BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1, 2, 2, 1, 2, 2, 1}, rec.batches)
}

func TestTrainBatchLargerThanDataset(t *testing.T) {
	nw, err := Build([]int{2, 1}, []Activation{ActSigmoid}, WithSeed(1))
	require.NoError(t, err)
	rec := &batchRecorder{inner: nw.optimizer}
	nw.optimizer = rec

	X, Y := orDataset(t)
	_, err = nw.Train(context.Background(), X, Y, TrainingConfig{Epochs: 2, BatchSize: 32})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4}, rec.batches)
}

func TestTrainIsReproducibleWithSeed(t *testing.T) {
	run := func() []float64 {
		nw, err := Build([]int{2, 3, 1}, []Activation{ActTanh, ActSigmoid}, WithLearningRate(0.3), WithSeed(77))
		require.NoError(t, err)
		X, Y := orDataset(t)
		history, err := nw.Train(context.Background(), X, Y, TrainingConfig{Epochs: 20, BatchSize: 3})
		require.NoError(t, err)
		return history
	}
	assert.Equal(t, run(), run())
}

func TestTrainCancelled(t *testing.T) {
	nw, err := Build([]int{2, 1}, []Activation{ActSigmoid}, WithSeed(1))
	require.NoError(t, err)
	before := nw.Layers[0].Weights.Clone()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	X, Y := orDataset(t)
	history, err := nw.Train(ctx, X, Y, TrainingConfig{Epochs: 10, BatchSize: 2})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, history)
	assert.Equal(t, before.Data(), nw.Layers[0].Weights.Data())
}

func TestTrainRejectsBadInput(t *testing.T) {
	nw, err := Build([]int{2, 1}, []Activation{ActSigmoid}, WithSeed(1))
	require.NoError(t, err)
	X, Y := orDataset(t)
	ctx := context.Background()
	cfg := TrainingConfig{Epochs: 1, BatchSize: 2}

	_, err = nw.Train(ctx, X, Y, TrainingConfig{Epochs: 0, BatchSize: 2})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = nw.Train(ctx, X, Y, TrainingConfig{Epochs: 1, BatchSize: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = nw.Train(ctx, nil, Y, cfg)
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, err = nw.Train(ctx, X, NewMatrix(3, 1), cfg)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = nw.Train(ctx, NewMatrix(4, 3), Y, cfg)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = nw.Train(ctx, X, NewMatrix(4, 2), cfg)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	empty, err := NewNetwork()
	require.NoError(t, err)
	_, err = empty.Train(ctx, X, Y, cfg)
	assert.ErrorIs(t, err, ErrEmptyNetwork)
}

func TestGather(t *testing.T) {
	src := mustMatrix(t, [][]float64{{1, 2}, {3, 4}, {5, 6}})
	dest := NewMatrix(2, 2)
	Gather([]int{2, 0}, src, dest)
	assert.Equal(t, []float64{5, 6, 1, 2}, dest.Data())
}

func TestShuffleIndicesKeepsPermutation(t *testing.T) {
	idx := NewIndexList(20)
	ShuffleIndices(testRNG(), idx)
	seen := make(map[int]bool)
	for _, i := range idx {
		seen[i] = true
	}
	assert.Len(t, seen, 20)
}
