package ml

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-logr/logr"
)

type TrainingConfig struct {
	Epochs       int
	BatchSize    int
	VerboseEvery int // How often to log progress (in epochs), 0 disables

	Logger logr.Logger
}

func (cfg TrainingConfig) validate() error {
	if cfg.Epochs <= 0 {
		return fmt.Errorf("%w: epochs %d", ErrInvalidConfig, cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, cfg.BatchSize)
	}
	return nil
}

// Train runs mini-batch gradient descent over (X, Y) and returns the
// full-dataset loss recorded after every epoch.
//
// Each epoch shuffles the example order and calls Backward once per
// contiguous chunk of BatchSize examples; the last chunk may be shorter.
// ctx is checked between epochs only. A cancelled run returns the losses
// recorded so far together with ctx.Err().
func (nw *Network) Train(ctx context.Context, X, Y *Matrix, cfg TrainingConfig) ([]float64, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := nw.checkChain(); err != nil {
		return nil, err
	}
	if X == nil || Y == nil || X.rows == 0 || Y.rows == 0 {
		return nil, ErrEmptyDataset
	}
	if X.rows != Y.rows {
		return nil, fmt.Errorf("%w: %d inputs but %d targets", ErrShapeMismatch, X.rows, Y.rows)
	}
	if X.cols != nw.InputSize() {
		return nil, &ShapeError{Op: "train", Layer: -1, Operand: "input", Want: nw.InputSize(), Got: X.cols}
	}
	if Y.cols != nw.OutputSize() {
		return nil, &ShapeError{Op: "train", Layer: -1, Operand: "target", Want: nw.OutputSize(), Got: Y.cols}
	}
	if err := nw.checkDerivatives(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	numSamples := X.rows
	globalIndices := NewIndexList(numSamples)
	var batchX, batchY *Matrix
	history := make([]float64, 0, cfg.Epochs)

	start := time.Now()
	log.V(1).Info("starting training", "samples", numSamples, "epochs", cfg.Epochs, "batchSize", cfg.BatchSize,
		"loss", nw.Loss.String(), "learningRate", nw.LearningRate)

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			log.Info("training cancelled", "epoch", epoch, "elapsed", time.Since(start))
			return history, err
		}
		ShuffleIndices(nw.rng, globalIndices)

		for batchStart := 0; batchStart < numSamples; batchStart += cfg.BatchSize {
			batchEnd := min(batchStart+cfg.BatchSize, numSamples)
			myIndices := globalIndices[batchStart:batchEnd]

			batchX = reuse(batchX, len(myIndices), X.cols)
			batchY = reuse(batchY, len(myIndices), Y.cols)
			Gather(myIndices, X, batchX)
			Gather(myIndices, Y, batchY)

			if err := nw.Backward(batchX, batchY); err != nil {
				return history, fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}

		pred, err := nw.Forward(X)
		if err != nil {
			return history, err
		}
		loss, err := nw.ComputeLoss(pred, Y)
		if err != nil {
			return history, err
		}
		history = append(history, loss)

		if cfg.VerboseEvery > 0 && (epoch%cfg.VerboseEvery == 0 || epoch == 1) {
			log.Info(fmt.Sprintf("Epoch %d | Loss: %.4f", epoch, loss), "elapsed", time.Since(start))
		}
	}

	log.V(1).Info("training complete", "elapsed", time.Since(start), "finalLoss", history[len(history)-1])
	return history, nil
}

// ------ DATA HANDLING HELPERS ------
func NewIndexList(size int) []int {
	indices := make([]int, size)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func ShuffleIndices(rng *rand.Rand, indices []int) {
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
}

// Gather copies the rows named by batchIndices from src into dest, in order.
// This gives the batch a contiguous matrix for MatMul without reshuffling src.
func Gather(batchIndices []int, src, dest *Matrix) {
	rowSize := src.cols
	for localRowIdx, realDataIdx := range batchIndices {
		srcStart := realDataIdx * rowSize
		dstStart := localRowIdx * rowSize
		copy(dest.data[dstStart:dstStart+rowSize], src.data[srcStart:srcStart+rowSize])
	}
}
