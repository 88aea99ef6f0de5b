// Package agent ties the training pipeline, the network and the move
// predictor together behind one lock.
package agent

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/BX7GamerX/tictacnet/data"
	"github.com/BX7GamerX/tictacnet/internal/config"
	"github.com/BX7GamerX/tictacnet/ml"
	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
)

// Agent owns the current model. Training builds a new network off to the
// side and swaps it in only when it finished, so a failed run never
// disturbs the model in use.
type Agent struct {
	cfg       config.Config
	modelPath string
	log       logr.Logger

	mu        sync.Mutex
	model     *ml.Network
	predictor Predictor
}

type Option func(*Agent)

// WithRand makes the predictor's random fallback reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(a *Agent) { a.predictor.Rand = rng }
}

func WithLogger(log logr.Logger) Option {
	return func(a *Agent) { a.log = log }
}

// New creates an agent with no model. modelPath is where Save and Load
// read and write the network.
func New(cfg config.Config, modelPath string, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Agent{cfg: cfg, modelPath: modelPath, log: logr.Discard()}
	for _, opt := range opts {
		opt(a)
	}
	a.predictor.Logger = a.log.WithName("predictor")
	return a, nil
}

func (a *Agent) builder() *data.Builder {
	return &data.Builder{
		MinExamples:           a.cfg.Builder.MinExamples,
		MinGameMoves:          a.cfg.Builder.MinGameMoves,
		SkipFinalDecisiveMove: a.cfg.Builder.SkipFinalDecisiveMove,
		Logger:                a.log.WithName("builder"),
	}
}

// BuildTrainingSet filters records into examples. It fails with
// data.ErrInsufficientData when too few examples survive.
func (a *Agent) BuildTrainingSet(records []data.GameRecord) (*data.TrainingSet, error) {
	return a.builder().Build(records)
}

// Train fits a fresh network to set and makes it the agent's model. On any
// failure the previous model stays in place. The returned network is the
// one now serving PredictMove; callers must not run it concurrently.
func (a *Agent) Train(ctx context.Context, set *data.TrainingSet) (*ml.Network, error) {
	if set == nil || set.Len() == 0 || set.Len() < a.cfg.Builder.MinExamples {
		got := 0
		if set != nil {
			got = set.Len()
		}
		return nil, &data.InsufficientDataError{Got: got, Want: max(a.cfg.Builder.MinExamples, 1)}
	}

	X, Y, err := set.Matrices()
	if err != nil {
		return nil, err
	}
	nw, err := a.cfg.Network.NewNetwork()
	if err != nil {
		return nil, err
	}

	tc := a.cfg.Training.ML()
	tc.Logger = a.log.WithName("train")
	start := time.Now()
	history, err := nw.Train(ctx, X, Y, tc)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	a.mu.Lock()
	a.model = nw
	a.predictor.Model = nw
	a.mu.Unlock()

	a.log.Info("model trained", "examples", set.Len(), "epochs", len(history),
		"finalLoss", history[len(history)-1], "elapsed", time.Since(start))
	return nw, nil
}

// TrainFromRecords builds the training set and trains on it.
func (a *Agent) TrainFromRecords(ctx context.Context, records []data.GameRecord) (*ml.Network, error) {
	set, err := a.BuildTrainingSet(records)
	if err != nil {
		return nil, err
	}
	return a.Train(ctx, set)
}

// PredictMove picks a move for board, falling back to a random empty cell
// when there is no usable model. It reports false only for a full board.
func (a *Agent) PredictMove(board data.Board) (data.Pos, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.predictor.PredictMove(board)
}

// HasModel reports whether a trained or loaded model is in place.
func (a *Agent) HasModel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model != nil
}

// Save writes the current model to the agent's model path.
func (a *Agent) Save() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.model == nil {
		return errNoModel
	}
	if err := a.model.SaveToFile(a.modelPath); err != nil {
		return fmt.Errorf("save model: %w", err)
	}

	if info, err := os.Stat(a.modelPath); err == nil {
		a.log.Info("model saved", "path", a.modelPath, "size", humanize.Bytes(uint64(info.Size())))
	}
	return nil
}

// Load replaces the model with the one at the agent's model path. A
// missing or corrupt file reports false and keeps the current model.
func (a *Agent) Load() bool {
	nw, err := ml.LoadFromFile(a.modelPath)
	if err != nil {
		a.log.Info("no usable model", "path", a.modelPath, "reason", err.Error())
		return false
	}
	if nw.InputSize() != data.BoardCells || nw.OutputSize() != data.BoardCells {
		a.log.Info("no usable model", "path", a.modelPath,
			"reason", fmt.Sprintf("network maps %d -> %d, want 9 -> 9", nw.InputSize(), nw.OutputSize()))
		return false
	}

	a.mu.Lock()
	a.model = nw
	a.predictor.Model = nw
	a.mu.Unlock()
	a.log.V(1).Info("model loaded", "path", a.modelPath, "layers", len(nw.Layers))
	return true
}
