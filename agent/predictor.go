package agent

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/BX7GamerX/tictacnet/data"
	"github.com/BX7GamerX/tictacnet/ml"
	"github.com/go-logr/logr"
)

var errNoModel = errors.New("no model loaded")

// Forwarder is the slice of ml.Network the predictor needs.
type Forwarder interface {
	Forward(X *ml.Matrix) (*ml.Matrix, error)
}

// Predictor picks a legal move from network scores. It never returns an
// occupied cell: any failure of the model degrades to a uniformly random
// empty cell.
//
// A Predictor is not safe for concurrent use.
type Predictor struct {
	Model  Forwarder
	Rand   *rand.Rand
	Logger logr.Logger
}

// PredictMove returns the chosen cell, or false when the board is full.
func (p *Predictor) PredictMove(board data.Board) (data.Pos, bool) {
	board = board.Clamp()
	empty := board.EmptyCells()
	switch len(empty) {
	case 0:
		return data.Pos{}, false
	case 1:
		return empty[0], true
	}

	scores, err := p.scores(board)
	if err != nil {
		p.Logger.V(1).Info("falling back to a random move", "reason", err.Error())
		return p.randomCell(empty), true
	}

	// greedy pick over the masked scores, first maximum wins
	best, bestScore, sum := -1, math.Inf(-1), 0.0
	for _, pos := range empty {
		s := scores[pos.Index()]
		if math.IsNaN(s) || math.IsInf(s, 0) {
			p.Logger.V(1).Info("falling back to a random move", "reason", "non-finite score")
			return p.randomCell(empty), true
		}
		sum += s
		if s > bestScore {
			best, bestScore = pos.Index(), s
		}
	}
	if sum == 0 {
		p.Logger.V(1).Info("falling back to a random move", "reason", "masked scores sum to zero")
		return p.randomCell(empty), true
	}

	pos, _ := data.PosFromIndex(best)
	return pos, true
}

// scores runs one forward pass. A panicking model is reported as an error.
func (p *Predictor) scores(board data.Board) (out []float64, err error) {
	if p.Model == nil {
		return nil, errNoModel
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("model panicked: %v", r)
		}
	}()

	X, err := ml.NewMatrixFromSlice(1, data.BoardCells, board.Normalize())
	if err != nil {
		return nil, err
	}
	pred, err := p.Model.Forward(X)
	if err != nil {
		return nil, err
	}
	if pred.Rows() != 1 || pred.Cols() != data.BoardCells {
		return nil, fmt.Errorf("%w: model output [%d, %d]", ml.ErrShapeMismatch, pred.Rows(), pred.Cols())
	}
	return pred.Row(0), nil
}

func (p *Predictor) randomCell(empty []data.Pos) data.Pos {
	if p.Rand == nil {
		p.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return empty[p.Rand.IntN(len(empty))]
}
