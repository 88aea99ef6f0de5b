package data

import (
	"errors"
	"fmt"

	"github.com/BX7GamerX/tictacnet/ml"
	"github.com/go-logr/logr"
)

var ErrInsufficientData = errors.New("insufficient training data")

// InsufficientDataError reports how many examples survived filtering.
type InsufficientDataError struct {
	Got  int
	Want int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: %d examples, need at least %d", e.Got, e.Want)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// Example is one (board, chosen move) training pair.
type Example struct {
	Input  []float64
	Target []float64
}

// BuildStats counts what the builder kept and why it dropped the rest.
type BuildStats struct {
	Games          int
	Decisive       int
	Draws          int
	SkippedUnknown int // games without a final result
	SkippedShort   int // games below MinGameMoves
	Moves          int
	Malformed      int // missing board or position, bad index, occupied target
	Terminal       int // pre-move board already decided
	FinalMoves     int // finishing move of a decisive game
	Examples       int
}

type TrainingSet struct {
	Examples []Example
	Stats    BuildStats
}

func (s *TrainingSet) Len() int { return len(s.Examples) }

func (s *TrainingSet) Inputs() [][]float64 {
	out := make([][]float64, len(s.Examples))
	for i, ex := range s.Examples {
		out[i] = ex.Input
	}
	return out
}

func (s *TrainingSet) Targets() [][]float64 {
	out := make([][]float64, len(s.Examples))
	for i, ex := range s.Examples {
		out[i] = ex.Target
	}
	return out
}

// Matrices packs the set into network-ready X (n x 9) and Y (n x 9).
func (s *TrainingSet) Matrices() (X, Y *ml.Matrix, err error) {
	if X, err = ml.NewMatrixFromRows(s.Inputs()); err != nil {
		return nil, nil, err
	}
	if Y, err = ml.NewMatrixFromRows(s.Targets()); err != nil {
		return nil, nil, err
	}
	return X, Y, nil
}

// Builder turns game records into training examples.
type Builder struct {
	MinExamples  int // Build fails below this many examples
	MinGameMoves int // shorter games are skipped, 0 keeps all

	// SkipFinalDecisiveMove drops the winning move of decisive games.
	// Draws keep their last move.
	SkipFinalDecisiveMove bool

	Logger logr.Logger
}

func NewBuilder() *Builder {
	return &Builder{
		MinExamples:           10,
		MinGameMoves:          5,
		SkipFinalDecisiveMove: true,
	}
}

// Build filters records into examples. Bad moves are counted and skipped;
// the only failure is ending up with fewer than MinExamples examples, in
// which case the partial set is still returned for its stats.
func (b *Builder) Build(records []GameRecord) (*TrainingSet, error) {
	set := &TrainingSet{}
	st := &set.Stats

	for gi := range records {
		rec := &records[gi]
		st.Games++

		switch {
		case rec.Outcome == OutcomeDraw:
			st.Draws++
		case rec.Outcome.Decisive():
			st.Decisive++
		default:
			st.SkippedUnknown++
			continue
		}
		if len(rec.Moves) < b.MinGameMoves {
			st.SkippedShort++
			continue
		}

		last := len(rec.Moves) - 1
		for i, mv := range rec.Moves {
			st.Moves++
			if mv.Before == nil || mv.Position == nil {
				st.Malformed++
				continue
			}
			board := mv.Before.Clamp()
			if board.IsTerminal() {
				st.Terminal++
				continue
			}
			if b.SkipFinalDecisiveMove && rec.Outcome.Decisive() && i == last {
				st.FinalMoves++
				continue
			}

			idx := mv.Position.Index()
			if !mv.Position.Valid() || idx < 0 || idx >= BoardCells {
				st.Malformed++
				continue
			}
			if board.At(*mv.Position) != Empty {
				st.Malformed++
				continue
			}

			set.Examples = append(set.Examples, Example{Input: board.Normalize(), Target: OneHot(idx)})
		}
	}
	st.Examples = len(set.Examples)

	b.Logger.V(1).Info("built training set",
		"games", st.Games, "decisive", st.Decisive, "draws", st.Draws,
		"skippedUnknown", st.SkippedUnknown, "skippedShort", st.SkippedShort,
		"moves", st.Moves, "malformed", st.Malformed, "terminal", st.Terminal,
		"finalMoves", st.FinalMoves, "examples", st.Examples)

	if st.Examples < b.MinExamples {
		return set, &InsufficientDataError{Got: st.Examples, Want: b.MinExamples}
	}
	return set, nil
}
