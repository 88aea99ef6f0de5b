package data

import (
	"fmt"
	"time"
)

// Game applies the rules to a live board and records every move with the
// board as it stood before the move. PlayerA always opens.
type Game struct {
	board   Board
	mover   Cell
	moves   []Move
	outcome Outcome
	over    bool
}

func NewGame() *Game {
	return &Game{mover: PlayerA}
}

func (g *Game) Board() Board      { return g.board }
func (g *Game) Mover() Cell       { return g.mover }
func (g *Game) Over() bool        { return g.over }
func (g *Game) Outcome() Outcome  { return g.outcome }
func (g *Game) EmptyCells() []Pos { return g.board.EmptyCells() }
func (g *Game) MoveCount() int    { return len(g.moves) }

// Play places the current mover's mark at p and passes the turn.
func (g *Game) Play(p Pos) error {
	if g.over {
		return ErrGameOver
	}
	if !p.Valid() {
		return fmt.Errorf("%w: %v", ErrOutOfRange, p)
	}
	if g.board.At(p) != Empty {
		return fmt.Errorf("%w: %v", ErrCellOccupied, p)
	}

	before := g.board
	pos := p
	g.moves = append(g.moves, Move{Before: &before, Player: g.mover, Position: &pos})
	g.board.Set(p, g.mover)

	if g.outcome = OutcomeOf(g.board); g.outcome != OutcomeUnknown {
		g.over = true
		return nil
	}
	g.mover = g.mover.Opponent()
	return nil
}

// Record snapshots the game so far. The moves are copied.
func (g *Game) Record(id string) GameRecord {
	return GameRecord{
		ID:       id,
		Outcome:  g.outcome,
		Moves:    append([]Move(nil), g.moves...),
		PlayedAt: time.Now().UTC(),
	}
}
