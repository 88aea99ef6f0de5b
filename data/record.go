package data

import (
	"fmt"
	"time"
)

const (
	OutcomeUnknown Outcome = iota
	OutcomePlayerAWins
	OutcomePlayerBWins
	OutcomeDraw
)

var outcomeNames = map[Outcome]string{
	OutcomeUnknown:     "unknown",
	OutcomePlayerAWins: "x_wins",
	OutcomePlayerBWins: "o_wins",
	OutcomeDraw:        "draw",
}

// Outcome is a game's terminal result. Unknown marks an unfinished game.
type Outcome int

// Move is one recorded turn. Before is the board the player saw; nil
// fields mark data that was lost upstream.
type Move struct {
	Before   *Board `json:"before,omitempty"`
	Player   Cell   `json:"player"`
	Position *Pos   `json:"position,omitempty"`
}

// GameRecord is the single normalized shape every history source is
// converted to before training.
type GameRecord struct {
	ID       string    `json:"id"`
	Outcome  Outcome   `json:"outcome"`
	Moves    []Move    `json:"moves"`
	PlayedAt time.Time `json:"played_at"`
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Decisive reports a game won by either player.
func (o Outcome) Decisive() bool {
	return o == OutcomePlayerAWins || o == OutcomePlayerBWins
}

func (o Outcome) MarshalText() ([]byte, error) {
	name, ok := outcomeNames[o]
	if !ok {
		return nil, fmt.Errorf("unknown outcome %d", int(o))
	}
	return []byte(name), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	for k, v := range outcomeNames {
		if v == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// OutcomeOf reads the result off a final board.
func OutcomeOf(b Board) Outcome {
	switch b.Winner() {
	case PlayerA:
		return OutcomePlayerAWins
	case PlayerB:
		return OutcomePlayerBWins
	}
	if b.IsFull() {
		return OutcomeDraw
	}
	return OutcomeUnknown
}

// outcomeFromWinner maps the stored winner code: 0 draw, 1 or 2 a player.
func outcomeFromWinner(w int) (Outcome, bool) {
	switch w {
	case 0:
		return OutcomeDraw, true
	case 1:
		return OutcomePlayerAWins, true
	case 2:
		return OutcomePlayerBWins, true
	}
	return OutcomeUnknown, false
}

// MoveNode is the legacy doubly linked move list. BoardAfter is the board
// once the move was placed, as 9 row-major values.
type MoveNode struct {
	CellIndex  int
	Player     Cell
	BoardAfter []int

	Next *MoveNode
	Prev *MoveNode
}

// FromMoveList walks a legacy move list from head and rebuilds the
// pre-move board of each node by clearing the cell it filled. Nodes whose
// board is missing or does not hold the mover's mark at CellIndex keep a
// nil Before so the builder counts them as malformed. The outcome is read
// from the last board when it is terminal.
func FromMoveList(id string, head *MoveNode) GameRecord {
	rec := GameRecord{ID: id}
	var last *Board
	for n := head; n != nil; n = n.Next {
		mv := Move{Player: n.Player}
		pos, err := PosFromIndex(n.CellIndex)
		if err == nil {
			mv.Position = &pos
		}

		if after, err := BoardFromValues(n.BoardAfter); err == nil {
			last = &after
			if mv.Position != nil && after.At(pos) == n.Player && n.Player != Empty {
				before := after
				before.Set(pos, Empty)
				mv.Before = &before
			}
		}
		rec.Moves = append(rec.Moves, mv)
	}
	if last != nil {
		rec.Outcome = OutcomeOf(*last)
	}
	return rec
}
