package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	Empty Cell = iota
	PlayerA
	PlayerB
)

// BoardCells is the length of a flattened board.
const BoardCells = 9

var (
	ErrBoardLength  = errors.New("board must have 9 cells")
	ErrBoardSymbol  = errors.New("board cell is not a digit")
	ErrCellOccupied = errors.New("cell is occupied")
	ErrOutOfRange   = errors.New("position out of range")
	ErrGameOver     = errors.New("game is over")
)

// lines lists every winning triple as flat indices.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// -------- TYPE DEFINITIONS -------- //

// Cell is the state of one square: Empty, PlayerA or PlayerB.
type Cell uint8

// Pos addresses a square by row and column, both in [0, 3).
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Board is a 3x3 grid indexed [row][col].
type Board [3][3]Cell

func (c Cell) String() string {
	switch c {
	case PlayerA:
		return "X"
	case PlayerB:
		return "O"
	}
	return "."
}

// Opponent returns the other player. Empty has no opponent.
func (c Cell) Opponent() Cell {
	switch c {
	case PlayerA:
		return PlayerB
	case PlayerB:
		return PlayerA
	}
	return Empty
}

func clampCell(v int) Cell {
	return Cell(min(max(v, 0), 2))
}

// UnmarshalJSON accepts any integer and clamps it like BoardFromValues.
func (c *Cell) UnmarshalJSON(raw []byte) error {
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("cell: %w", err)
	}
	*c = clampCell(v)
	return nil
}

// PosFromIndex converts a flat index in [0, 9) into a position.
func PosFromIndex(idx int) (Pos, error) {
	if idx < 0 || idx >= BoardCells {
		return Pos{}, fmt.Errorf("%w: index %d", ErrOutOfRange, idx)
	}
	return Pos{Row: idx / 3, Col: idx % 3}, nil
}

func (p Pos) Index() int  { return p.Row*3 + p.Col }
func (p Pos) Valid() bool { return p.Row >= 0 && p.Row < 3 && p.Col >= 0 && p.Col < 3 }

func (p Pos) String() string { return fmt.Sprintf("(%d, %d)", p.Row, p.Col) }

// -------- CONSTRUCTORS ------- //

// BoardFromValues builds a board from 9 row-major values. Values below 0
// become Empty and values above 2 become PlayerB.
func BoardFromValues(values []int) (Board, error) {
	var b Board
	if len(values) != BoardCells {
		return b, fmt.Errorf("%w: got %d", ErrBoardLength, len(values))
	}
	for i, v := range values {
		b[i/3][i%3] = clampCell(v)
	}
	return b, nil
}

// ParseBoard reads a 9-digit row-major string such as "120000000".
// Digits above 2 are clamped like BoardFromValues.
func ParseBoard(s string) (Board, error) {
	s = strings.TrimSpace(s)
	if len(s) != BoardCells {
		return Board{}, fmt.Errorf("%w: %q", ErrBoardLength, s)
	}
	values := make([]int, BoardCells)
	for i := 0; i < BoardCells; i++ {
		ch := s[i]
		if ch < '0' || ch > '9' {
			return Board{}, fmt.Errorf("%w: %q at %d", ErrBoardSymbol, ch, i)
		}
		values[i] = int(ch - '0')
	}
	return BoardFromValues(values)
}

// ------- ACCESSORS ------ //

func (b Board) At(p Pos) Cell { return b[p.Row][p.Col] }

func (b *Board) Set(p Pos, c Cell) { b[p.Row][p.Col] = c }

func (b Board) cell(idx int) Cell { return b[idx/3][idx%3] }

// Clamp returns the board with every cell forced into Empty, PlayerA or
// PlayerB. Boards built in code can hold any uint8.
func (b Board) Clamp() Board {
	for r := range b {
		for c := range b[r] {
			b[r][c] = clampCell(int(b[r][c]))
		}
	}
	return b
}

// String renders the board in the same 9-digit form ParseBoard reads.
func (b Board) String() string {
	var sb strings.Builder
	for i := 0; i < BoardCells; i++ {
		sb.WriteByte('0' + byte(b.cell(i)))
	}
	return sb.String()
}

// EmptyCells lists the empty squares in row-major order.
func (b Board) EmptyCells() []Pos {
	var out []Pos
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if b[r][c] == Empty {
				out = append(out, Pos{Row: r, Col: c})
			}
		}
	}
	return out
}

// Winner returns the player holding a complete line, or Empty.
func (b Board) Winner() Cell {
	for _, l := range lines {
		first := b.cell(l[0])
		if first != Empty && first == b.cell(l[1]) && first == b.cell(l[2]) {
			return first
		}
	}
	return Empty
}

func (b Board) IsFull() bool {
	for i := 0; i < BoardCells; i++ {
		if b.cell(i) == Empty {
			return false
		}
	}
	return true
}

// IsTerminal reports a completed line or a full board.
func (b Board) IsTerminal() bool {
	return b.Winner() != Empty || b.IsFull()
}

// Counts returns how many marks each player has placed.
func (b Board) Counts() (a, o int) {
	for i := 0; i < BoardCells; i++ {
		switch b.cell(i) {
		case PlayerA:
			a++
		case PlayerB:
			o++
		}
	}
	return a, o
}

// ------- ENCODING ------ //

// Normalize flattens the board row-major into network input:
// Empty -> 0, PlayerA -> 1, PlayerB -> -1.
func (b Board) Normalize() []float64 {
	out := make([]float64, BoardCells)
	for i := range out {
		switch b.cell(i) {
		case PlayerA:
			out[i] = 1
		case PlayerB:
			out[i] = -1
		}
	}
	return out
}

// OneHot returns a length-9 target with a single 1 at idx.
func OneHot(idx int) []float64 {
	out := make([]float64, BoardCells)
	out[idx] = 1
	return out
}
