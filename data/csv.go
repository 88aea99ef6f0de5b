package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
)

const csvTimeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"game_id", "move_number", "player", "row", "col", "board_state", "timestamp", "winner"}

var ErrCSVHeader = errors.New("csv header is missing required columns")

// CSVStats counts rows the reader could not use in full.
type CSVStats struct {
	Rows             int
	BadRows          int // dropped: unreadable, no game id or no move number
	BadFields        int // kept with a nil board or position
	Games            int
	InferredOutcomes int // winner column empty, result read off the final board
}

type csvMove struct {
	number int
	after  *Board
	move   Move
	stamp  time.Time
}

type csvGame struct {
	id      string
	moves   []csvMove
	outcome Outcome
	hasWin  bool
}

// ReadCSV reads the one-row-per-move history format:
//
//	game_id, move_number, player, row, col, board_state, timestamp, winner
//
// board_state is the 9-digit board after the move. Rows are grouped by game
// and ordered by move_number; the board before each move is rebuilt by
// clearing the cell the move filled. Bad rows are counted and skipped.
func ReadCSV(r io.Reader) ([]GameRecord, CSVStats, error) {
	var stats CSVStats
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range csvHeader[:6] {
		if _, ok := cols[name]; !ok {
			return nil, stats, fmt.Errorf("%w: %s", ErrCSVHeader, name)
		}
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var order []*csvGame
	games := make(map[string]*csvGame)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		stats.Rows++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.BadRows++
				continue
			}
			return nil, stats, err
		}

		id := field(row, "game_id")
		number, nerr := strconv.Atoi(field(row, "move_number"))
		if id == "" || nerr != nil {
			stats.BadRows++
			continue
		}

		game, ok := games[id]
		if !ok {
			game = &csvGame{id: id}
			games[id] = game
			order = append(order, game)
		}

		cm, bad := parseCSVMove(field, row)
		cm.number = number
		if bad {
			stats.BadFields++
		}
		if w := field(row, "winner"); w != "" {
			if v, err := strconv.Atoi(w); err == nil {
				if o, ok := outcomeFromWinner(v); ok {
					game.outcome, game.hasWin = o, true
				}
			}
		}
		game.moves = append(game.moves, cm)
	}

	records := make([]GameRecord, 0, len(order))
	for _, game := range order {
		rec, inferred := game.record()
		if inferred {
			stats.InferredOutcomes++
		}
		records = append(records, rec)
	}
	stats.Games = len(records)
	return records, stats, nil
}

func parseCSVMove(field func([]string, string) string, row []string) (csvMove, bool) {
	var cm csvMove
	bad := false

	player, err := strconv.Atoi(field(row, "player"))
	if err != nil || (player != int(PlayerA) && player != int(PlayerB)) {
		bad = true
	} else {
		cm.move.Player = Cell(player)
	}

	r, rerr := strconv.Atoi(field(row, "row"))
	c, cerr := strconv.Atoi(field(row, "col"))
	if pos := (Pos{Row: r, Col: c}); rerr == nil && cerr == nil && pos.Valid() {
		cm.move.Position = &pos
	} else {
		bad = true
	}

	if after, err := ParseBoard(field(row, "board_state")); err == nil {
		cm.after = &after
		if p := cm.move.Position; p != nil && cm.move.Player != Empty && after.At(*p) == cm.move.Player {
			before := after
			before.Set(*p, Empty)
			cm.move.Before = &before
		} else {
			bad = true
		}
	} else {
		bad = true
	}

	if ts, err := time.Parse(csvTimeLayout, field(row, "timestamp")); err == nil {
		cm.stamp = ts
	}
	return cm, bad
}

// record orders the moves and settles the outcome. It reports whether the
// outcome had to be inferred from the final board.
func (g *csvGame) record() (GameRecord, bool) {
	slices.SortStableFunc(g.moves, func(a, b csvMove) int { return a.number - b.number })

	rec := GameRecord{ID: g.id, Outcome: g.outcome, Moves: make([]Move, len(g.moves))}
	for i, cm := range g.moves {
		rec.Moves[i] = cm.move
		if !cm.stamp.IsZero() && (rec.PlayedAt.IsZero() || cm.stamp.Before(rec.PlayedAt)) {
			rec.PlayedAt = cm.stamp
		}
	}
	if g.hasWin || len(g.moves) == 0 {
		return rec, false
	}
	if final := g.moves[len(g.moves)-1].after; final != nil {
		rec.Outcome = OutcomeOf(*final)
	}
	return rec, true
}

// WriteCSV writes records in the format ReadCSV reads. Moves without a
// board or position cannot be expressed and are left out. The winner
// column is filled on each game's last row only.
func WriteCSV(w io.Writer, records []GameRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		stamp := rec.PlayedAt
		if stamp.IsZero() {
			stamp = time.Now()
		}
		winner := ""
		switch rec.Outcome {
		case OutcomeDraw:
			winner = "0"
		case OutcomePlayerAWins:
			winner = "1"
		case OutcomePlayerBWins:
			winner = "2"
		}

		for i, mv := range rec.Moves {
			if mv.Before == nil || mv.Position == nil {
				continue
			}
			after := *mv.Before
			after.Set(*mv.Position, mv.Player)
			last := ""
			if i == len(rec.Moves)-1 {
				last = winner
			}
			row := []string{
				rec.ID,
				strconv.Itoa(i + 1),
				strconv.Itoa(int(mv.Player)),
				strconv.Itoa(mv.Position.Row),
				strconv.Itoa(mv.Position.Col),
				after.String(),
				stamp.Format(csvTimeLayout),
				last,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
