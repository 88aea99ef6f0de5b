package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BX7GamerX/tictacnet/data"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// Storage keys
const (
	keyStats   = "stats"
	gamePrefix = "game/"
)

var ErrGameNotFound = errors.New("game not found")

// Stats stores aggregate results over every saved game.
type Stats struct {
	GamesPlayed int       `json:"games_played"`
	WinsA       int       `json:"wins_x"`
	WinsB       int       `json:"wins_o"`
	Draws       int       `json:"draws"`
	Incomplete  int       `json:"incomplete"`
	LastSaved   time.Time `json:"last_saved"`
}

func (s *Stats) apply(o data.Outcome, delta int) {
	s.GamesPlayed += delta
	switch o {
	case data.OutcomePlayerAWins:
		s.WinsA += delta
	case data.OutcomePlayerBWins:
		s.WinsB += delta
	case data.OutcomeDraw:
		s.Draws += delta
	default:
		s.Incomplete += delta
	}
}

// DrawRate returns the share of finished games that ended drawn (0-100).
func (s Stats) DrawRate() float64 {
	finished := s.WinsA + s.WinsB + s.Draws
	if finished == 0 {
		return 0
	}
	return float64(s.Draws) / float64(finished) * 100
}

// Store wraps BadgerDB for the game history.
type Store struct {
	db  *badger.DB
	log logr.Logger
}

// Open opens (or creates) the history database in dir.
func Open(dir string, log logr.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging
	return open(opts, log)
}

// OpenInMemory opens a store that keeps nothing on disk.
func OpenInMemory(log logr.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, log)
}

func open(opts badger.Options, log logr.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func gameKey(id string) []byte { return []byte(gamePrefix + id) }

func readStats(txn *badger.Txn) (Stats, error) {
	var st Stats
	item, err := txn.Get([]byte(keyStats))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &st)
	})
	return st, err
}

// SaveGame stores rec and updates the stats in the same transaction. An
// empty ID is replaced with a fresh UUID; saving an existing ID replaces
// that game and its contribution to the stats. It returns the stored ID.
func (s *Store) SaveGame(rec data.GameRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.PlayedAt.IsZero() {
		rec.PlayedAt = time.Now().UTC()
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		st, err := readStats(txn)
		if err != nil {
			return err
		}

		key := gameKey(rec.ID)
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var old data.GameRecord
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &old) }); err != nil {
				return err
			}
			st.apply(old.Outcome, -1)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		st.apply(rec.Outcome, 1)
		st.LastSaved = time.Now().UTC()

		raw, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set([]byte(keyStats), raw)
	})
	if err != nil {
		return "", fmt.Errorf("save game %s: %w", rec.ID, err)
	}
	s.log.V(2).Info("saved game", "id", rec.ID, "outcome", rec.Outcome.String(), "moves", len(rec.Moves))
	return rec.ID, nil
}

// SaveGames stores each record in turn and stops at the first failure.
func (s *Store) SaveGames(recs []data.GameRecord) error {
	for _, rec := range recs {
		if _, err := s.SaveGame(rec); err != nil {
			return err
		}
	}
	s.log.V(1).Info("saved games", "count", len(recs))
	return nil
}

// Game loads one record by ID.
func (s *Store) Game(id string) (data.GameRecord, error) {
	var rec data.GameRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gameKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrGameNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// Games returns every stored record, oldest first.
func (s *Store) Games() ([]data.GameRecord, error) {
	var out []data.GameRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(gamePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec data.GameRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, func(a, b data.GameRecord) int {
		if c := a.PlayedAt.Compare(b.PlayedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Stats loads the aggregate results, zero when nothing was saved yet.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		st, err = readStats(txn)
		return err
	})
	return st, err
}
