package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/BX7GamerX/tictacnet/agent"
	"github.com/BX7GamerX/tictacnet/data"
	"github.com/BX7GamerX/tictacnet/internal/config"
	"github.com/BX7GamerX/tictacnet/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

const usage = `usage: tictacnet [flags] <command> [args]

commands:
  selfplay [-games n] [-workers n] [-seed n]   play random games into the history
  train                                        train a model on the stored history
  predict <board>                              suggest a move, board as 9 digits (0 empty, 1 X, 2 O)
  stats                                        print history statistics
  import <file.csv>                            load games from a CSV history file
  export <file.csv>                            write the stored history as CSV

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "tictacnet:", err)
		}
		os.Exit(1)
	}
}

type app struct {
	cfg       config.Config
	log       logr.Logger
	out       io.Writer
	dataDir   string
	modelPath string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tictacnet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "YAML config file")
	dataDir := fs.String("data", "", "data directory (default: platform data dir)")
	modelPath := fs.String("model", "", "model file (default: <data>/model/network.bin)")
	verbosity := fs.Int("v", 0, "log verbosity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	stdr.SetVerbosity(*verbosity)
	a := &app{
		log: stdr.New(log.New(stderr, "", log.LstdFlags)).WithName("tictacnet"),
		out: stdout,
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	a.cfg = cfg

	// flags win over the config file
	a.dataDir = firstNonEmpty(*dataDir, cfg.DataDir)
	a.modelPath = firstNonEmpty(*modelPath, cfg.ModelPath)
	if a.modelPath == "" {
		var err error
		if a.modelPath, err = storage.ModelPath(a.dataDir); err != nil {
			return err
		}
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "selfplay":
		return a.selfPlay(ctx, rest)
	case "train":
		return a.train(ctx)
	case "predict":
		if len(rest) != 1 {
			return fmt.Errorf("predict takes one board argument")
		}
		return a.predict(rest[0])
	case "stats":
		return a.stats()
	case "import":
		if len(rest) != 1 {
			return fmt.Errorf("import takes one file argument")
		}
		return a.importCSV(rest[0])
	case "export":
		if len(rest) != 1 {
			return fmt.Errorf("export takes one file argument")
		}
		return a.exportCSV(rest[0])
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) openStore() (*storage.Store, error) {
	dir, err := storage.DatabaseDir(a.dataDir)
	if err != nil {
		return nil, err
	}
	return storage.Open(dir, a.log.WithName("store"))
}

func (a *app) selfPlay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("selfplay", flag.ContinueOnError)
	games := fs.Int("games", a.cfg.SelfPlay.Games, "number of games")
	workers := fs.Int("workers", a.cfg.SelfPlay.Workers, "concurrent games (0: GOMAXPROCS)")
	seed := fs.Uint64("seed", a.cfg.SelfPlay.Seed, "random seed (0: time based)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	start := time.Now()
	records, st, err := data.SelfPlay(ctx, data.SelfPlayConfig{
		Games:   *games,
		Workers: *workers,
		Seed:    *seed,
		Logger:  a.log.WithName("selfplay"),
	})
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SaveGames(records); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "played %s games in %s: X won %d, O won %d, %d draws\n",
		humanize.Comma(int64(len(records))), time.Since(start).Round(time.Millisecond), st.WinsA, st.WinsB, st.Draws)
	return nil
}

func (a *app) newAgent() (*agent.Agent, error) {
	return agent.New(a.cfg, a.modelPath, agent.WithLogger(a.log.WithName("agent")))
}

func (a *app) train(ctx context.Context) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	records, err := store.Games()
	store.Close()
	if err != nil {
		return err
	}

	ag, err := a.newAgent()
	if err != nil {
		return err
	}
	set, err := ag.BuildTrainingSet(records)
	if err != nil {
		return err
	}
	if _, err := ag.Train(ctx, set); err != nil {
		return err
	}
	if err := ag.Save(); err != nil {
		return err
	}

	s := set.Stats
	fmt.Fprintf(a.out, "trained on %s examples from %s games (%d decisive, %d draws), model saved to %s\n",
		humanize.Comma(int64(s.Examples)), humanize.Comma(int64(s.Games)), s.Decisive, s.Draws, a.modelPath)
	return nil
}

func (a *app) predict(raw string) error {
	board, err := data.ParseBoard(raw)
	if err != nil {
		return err
	}
	ag, err := a.newAgent()
	if err != nil {
		return err
	}
	if !ag.Load() {
		a.log.Info("no trained model, playing a random move", "path", a.modelPath)
	}

	pos, ok := ag.PredictMove(board)
	if !ok {
		return fmt.Errorf("board %s has no empty cell", board)
	}
	fmt.Fprintf(a.out, "%d %d\n", pos.Row, pos.Col)
	return nil
}

func (a *app) stats() error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	st, err := store.Stats()
	if err != nil {
		return err
	}

	last := "never"
	if !st.LastSaved.IsZero() {
		last = humanize.Time(st.LastSaved)
	}
	fmt.Fprintf(a.out, "games: %s\nX wins: %d\nO wins: %d\ndraws: %d (%.1f%%)\nincomplete: %d\nlast saved: %s\n",
		humanize.Comma(int64(st.GamesPlayed)), st.WinsA, st.WinsB, st.Draws, st.DrawRate(), st.Incomplete, last)
	return nil
}

func (a *app) importCSV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, st, err := data.ReadCSV(f)
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SaveGames(records); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "imported %d games from %d rows (%d bad rows, %d bad fields)\n",
		st.Games, st.Rows, st.BadRows, st.BadFields)
	return nil
}

func (a *app) exportCSV(path string) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	records, err := store.Games()
	store.Close()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := data.WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d games to %s\n", len(records), path)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
