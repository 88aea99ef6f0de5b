package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/BX7GamerX/tictacnet/data"
	"github.com/BX7GamerX/tictacnet/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig stores a config with a short training schedule.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.Default()
	cfg.Training.Epochs = 10
	cfg.Network.Seed = 17
	raw, err := cfg.Marshal()
	require.NoError(t, err)
	path := filepath.Join(dir, "tictacnet.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out, io.Discard)
	return out.String(), err
}

func TestRunUsage(t *testing.T) {
	_, err := runCLI(t)
	assert.ErrorIs(t, err, flag.ErrHelp)

	_, err = runCLI(t, "-data", t.TempDir(), "dance")
	assert.ErrorContains(t, err, "unknown command")

	_, err = runCLI(t, "-data", t.TempDir(), "predict")
	assert.Error(t, err)
}

func TestRunBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network:\n  layers: [9]\n"), 0o644))
	_, err := runCLI(t, "-config", path, "-data", t.TempDir(), "stats")
	assert.ErrorContains(t, err, "config")
}

func TestSelfPlayTrainPredict(t *testing.T) {
	dir := t.TempDir()
	base := []string{"-config", writeConfig(t, dir), "-data", filepath.Join(dir, "data")}
	cli := func(args ...string) string {
		t.Helper()
		out, err := runCLI(t, append(base, args...)...)
		require.NoError(t, err, "%v", args)
		return out
	}

	assert.Contains(t, cli("stats"), "games: 0")
	assert.Contains(t, cli("selfplay", "-games", "60", "-seed", "5", "-workers", "3"), "played 60 games")
	assert.Contains(t, cli("stats"), "games: 60")

	// predicting before training falls back to a random legal move
	var row, col int
	_, err := fmt.Sscanf(cli("predict", "120000000"), "%d %d", &row, &col)
	require.NoError(t, err)

	assert.Contains(t, cli("train"), "trained on")
	_, err = os.Stat(filepath.Join(dir, "data", "model", "network.bin"))
	require.NoError(t, err)

	b, err := data.ParseBoard("100020000")
	require.NoError(t, err)
	_, err = fmt.Sscanf(cli("predict", "100020000"), "%d %d", &row, &col)
	require.NoError(t, err)
	assert.Equal(t, data.Empty, b.At(data.Pos{Row: row, Col: col}))

	_, err = runCLI(t, append(base, "predict", "121212212")...)
	assert.ErrorContains(t, err, "no empty cell")
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	src := []string{"-data", filepath.Join(dir, "src")}
	dst := []string{"-data", filepath.Join(dir, "dst")}
	csvPath := filepath.Join(dir, "games.csv")

	_, err := runCLI(t, append(src, "selfplay", "-games", "25", "-seed", "3")...)
	require.NoError(t, err)

	out, err := runCLI(t, append(src, "export", csvPath)...)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 25 games")

	out, err = runCLI(t, append(dst, "import", csvPath)...)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 25 games")

	out, err = runCLI(t, append(dst, "stats")...)
	require.NoError(t, err)
	assert.Contains(t, out, "games: 25")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
