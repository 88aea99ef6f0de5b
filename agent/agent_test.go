package agent

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/BX7GamerX/tictacnet/data"
	"github.com/BX7GamerX/tictacnet/internal/config"
	"github.com/BX7GamerX/tictacnet/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Network.Seed = 11
	cfg.Training.Epochs = 15
	cfg.Training.VerboseEvery = 0
	return cfg
}

func newAgent(t *testing.T) *Agent {
	t.Helper()
	a, err := New(testConfig(), filepath.Join(t.TempDir(), "model", "network.bin"),
		WithRand(rand.New(rand.NewPCG(3, 4))))
	require.NoError(t, err)
	return a
}

func selfPlayRecords(t *testing.T, games int) []data.GameRecord {
	t.Helper()
	records, _, err := data.SelfPlay(context.Background(), data.SelfPlayConfig{Games: games, Workers: 2, Seed: 9})
	require.NoError(t, err)
	return records
}

var probeBoards = []string{"000000000", "100020000", "120000000", "102010200", "110220000"}

func predictions(t *testing.T, a *Agent) []data.Pos {
	t.Helper()
	var out []data.Pos
	for _, s := range probeBoards {
		b, err := data.ParseBoard(s)
		require.NoError(t, err)
		pos, ok := a.PredictMove(b)
		require.True(t, ok)
		require.Equal(t, data.Empty, b.At(pos), "board %s", s)
		out = append(out, pos)
	}
	return out
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Network.Layers = []int{9, 4}
	_, err := New(cfg, "unused")
	assert.ErrorIs(t, err, ml.ErrInvalidConfig)
}

func TestPredictWithoutModel(t *testing.T) {
	a := newAgent(t)
	assert.False(t, a.HasModel())
	predictions(t, a)
}

func TestTrainFromRecords(t *testing.T) {
	a := newAgent(t)
	nw, err := a.TrainFromRecords(context.Background(), selfPlayRecords(t, 60))
	require.NoError(t, err)
	require.NotNil(t, nw)
	assert.True(t, a.HasModel())
	assert.Equal(t, 9, nw.InputSize())
	assert.Equal(t, 9, nw.OutputSize())
	predictions(t, a)
}

func TestTrainInsufficientDataKeepsModel(t *testing.T) {
	a := newAgent(t)

	// two short decisive games give 4 examples each, below the minimum of 10
	var short []data.GameRecord
	for i, script := range [][]int{{0, 3, 1, 4, 2}, {6, 0, 7, 1, 8}} {
		g := data.NewGame()
		for _, idx := range script {
			p, _ := data.PosFromIndex(idx)
			require.NoError(t, g.Play(p))
		}
		require.Equal(t, data.OutcomePlayerAWins, g.Outcome())
		short = append(short, g.Record(fmt.Sprintf("short-%d", i)))
	}

	_, err := a.TrainFromRecords(context.Background(), short)
	var insufficient *data.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 8, insufficient.Got)
	assert.Equal(t, 10, insufficient.Want)
	assert.False(t, a.HasModel())

	_, err = a.Train(context.Background(), nil)
	assert.ErrorIs(t, err, data.ErrInsufficientData)

	_, err = a.TrainFromRecords(context.Background(), selfPlayRecords(t, 40))
	require.NoError(t, err)
	before := predictions(t, a)

	_, err = a.TrainFromRecords(context.Background(), short)
	assert.ErrorIs(t, err, data.ErrInsufficientData)
	assert.Equal(t, before, predictions(t, a))

	_, err = a.Train(context.Background(), &data.TrainingSet{})
	assert.ErrorIs(t, err, data.ErrInsufficientData)
	assert.Equal(t, before, predictions(t, a))
}

func TestTrainCancelledKeepsModel(t *testing.T) {
	a := newAgent(t)
	records := selfPlayRecords(t, 40)
	_, err := a.TrainFromRecords(context.Background(), records)
	require.NoError(t, err)
	before := predictions(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.TrainFromRecords(ctx, records)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, predictions(t, a))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model", "network.bin")
	a, err := New(testConfig(), path)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Save(), errNoModel)

	_, err = a.TrainFromRecords(context.Background(), selfPlayRecords(t, 40))
	require.NoError(t, err)
	require.NoError(t, a.Save())

	b, err := New(testConfig(), path)
	require.NoError(t, err)
	require.True(t, b.Load())
	assert.True(t, b.HasModel())
	assert.Equal(t, predictions(t, a), predictions(t, b))
}

func TestLoadFailuresKeepModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "network.bin")
	a, err := New(testConfig(), path)
	require.NoError(t, err)

	assert.False(t, a.Load(), "missing file")
	assert.False(t, a.HasModel())

	_, err = a.TrainFromRecords(context.Background(), selfPlayRecords(t, 40))
	require.NoError(t, err)
	before := predictions(t, a)

	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0o644))
	assert.False(t, a.Load(), "corrupt file")
	assert.Equal(t, before, predictions(t, a))

	small, err := ml.Build([]int{4, 2}, []ml.Activation{ml.ActSigmoid}, ml.WithSeed(1))
	require.NoError(t, err)
	require.NoError(t, small.SaveToFile(path))
	assert.False(t, a.Load(), "wrong board shape")
	assert.Equal(t, before, predictions(t, a))
}

func TestTrainOnTwentyScriptedGames(t *testing.T) {
	scripts := [][]int{
		{0, 3, 1, 4, 2},             // X wins across the top
		{0, 4, 1, 2, 8, 6},          // O wins on the anti-diagonal
		{0, 1, 2, 4, 3, 5, 7, 6, 8}, // draw
	}
	var records []data.GameRecord
	for i := range 20 {
		g := data.NewGame()
		for _, idx := range scripts[i%len(scripts)] {
			p, _ := data.PosFromIndex(idx)
			require.NoError(t, g.Play(p))
		}
		records = append(records, g.Record(""))
	}

	a := newAgent(t)
	set, err := a.BuildTrainingSet(records)
	require.NoError(t, err)
	assert.Equal(t, 20, set.Stats.Games)

	_, err = a.Train(context.Background(), set)
	require.NoError(t, err)
	predictions(t, a)
}
