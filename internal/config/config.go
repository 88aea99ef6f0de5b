// Package config loads tictacnet settings from YAML over built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BX7GamerX/tictacnet/ml"
	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables. Zero-valued paths are resolved under
// the platform data directory.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	ModelPath string `yaml:"model_path"`

	Network  NetworkConfig  `yaml:"network"`
	Training TrainingConfig `yaml:"training"`
	Builder  BuilderConfig  `yaml:"builder"`
	SelfPlay SelfPlayConfig `yaml:"selfplay"`
}

type NetworkConfig struct {
	Layers       []int    `yaml:"layers"`      // sizes, input first
	Activations  []string `yaml:"activations"` // one per layer after the input
	Loss         string   `yaml:"loss"`
	Optimizer    string   `yaml:"optimizer"`
	Init         string   `yaml:"init"`
	LearningRate float64  `yaml:"learning_rate"`
	Seed         uint64   `yaml:"seed"` // 0 picks a random seed
}

type TrainingConfig struct {
	Epochs       int `yaml:"epochs"`
	BatchSize    int `yaml:"batch_size"`
	VerboseEvery int `yaml:"verbose_every"`
}

type BuilderConfig struct {
	MinExamples           int  `yaml:"min_examples"`
	MinGameMoves          int  `yaml:"min_game_moves"`
	SkipFinalDecisiveMove bool `yaml:"skip_final_decisive_move"`
}

type SelfPlayConfig struct {
	Games   int    `yaml:"games"`
	Workers int    `yaml:"workers"`
	Seed    uint64 `yaml:"seed"`
}

// Default returns the board network and training schedule the engine was
// tuned with.
func Default() Config {
	return Config{
		Network: NetworkConfig{
			Layers:       []int{9, 27, 18, 9},
			Activations:  []string{"relu", "relu", "sigmoid"},
			Loss:         "mse",
			Optimizer:    "sgd",
			Init:         "small_normal",
			LearningRate: 0.01,
		},
		Training: TrainingConfig{
			Epochs:       200,
			BatchSize:    32,
			VerboseEvery: 50,
		},
		Builder: BuilderConfig{
			MinExamples:           10,
			MinGameMoves:          5,
			SkipFinalDecisiveMove: true,
		},
		SelfPlay: SelfPlayConfig{
			Games: 1000,
		},
	}
}

// Load reads path over Default and validates the result. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes YAML from r over Default. Unknown keys are rejected.
func Read(r io.Reader) (Config, error) {
	cfg := Default()
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %v", ml.ErrInvalidConfig, err)
		}
	}
	return cfg, cfg.Validate()
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks every value, including that activation, loss, optimizer
// and init names parse. Failures wrap ml.ErrInvalidConfig.
func (c Config) Validate() error {
	n := c.Network
	if len(n.Layers) < 2 {
		return invalid("network.layers needs input and output sizes, got %v", n.Layers)
	}
	for i, size := range n.Layers {
		if size <= 0 {
			return invalid("network.layers[%d] = %d", i, size)
		}
	}
	if first, last := n.Layers[0], n.Layers[len(n.Layers)-1]; first != 9 || last != 9 {
		return invalid("board network must map 9 cells to 9 cells, got %d -> %d", first, last)
	}
	if len(n.Activations) != len(n.Layers)-1 {
		return invalid("network.activations has %d entries for %d layers", len(n.Activations), len(n.Layers)-1)
	}
	if _, err := n.activations(); err != nil {
		return err
	}
	if _, err := ml.ParseLoss(n.Loss); err != nil {
		return invalid("network.loss: %v", err)
	}
	if _, err := ml.ParseOptimizer(n.Optimizer); err != nil {
		return invalid("network.optimizer: %v", err)
	}
	if _, err := ml.ParseWeightInit(n.Init); err != nil {
		return invalid("network.init: %v", err)
	}
	if !(n.LearningRate > 0) {
		return invalid("network.learning_rate = %v", n.LearningRate)
	}

	if c.Training.Epochs <= 0 {
		return invalid("training.epochs = %d", c.Training.Epochs)
	}
	if c.Training.BatchSize <= 0 {
		return invalid("training.batch_size = %d", c.Training.BatchSize)
	}
	if c.Training.VerboseEvery < 0 {
		return invalid("training.verbose_every = %d", c.Training.VerboseEvery)
	}
	if c.Builder.MinExamples < 0 || c.Builder.MinGameMoves < 0 {
		return invalid("builder thresholds must not be negative")
	}
	if c.SelfPlay.Games < 0 || c.SelfPlay.Workers < 0 {
		return invalid("selfplay counts must not be negative")
	}
	return nil
}

func (n NetworkConfig) activations() ([]ml.Activation, error) {
	acts := make([]ml.Activation, len(n.Activations))
	for i, name := range n.Activations {
		act, err := ml.ParseActivation(name)
		if err != nil {
			return nil, invalid("network.activations[%d]: %v", i, err)
		}
		acts[i] = act
	}
	return acts, nil
}

// NewNetwork builds a freshly initialised network from the settings.
func (n NetworkConfig) NewNetwork() (*ml.Network, error) {
	acts, err := n.activations()
	if err != nil {
		return nil, err
	}
	loss, err := ml.ParseLoss(n.Loss)
	if err != nil {
		return nil, err
	}
	opt, err := ml.ParseOptimizer(n.Optimizer)
	if err != nil {
		return nil, err
	}
	weightInit, err := ml.ParseWeightInit(n.Init)
	if err != nil {
		return nil, err
	}

	opts := []ml.Option{
		ml.WithLearningRate(n.LearningRate),
		ml.WithLoss(loss),
		ml.WithOptimizer(opt),
		ml.WithInit(weightInit),
	}
	if n.Seed != 0 {
		opts = append(opts, ml.WithSeed(n.Seed))
	}
	return ml.Build(n.Layers, acts, opts...)
}

// ML converts the schedule for ml.Network.Train.
func (t TrainingConfig) ML() ml.TrainingConfig {
	return ml.TrainingConfig{Epochs: t.Epochs, BatchSize: t.BatchSize, VerboseEvery: t.VerboseEvery}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ml.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
