package ml

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// Model blob layout:
//
//	[0:4]   magic "TTTN"
//	[4:6]   format version, big endian
//	[6:14]  xxhash64 of the payload, big endian
//	[14:]   gob-encoded networkData
const (
	modelMagic      = "TTTN"
	modelVersion    = 1
	modelHeaderSize = 14
)

type layerData struct {
	Weights *Matrix
	Biases  *Matrix
	ActType Activation
}

type networkData struct {
	Layers       []layerData
	LearningRate float64
	Loss         Loss
}

// Marshal serializes the network's parameters, activation tags and loss kind.
func Marshal(nw *Network) ([]byte, error) {
	if err := nw.checkChain(); err != nil {
		return nil, err
	}

	nd := networkData{
		Layers:       make([]layerData, len(nw.Layers)),
		LearningRate: nw.LearningRate,
		Loss:         nw.Loss,
	}
	for i, l := range nw.Layers {
		nd.Layers[i] = layerData{Weights: l.Weights, Biases: l.Biases, ActType: l.ActType}
	}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(nd); err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}

	blob := make([]byte, modelHeaderSize, modelHeaderSize+payload.Len())
	copy(blob[0:4], modelMagic)
	binary.BigEndian.PutUint16(blob[4:6], modelVersion)
	binary.BigEndian.PutUint64(blob[6:14], xxhash.Sum64(payload.Bytes()))
	return append(blob, payload.Bytes()...), nil
}

// Unmarshal rebuilds a network from a blob produced by Marshal. Every
// structural problem is reported as ErrCorruptModel and no partially
// decoded network is ever returned. opts apply on top of the stored
// learning rate and loss (e.g. WithSeed for later training).
func Unmarshal(blob []byte, opts ...Option) (*Network, error) {
	if len(blob) <= modelHeaderSize {
		return nil, fmt.Errorf("%w: blob is %d bytes", ErrCorruptModel, len(blob))
	}
	if string(blob[0:4]) != modelMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptModel, blob[0:4])
	}
	if v := binary.BigEndian.Uint16(blob[4:6]); v != modelVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptModel, v)
	}
	payload := blob[modelHeaderSize:]
	if binary.BigEndian.Uint64(blob[6:14]) != xxhash.Sum64(payload) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptModel)
	}

	var nd networkData
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&nd); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCorruptModel, err)
	}
	if err := nd.validate(); err != nil {
		return nil, err
	}

	base := []Option{WithLearningRate(nd.LearningRate), WithLoss(nd.Loss)}
	nw, err := NewNetwork(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	for _, ld := range nd.Layers {
		layer := &Layer{Weights: ld.Weights, Biases: ld.Biases, ActType: ld.ActType}
		layer.allocGradients()
		nw.Layers = append(nw.Layers, layer)
	}
	return nw, nil
}

func (nd *networkData) validate() error {
	if len(nd.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrCorruptModel)
	}
	if !nd.Loss.valid() {
		return fmt.Errorf("%w: loss tag %d", ErrCorruptModel, int(nd.Loss))
	}
	if nd.LearningRate <= 0 || math.IsNaN(nd.LearningRate) || math.IsInf(nd.LearningRate, 0) {
		return fmt.Errorf("%w: learning rate %v", ErrCorruptModel, nd.LearningRate)
	}

	for i, ld := range nd.Layers {
		if ld.Weights == nil || ld.Biases == nil {
			return fmt.Errorf("%w: layer %d is missing parameters", ErrCorruptModel, i)
		}
		if !ld.ActType.valid() {
			return fmt.Errorf("%w: layer %d activation tag %d", ErrCorruptModel, i, int(ld.ActType))
		}
		if ld.Biases.rows != 1 || ld.Biases.cols != ld.Weights.cols {
			return fmt.Errorf("%w: layer %d bias shape [%d, %d] for weights [%d, %d]", ErrCorruptModel, i,
				ld.Biases.rows, ld.Biases.cols, ld.Weights.rows, ld.Weights.cols)
		}
		if i > 0 && nd.Layers[i-1].Weights.cols != ld.Weights.rows {
			return fmt.Errorf("%w: layer %d does not chain: %d outputs into %d inputs", ErrCorruptModel, i,
				nd.Layers[i-1].Weights.cols, ld.Weights.rows)
		}
		for _, m := range []*Matrix{ld.Weights, ld.Biases} {
			for _, v := range m.data {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("%w: layer %d holds non-finite parameters", ErrCorruptModel, i)
				}
			}
		}
	}
	return nil
}

// SaveToFile writes the model blob atomically: a temp file in the same
// directory is renamed over filename once fully written.
func (nw *Network) SaveToFile(filename string) error {
	blob, err := Marshal(nw)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

// LoadFromFile reads and validates a model written by SaveToFile.
func LoadFromFile(filename string, opts ...Option) (*Network, error) {
	blob, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Unmarshal(blob, opts...)
}
