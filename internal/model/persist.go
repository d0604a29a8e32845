package model

import (
	"compress/zlib"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorgonia.org/tensor"

	"github.com/ironsheep/asl-classifier/internal/logger"
)

// ErrModelNotFound is returned by Load when the architecture or weights file
// does not exist.
var ErrModelNotFound = errors.New("saved model not found")

// savedArchitecture is the on-disk form of a network description.
type savedArchitecture struct {
	Architecture Architecture `json:"architecture"`
	Categories   []string     `json:"categories"`
	SavedAt      time.Time    `json:"saved_at"`
}

// weightRecord is one named learnable tensor in a weights file.
type weightRecord struct {
	Name  string
	Shape []int
	Data  []float32
}

// SaveArchitecture writes the layer description and class names as JSON.
func (n *Network) SaveArchitecture(path string) error {
	data, err := json.MarshalIndent(savedArchitecture{
		Architecture: n.arch,
		Categories:   n.categories,
		SavedAt:      time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode architecture: %w", err)
	}
	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(append(data, '\n'))
		return err
	})
}

// LoadArchitecture reads a file written by SaveArchitecture and returns a
// network with freshly initialized weights.
func LoadArchitecture(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read architecture: %w", err)
	}
	var saved savedArchitecture
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse architecture %s: %w", path, err)
	}
	return New(saved.Architecture, saved.Categories)
}

// SaveWeights writes every learnable tensor as a zlib-compressed gob stream.
func (n *Network) SaveWeights(path string) error {
	records := make([]weightRecord, len(n.params))
	for i, p := range n.params {
		records[i] = weightRecord{
			Name:  p.name,
			Shape: append([]int(nil), p.value.Shape()...),
			Data:  p.value.Data().([]float32),
		}
	}
	return writeAtomic(path, func(f *os.File) error {
		zw := zlib.NewWriter(f)
		if err := gob.NewEncoder(zw).Encode(records); err != nil {
			zw.Close()
			return fmt.Errorf("failed to encode weights: %w", err)
		}
		return zw.Close()
	})
}

// LoadWeights replaces the network's weights with those in path. Every
// learnable must be present with a matching shape.
func (n *Network) LoadWeights(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open weights: %w", err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read weights %s: %w", path, err)
	}
	defer zr.Close()

	var records []weightRecord
	if err := gob.NewDecoder(zr).Decode(&records); err != nil {
		return fmt.Errorf("failed to decode weights %s: %w", path, err)
	}

	byName := make(map[string]weightRecord, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}
	for _, p := range n.params {
		r, ok := byName[p.name]
		if !ok {
			return fmt.Errorf("weights file has no %s", p.name)
		}
		want := p.value.Shape()
		if !want.Eq(tensor.Shape(r.Shape)) || len(r.Data) != want.TotalSize() {
			return fmt.Errorf("%s has shape %v, want %v", p.name, r.Shape, want)
		}
	}
	for _, p := range n.params {
		copy(p.value.Data().([]float32), byName[p.name].Data)
	}
	return nil
}

// Load restores a network saved with SaveArchitecture and SaveWeights. It
// returns ErrModelNotFound if either file is missing.
func Load(modelPath, weightsPath string) (*Network, error) {
	for _, p := range []string{modelPath, weightsPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrModelNotFound, p)
			}
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
	}

	n, err := LoadArchitecture(modelPath)
	if err != nil {
		return nil, err
	}
	if err := n.LoadWeights(weightsPath); err != nil {
		return nil, err
	}
	logger.S().Infow("model loaded", "model", modelPath, "weights", weightsPath, "classes", n.arch.Classes)
	return n, nil
}

// CheckpointCallback saves the weights after every epoch.
type CheckpointCallback struct {
	Path string
}

// OnEpochEnd writes the current weights to c.Path.
func (c CheckpointCallback) OnEpochEnd(_ context.Context, n *Network, m EpochMetrics) error {
	if err := n.SaveWeights(c.Path); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	logger.S().Infow("saved checkpoint", "epoch", m.Epoch, "path", c.Path)
	return nil
}

// writeAtomic writes through a temporary file in the destination directory
// and renames it into place.
func writeAtomic(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
