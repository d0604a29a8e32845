package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/asl-classifier/internal/model"
)

// File names inside the model directory.
const (
	ModelFile      = "cnn-model.json"
	WeightsFile    = "cnn-model.weights.gob.z"
	CheckpointFile = "cp.gob.z"
)

// Preprocessing modes accepted by the Preprocess field.
const (
	PreprocessNone      = "none"
	PreprocessLaplacian = "laplacian"
)

// Augmentation holds the random transforms applied to training batches.
type Augmentation struct {
	// WidthShift is the maximum horizontal shift as a fraction of the image width.
	WidthShift float64 `yaml:"width_shift"`

	// HeightShift is the maximum vertical shift as a fraction of the image height.
	HeightShift float64 `yaml:"height_shift"`

	// Rotation is the maximum rotation in degrees, applied in both directions.
	Rotation float64 `yaml:"rotation"`

	HorizontalFlip bool `yaml:"horizontal_flip"`
	VerticalFlip   bool `yaml:"vertical_flip"`
}

// Config is the complete set of pipeline settings.
type Config struct {
	TrainDir string `yaml:"train_dir"`
	TestDir  string `yaml:"test_dir"`
	ModelDir string `yaml:"model_dir"`

	// ImageSize is the edge length every image is resized to.
	ImageSize int `yaml:"image_size"`

	ValidationSplit float64 `yaml:"validation_split"`
	SplitSeed       int64   `yaml:"split_seed"`

	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	Dropout      float64 `yaml:"dropout"`

	// Rescale multiplies raw 0-255 pixel values before they reach the network.
	Rescale float64 `yaml:"rescale"`

	// Preprocess is "none" or "laplacian".
	Preprocess string `yaml:"preprocess"`

	Augmentation Augmentation `yaml:"augmentation"`

	// Workers bounds parallel image decoding.
	Workers int `yaml:"workers"`

	// Progress draws a progress bar while training.
	Progress bool `yaml:"progress"`

	// NormalizeConfusion plots row fractions instead of counts in the
	// confusion matrix figures.
	NormalizeConfusion bool `yaml:"normalize_confusion"`

	// Seed drives shuffling and augmentation.
	Seed int64 `yaml:"seed"`

	// Images are external files classified at the end of a full run.
	Images []string `yaml:"images"`
}

// Default returns the stock training settings.
func Default() Config {
	return Config{
		TrainDir:        "asl_alphabet_train/asl_alphabet_train",
		TestDir:         "asl_alphabet_test/asl_alphabet_test",
		ModelDir:        "model",
		ImageSize:       50,
		ValidationSplit: 0.1,
		SplitSeed:       2,
		BatchSize:       64,
		Epochs:          5,
		LearningRate:    0.001,
		Dropout:         0.25,
		Rescale:         1.0 / 255.0,
		Preprocess:      PreprocessNone,
		Augmentation: Augmentation{
			WidthShift:  0.1,
			HeightShift: 0.1,
			Rotation:    5,
		},
		Workers:  runtime.NumCPU(),
		Progress: true,
		Seed:     1,
		Images: []string{
			"asl_alphabet_test/asl_alphabet_test/A_test.jpg",
			"asl_alphabet_test/asl_alphabet_test/B_test.jpg",
		},
	}
}

// Load reads a YAML file and overlays it on Default. Fields missing from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	switch {
	case c.ImageSize < 8:
		return fmt.Errorf("image_size must be at least 8, got %d", c.ImageSize)
	case c.ValidationSplit < 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("validation_split must be in [0, 1), got %g", c.ValidationSplit)
	case c.BatchSize < 1:
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	case c.Epochs < 1:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning_rate must be positive, got %g", c.LearningRate)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	case c.Rescale <= 0:
		return fmt.Errorf("rescale must be positive, got %g", c.Rescale)
	case c.Workers < 1:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.ModelDir == "":
		return fmt.Errorf("model_dir must not be empty")
	}

	// two classes stand in for the real count; only the spatial sizes matter
	if _, err := model.DefaultArchitecture(c.ImageSize, 2, c.Dropout).OutputShapes(); err != nil {
		return fmt.Errorf("image_size %d is too small for the network: %w", c.ImageSize, err)
	}

	switch c.Preprocess {
	case PreprocessNone, PreprocessLaplacian:
	default:
		return fmt.Errorf("unknown preprocess mode %q", c.Preprocess)
	}

	a := c.Augmentation
	if a.WidthShift < 0 || a.WidthShift >= 1 || a.HeightShift < 0 || a.HeightShift >= 1 {
		return fmt.Errorf("augmentation shifts must be in [0, 1)")
	}
	if a.Rotation < 0 || a.Rotation > 180 {
		return fmt.Errorf("augmentation rotation must be in [0, 180], got %g", a.Rotation)
	}
	return nil
}

// ModelPath is where the architecture description is written.
func (c Config) ModelPath() string {
	return filepath.Join(c.ModelDir, ModelFile)
}

// WeightsPath is where the final trained weights are written.
func (c Config) WeightsPath() string {
	return filepath.Join(c.ModelDir, WeightsFile)
}

// CheckpointPath is overwritten with the weights after every epoch.
func (c Config) CheckpointPath() string {
	return filepath.Join(c.ModelDir, "checkpoints", CheckpointFile)
}

// LogDir returns the per-run training log directory for a run started at now.
func (c Config) LogDir(now time.Time) string {
	return filepath.Join(c.ModelDir, "logs", "fit", now.Format("20060102-150405"))
}

// ConfusionPath is the confusion matrix figure for the named evaluation set.
func (c Config) ConfusionPath(set string) string {
	return filepath.Join(c.ModelDir, "confusion-"+set+".png")
}

// EnsureModelDir creates the model directory and its checkpoint directory.
// It succeeds when they already exist.
func (c Config) EnsureModelDir() error {
	if err := os.MkdirAll(filepath.Dir(c.CheckpointPath()), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	return nil
}
