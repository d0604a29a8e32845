package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ironsheep/asl-classifier/internal/config"
	"github.com/ironsheep/asl-classifier/internal/dataset"
	"github.com/ironsheep/asl-classifier/internal/imaging"
	"github.com/ironsheep/asl-classifier/internal/logger"
	"github.com/ironsheep/asl-classifier/internal/metrics"
	"github.com/ironsheep/asl-classifier/internal/model"
	"github.com/ironsheep/asl-classifier/internal/report"
)

// TrainResult is everything produced by Train.
type TrainResult struct {
	Network    *model.Network
	Encoder    *dataset.LabelEncoder
	Train      *dataset.Set
	Validation *dataset.Set
	History    *model.History
}

// loadOptions describes how images from dir are read for cfg.
func loadOptions(cfg config.Config, dir string) (dataset.LoadOptions, error) {
	pre, err := imaging.NewPreprocessor(cfg.Preprocess)
	if err != nil {
		return dataset.LoadOptions{}, err
	}
	return dataset.LoadOptions{
		Dir:          dir,
		ImageSize:    cfg.ImageSize,
		Workers:      cfg.Workers,
		Preprocessor: pre,
	}, nil
}

func augmentOptions(cfg config.Config) imaging.AugmentOptions {
	a := cfg.Augmentation
	return imaging.AugmentOptions{
		WidthShift:     a.WidthShift,
		HeightShift:    a.HeightShift,
		Rotation:       a.Rotation,
		HorizontalFlip: a.HorizontalFlip,
		VerticalFlip:   a.VerticalFlip,
	}
}

// NewEncoder label-encodes the category directories of the training dir.
func NewEncoder(cfg config.Config) (*dataset.LabelEncoder, error) {
	categories, err := dataset.ListCategories(cfg.TrainDir)
	if err != nil {
		return nil, err
	}
	return dataset.NewLabelEncoder(categories)
}

// LoadSplit loads the training directory and splits off the validation set.
// The split depends only on cfg.SplitSeed, so repeated calls agree.
func LoadSplit(ctx context.Context, cfg config.Config, enc *dataset.LabelEncoder) (train, val *dataset.Set, err error) {
	opts, err := loadOptions(cfg, cfg.TrainDir)
	if err != nil {
		return nil, nil, err
	}
	all, err := dataset.LoadTraining(ctx, opts, enc)
	if err != nil {
		return nil, nil, err
	}
	train, val, err = dataset.Split(all, cfg.ValidationSplit, cfg.SplitSeed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split training data: %w", err)
	}
	logger.S().Infow("split training data",
		"train", humanize.Comma(int64(train.Len())),
		"validation", humanize.Comma(int64(val.Len())))
	return train, val, nil
}

// LoadTestSet loads the flat test directory.
func LoadTestSet(ctx context.Context, cfg config.Config, enc *dataset.LabelEncoder) (*dataset.Set, error) {
	opts, err := loadOptions(cfg, cfg.TestDir)
	if err != nil {
		return nil, err
	}
	return dataset.LoadTest(ctx, opts, enc)
}

// Train loads and splits the training data, builds the network, saves its
// architecture and fits it with per-epoch checkpoints and a history log. The
// final weights are written to cfg.WeightsPath().
func Train(ctx context.Context, cfg config.Config) (*TrainResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureModelDir(); err != nil {
		return nil, err
	}

	enc, err := NewEncoder(cfg)
	if err != nil {
		return nil, err
	}
	logger.S().Infow("found categories", "count", enc.Len(), "classes", enc.Classes())

	trainSet, valSet, err := LoadSplit(ctx, cfg, enc)
	if err != nil {
		return nil, err
	}

	var aug *imaging.Augmenter
	if opts := augmentOptions(cfg); opts.Enabled() {
		aug = imaging.NewAugmenter(opts, cfg.Seed)
	}
	rescale := float32(cfg.Rescale)
	gen, err := dataset.Flow(trainSet, enc.Len(), cfg.BatchSize, rescale, aug, cfg.Seed)
	if err != nil {
		return nil, err
	}

	net, err := model.New(model.DefaultArchitecture(cfg.ImageSize, enc.Len(), cfg.Dropout), enc.Classes())
	if err != nil {
		return nil, err
	}
	if err := net.SaveArchitecture(cfg.ModelPath()); err != nil {
		return nil, fmt.Errorf("failed to save model: %w", err)
	}

	history, err := report.NewHistoryLogger(cfg.LogDir(time.Now()))
	if err != nil {
		return nil, err
	}

	fit := model.FitOptions{
		Epochs:       cfg.Epochs,
		LearningRate: cfg.LearningRate,
		Callbacks: []model.Callback{
			model.CheckpointCallback{Path: cfg.CheckpointPath()},
			history,
		},
		Progress: cfg.Progress,
	}
	if valSet.Len() > 0 {
		fit.Validation = valSet.Tensor(rescale)
		fit.ValidationLabels = valSet.Labels
	}

	start := time.Now()
	logger.S().Infow("training",
		"epochs", cfg.Epochs,
		"batch_size", cfg.BatchSize,
		"steps", gen.Steps(),
		"log_dir", history.Dir)
	h, err := net.Fit(ctx, gen, fit)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	logger.S().Infow("training finished", "elapsed", time.Since(start).Round(time.Second).String())

	if err := net.SaveWeights(cfg.WeightsPath()); err != nil {
		return nil, fmt.Errorf("failed to save weights: %w", err)
	}

	return &TrainResult{
		Network:    net,
		Encoder:    enc,
		Train:      trainSet,
		Validation: valSet,
		History:    h,
	}, nil
}

// LoadModel restores the network saved under cfg.ModelDir. The error wraps
// model.ErrModelNotFound when nothing has been saved yet.
func LoadModel(cfg config.Config) (*model.Network, error) {
	return model.Load(cfg.ModelPath(), cfg.WeightsPath())
}

// Evaluate predicts every sample of set, scores the predictions and writes
// the confusion matrix figure to cfg.ConfusionPath(name).
func Evaluate(ctx context.Context, net *model.Network, set *dataset.Set, name string, cfg config.Config) (*metrics.EvaluationResult, error) {
	if set.Len() == 0 {
		return nil, fmt.Errorf("%s set is empty", name)
	}

	start := time.Now()
	probs, err := net.Predict(ctx, set.Tensor(float32(cfg.Rescale)))
	if err != nil {
		return nil, fmt.Errorf("failed to predict %s set: %w", name, err)
	}
	elapsed := time.Since(start)
	logger.S().Infow("prediction finished",
		"set", name,
		"samples", humanize.Comma(int64(set.Len())),
		"seconds", elapsed.Seconds())

	classes := net.Categories()
	res, err := metrics.Evaluate(name, set.Labels, model.Argmax(probs), len(classes), elapsed)
	if err != nil {
		return nil, err
	}
	logger.S().Infow("evaluated", "set", name, "accuracy", res.Accuracy)

	if err := report.PlotConfusionMatrix(res.Matrix, classes, confusionOptions(cfg, name), cfg.ConfusionPath(name)); err != nil {
		return nil, err
	}
	return res, nil
}

func confusionOptions(cfg config.Config, name string) report.ConfusionOptions {
	return report.ConfusionOptions{
		Title:     fmt.Sprintf("Confusion matrix (%s)", name),
		Normalize: cfg.NormalizeConfusion,
	}
}

// EvaluateAll evaluates the test set and, when non-empty, the validation set,
// printing accuracies and the validation classification report to w.
func EvaluateAll(ctx context.Context, cfg config.Config, net *model.Network, enc *dataset.LabelEncoder, val *dataset.Set, w io.Writer) error {
	testSet, err := LoadTestSet(ctx, cfg, enc)
	if err != nil {
		return err
	}
	testRes, err := Evaluate(ctx, net, testSet, "test", cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Test accuracy: %.4f (%d images, %.2fs)\n",
		testRes.Accuracy, testSet.Len(), testRes.Elapsed.Seconds())

	if val == nil || val.Len() == 0 {
		return nil
	}
	valRes, err := Evaluate(ctx, net, val, "validation", cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Validation accuracy: %.4f (%d images, %.2fs)\n",
		valRes.Accuracy, val.Len(), valRes.Elapsed.Seconds())

	rep, err := metrics.ClassificationReport(valRes.Truth, valRes.Predictions, enc.Classes())
	if err != nil {
		return err
	}
	rep.Render(w)
	return nil
}

// Run executes the whole sequence: train, print the layer summary, evaluate
// the test and validation sets and classify cfg.Images.
func Run(ctx context.Context, cfg config.Config, w io.Writer) error {
	res, err := Train(ctx, cfg)
	if err != nil {
		return err
	}
	if err := res.Network.Summary(w); err != nil {
		return err
	}
	if err := EvaluateAll(ctx, cfg, res.Network, res.Encoder, res.Validation, w); err != nil {
		return err
	}
	if len(cfg.Images) == 0 {
		return nil
	}

	preds, err := PredictFiles(ctx, res.Network, cfg, imaging.NewImageCache(), cfg.Images)
	if err != nil {
		return err
	}
	PrintPredictions(w, preds)
	return nil
}
