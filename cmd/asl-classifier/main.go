package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	arg "github.com/alexflint/go-arg"

	"github.com/ironsheep/asl-classifier/internal/config"
	"github.com/ironsheep/asl-classifier/internal/dataset"
	"github.com/ironsheep/asl-classifier/internal/imaging"
	"github.com/ironsheep/asl-classifier/internal/logger"
	"github.com/ironsheep/asl-classifier/internal/model"
	"github.com/ironsheep/asl-classifier/internal/pipeline"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type runCmd struct{}

type trainCmd struct{}

type evaluateCmd struct{}

type predictCmd struct {
	Images []string `arg:"positional" help:"images to classify (default: the images listed in the config)"`
	Sheet  string   `arg:"--sheet" help:"write a captioned contact sheet PNG of the predictions"`
}

type summaryCmd struct{}

type args struct {
	Run      *runCmd      `arg:"subcommand:run" help:"train, evaluate and classify the configured images"`
	Train    *trainCmd    `arg:"subcommand:train" help:"train and save the model"`
	Evaluate *evaluateCmd `arg:"subcommand:evaluate" help:"evaluate the saved model on the test and validation sets"`
	Predict  *predictCmd  `arg:"subcommand:predict" help:"classify images with the saved model"`
	Summary  *summaryCmd  `arg:"subcommand:summary" help:"print the network layer table"`

	Config string `arg:"-c,--config" help:"YAML config file"`

	TrainDir     *string  `arg:"--train-dir" help:"training directory with one subdirectory per category"`
	TestDir      *string  `arg:"--test-dir" help:"flat test directory"`
	ModelDir     *string  `arg:"--model-dir" help:"where models, checkpoints and logs are written"`
	ImageSize    *int     `arg:"--image-size"`
	Epochs       *int     `arg:"--epochs"`
	BatchSize    *int     `arg:"--batch-size"`
	LearningRate *float64 `arg:"--learning-rate"`
	Preprocess   *string  `arg:"--preprocess" help:"none or laplacian"`
	Workers      *int     `arg:"--workers"`
	Seed         *int64   `arg:"--seed"`
	NoProgress   bool     `arg:"--no-progress" help:"disable the training progress bar"`

	NormalizeConfusion bool `arg:"--normalize-confusion" help:"plot row-normalized confusion matrices"`
}

func (args) Version() string {
	return fmt.Sprintf("asl-classifier %s\n  Build time: %s\n  Git commit: %s", Version, BuildTime, GitCommit)
}

func (args) Description() string {
	return "asl-classifier - train and run a sign-language alphabet image classifier\n\n" +
		"Environment variables:\n" +
		"  " + logger.EnvLevel + "=debug    Enable debug logging"
}

// resolve loads the config file and applies flag overrides.
func (a *args) resolve() (config.Config, error) {
	cfg := config.Default()
	if a.Config != "" {
		var err error
		if cfg, err = config.Load(a.Config); err != nil {
			return cfg, err
		}
	}

	if a.TrainDir != nil {
		cfg.TrainDir = *a.TrainDir
	}
	if a.TestDir != nil {
		cfg.TestDir = *a.TestDir
	}
	if a.ModelDir != nil {
		cfg.ModelDir = *a.ModelDir
	}
	if a.ImageSize != nil {
		cfg.ImageSize = *a.ImageSize
	}
	if a.Epochs != nil {
		cfg.Epochs = *a.Epochs
	}
	if a.BatchSize != nil {
		cfg.BatchSize = *a.BatchSize
	}
	if a.LearningRate != nil {
		cfg.LearningRate = *a.LearningRate
	}
	if a.Preprocess != nil {
		cfg.Preprocess = *a.Preprocess
	}
	if a.Workers != nil {
		cfg.Workers = *a.Workers
	}
	if a.Seed != nil {
		cfg.Seed = *a.Seed
	}
	if a.NoProgress {
		cfg.Progress = false
	}
	if a.NormalizeConfusion {
		cfg.NormalizeConfusion = true
	}
	return cfg, cfg.Validate()
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand: run, train, evaluate, predict or summary")
	}

	if err := logger.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.S().Debugw("starting", "version", Version, "build_time", BuildTime, "commit", GitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, &a); err != nil {
		if errors.Is(err, model.ErrModelNotFound) {
			err = fmt.Errorf("%w (run \"asl-classifier train\" first)", err)
		}
		logger.S().Errorw("command failed", "error", err)
		logger.Sync()
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *args) error {
	cfg, err := a.resolve()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	out := os.Stdout

	switch {
	case a.Run != nil:
		return pipeline.Run(ctx, cfg, out)

	case a.Train != nil:
		res, err := pipeline.Train(ctx, cfg)
		if err != nil {
			return err
		}
		return res.Network.Summary(out)

	case a.Evaluate != nil:
		net, err := pipeline.LoadModel(cfg)
		if err != nil {
			return err
		}
		cfg.ImageSize = net.Architecture().ImageSize
		enc, err := dataset.NewLabelEncoder(net.Categories())
		if err != nil {
			return err
		}
		_, val, err := pipeline.LoadSplit(ctx, cfg, enc)
		if err != nil {
			return err
		}
		return pipeline.EvaluateAll(ctx, cfg, net, enc, val, out)

	case a.Predict != nil:
		net, err := pipeline.LoadModel(cfg)
		if err != nil {
			return err
		}
		images := a.Predict.Images
		if len(images) == 0 {
			images = cfg.Images
		}
		cache := imaging.NewImageCache()
		preds, err := pipeline.PredictFiles(ctx, net, cfg, cache, images)
		if err != nil {
			return err
		}
		pipeline.PrintPredictions(out, preds)
		if a.Predict.Sheet != "" {
			return pipeline.WriteContactSheet(preds, cache, a.Predict.Sheet)
		}
		return nil

	case a.Summary != nil:
		if net, err := pipeline.LoadModel(cfg); err == nil {
			return net.Summary(out)
		} else if !errors.Is(err, model.ErrModelNotFound) {
			return err
		}
		enc, err := pipeline.NewEncoder(cfg)
		if err != nil {
			return err
		}
		net, err := model.New(model.DefaultArchitecture(cfg.ImageSize, enc.Len(), cfg.Dropout), enc.Classes())
		if err != nil {
			return err
		}
		return net.Summary(out)
	}
	return nil
}
