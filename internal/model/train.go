package model

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/ironsheep/asl-classifier/internal/logger"
)

// BatchSource supplies fixed-size training batches.
type BatchSource interface {
	// Steps is the number of batches per epoch.
	Steps() int

	// BatchSize is the number of samples in every batch.
	BatchSize() int

	// Shuffle starts a new epoch order.
	Shuffle()

	// Batch returns the NCHW inputs, one-hot targets and integer labels of a step.
	Batch(step int) (x, y *tensor.Dense, labels []int, err error)
}

// EpochMetrics summarizes one training epoch. Validation fields are NaN when
// no validation data was supplied.
type EpochMetrics struct {
	Epoch       int
	Loss        float64
	Accuracy    float64
	ValLoss     float64
	ValAccuracy float64
	Duration    time.Duration
}

// History is the per-epoch record of a Fit call.
type History struct {
	Epochs []EpochMetrics
}

// Callback observes training. An error from OnEpochEnd stops Fit.
type Callback interface {
	OnEpochEnd(ctx context.Context, n *Network, m EpochMetrics) error
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(ctx context.Context, n *Network, m EpochMetrics) error

// OnEpochEnd calls f.
func (f CallbackFunc) OnEpochEnd(ctx context.Context, n *Network, m EpochMetrics) error {
	return f(ctx, n, m)
}

// FitOptions configures Fit.
type FitOptions struct {
	Epochs       int
	LearningRate float64

	// Validation holds (n, channels, size, size) inputs evaluated after every
	// epoch; ValidationLabels holds their labels. Both may be nil.
	Validation       *tensor.Dense
	ValidationLabels []int

	Callbacks []Callback

	// Progress draws a progress bar for each epoch.
	Progress bool
}

// Fit trains the network with Adam on batches from src.
//
// Each epoch reshuffles src, runs every step, evaluates the validation data
// without dropout and then invokes the callbacks in order. Fit stops early
// when ctx is cancelled or a callback fails; the returned History holds the
// epochs completed so far.
func (n *Network) Fit(ctx context.Context, src BatchSource, opts FitOptions) (*History, error) {
	if opts.Epochs < 1 {
		return nil, fmt.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", opts.LearningRate)
	}
	if opts.Validation != nil && opts.Validation.Shape()[0] != len(opts.ValidationLabels) {
		return nil, fmt.Errorf("%d validation samples but %d labels", opts.Validation.Shape()[0], len(opts.ValidationLabels))
	}

	gr, err := n.buildGraph(src.BatchSize(), true)
	if err != nil {
		return nil, err
	}
	vm := gorgonia.NewTapeMachine(gr.g, gorgonia.BindDualValues(gr.learnables...))
	defer vm.Close()
	solver := gorgonia.NewAdamSolver(gorgonia.WithLearnRate(opts.LearningRate))

	history := &History{}
	steps := src.Steps()

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		start := time.Now()
		src.Shuffle()

		losses := make([]float64, 0, steps)
		correct, seen := 0, 0

		step := func(s int) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			x, y, labels, err := src.Batch(s)
			if err != nil {
				return fmt.Errorf("failed to build batch %d: %w", s, err)
			}
			if err := gorgonia.Let(gr.x, x); err != nil {
				return fmt.Errorf("failed to bind inputs: %w", err)
			}
			if err := gorgonia.Let(gr.y, y); err != nil {
				return fmt.Errorf("failed to bind targets: %w", err)
			}
			defer vm.Reset()

			if err := vm.RunAll(); err != nil {
				return fmt.Errorf("training step %d failed: %w", s, err)
			}
			if err := solver.Step(gorgonia.NodesToValueGrads(gr.learnables)); err != nil {
				return fmt.Errorf("optimizer step %d failed: %w", s, err)
			}

			loss, err := scalar(gr.costVal)
			if err != nil {
				return err
			}
			losses = append(losses, loss)

			probs, ok := gr.probsVal.Data().([]float32)
			if !ok {
				return fmt.Errorf("unexpected output type %T", gr.probsVal.Data())
			}
			c := n.arch.Classes
			for i, l := range labels {
				if argmaxRow(probs[i*c:(i+1)*c]) == l {
					correct++
				}
			}
			seen += len(labels)
			return nil
		}

		if err := runSteps(steps, epoch, opts.Epochs, opts.Progress, step); err != nil {
			return history, err
		}
		if err := n.syncWeights(gr); err != nil {
			return history, err
		}

		m := EpochMetrics{
			Epoch:       epoch,
			Accuracy:    float64(correct) / float64(seen),
			ValLoss:     math.NaN(),
			ValAccuracy: math.NaN(),
		}
		if m.Loss, err = stats.Mean(losses); err != nil {
			return history, fmt.Errorf("failed to average loss: %w", err)
		}

		if opts.Validation != nil {
			probs, err := n.Predict(ctx, opts.Validation)
			if err != nil {
				return history, fmt.Errorf("validation failed: %w", err)
			}
			m.ValLoss, m.ValAccuracy = CrossEntropy(probs, opts.ValidationLabels)
		}
		m.Duration = time.Since(start)
		history.Epochs = append(history.Epochs, m)

		logger.S().Infow("epoch finished",
			"epoch", fmt.Sprintf("%d/%d", epoch, opts.Epochs),
			"loss", m.Loss,
			"accuracy", m.Accuracy,
			"val_loss", m.ValLoss,
			"val_accuracy", m.ValAccuracy,
			"elapsed", m.Duration.Round(time.Millisecond).String())

		for _, cb := range opts.Callbacks {
			if err := cb.OnEpochEnd(ctx, n, m); err != nil {
				return history, fmt.Errorf("callback failed after epoch %d: %w", epoch, err)
			}
		}
	}
	return history, nil
}

// runSteps executes step for 0..steps-1, behind a progress bar if requested.
func runSteps(steps, epoch, epochs int, progress bool, step func(int) error) error {
	if !progress {
		for s := 0; s < steps; s++ {
			if err := step(s); err != nil {
				return err
			}
		}
		return nil
	}

	var stepErr error
	desc := fmt.Sprintf("Epoch %d/%d", epoch, epochs)
	err := tqdm.With(iterators.Interval(0, steps), desc, func(v interface{}) (brk bool) {
		stepErr = step(v.(int))
		return stepErr != nil
	})
	if stepErr != nil {
		return stepErr
	}
	return err
}

// CrossEntropy returns the mean negative log-likelihood of the true labels and
// the fraction of rows whose argmax matches its label.
func CrossEntropy(probs [][]float32, labels []int) (loss, accuracy float64) {
	if len(probs) == 0 {
		return math.NaN(), math.NaN()
	}
	correct := 0
	for i, row := range probs {
		p := math.Max(float64(row[labels[i]]), lossEpsilon)
		loss -= math.Log(p)
		if argmaxRow(row) == labels[i] {
			correct++
		}
	}
	n := float64(len(probs))
	return loss / n, float64(correct) / n
}

func argmaxRow(row []float32) int {
	best := 0
	for j, p := range row {
		if p > row[best] {
			best = j
		}
	}
	return best
}

func scalar(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("cost was not computed")
	}
	switch d := v.Data().(type) {
	case float32:
		return float64(d), nil
	case float64:
		return d, nil
	case []float32:
		if len(d) == 1 {
			return float64(d[0]), nil
		}
	}
	return 0, fmt.Errorf("unexpected cost value %T", v.Data())
}
