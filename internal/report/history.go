package report

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/wcharczuk/go-chart"

	"github.com/ironsheep/asl-classifier/internal/logger"
	"github.com/ironsheep/asl-classifier/internal/model"
)

// Files written by HistoryLogger.
const (
	HistoryCSV   = "history.csv"
	HistoryChart = "history.png"
)

type historyRecord struct {
	Epoch       int     `csv:"epoch"`
	Loss        float64 `csv:"loss"`
	Accuracy    float64 `csv:"accuracy"`
	ValLoss     string  `csv:"val_loss"`
	ValAccuracy string  `csv:"val_accuracy"`
	Seconds     float64 `csv:"seconds"`
}

func optional(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.6f", v)
}

// WriteHistoryCSV writes one row per epoch. Missing validation metrics are
// left empty.
func WriteHistoryCSV(h *model.History, path string) error {
	records := make([]*historyRecord, len(h.Epochs))
	for i, m := range h.Epochs {
		records[i] = &historyRecord{
			Epoch:       m.Epoch,
			Loss:        m.Loss,
			Accuracy:    m.Accuracy,
			ValLoss:     optional(m.ValLoss),
			ValAccuracy: optional(m.ValAccuracy),
			Seconds:     m.Duration.Seconds(),
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := gocsv.MarshalFile(&records, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	return f.Close()
}

// PlotHistory draws loss (left axis) and accuracy (right axis) per epoch. At
// least two epochs are required.
func PlotHistory(h *model.History, path string) error {
	if len(h.Epochs) < 2 {
		return fmt.Errorf("need at least 2 epochs to plot, have %d", len(h.Epochs))
	}

	var (
		epochs          []float64
		loss, acc       []float64
		valLoss, valAcc []float64
		hasValidation   = true
	)
	for _, m := range h.Epochs {
		epochs = append(epochs, float64(m.Epoch))
		loss = append(loss, m.Loss)
		acc = append(acc, m.Accuracy)
		valLoss = append(valLoss, m.ValLoss)
		valAcc = append(valAcc, m.ValAccuracy)
		if math.IsNaN(m.ValLoss) || math.IsNaN(m.ValAccuracy) {
			hasValidation = false
		}
	}

	line := func(name string, ys []float64, i int, axis chart.YAxisType) chart.ContinuousSeries {
		return chart.ContinuousSeries{
			Name:    name,
			XValues: epochs,
			YValues: ys,
			YAxis:   axis,
			Style: chart.Style{
				Show:        true,
				StrokeColor: chart.GetAlternateColor(i),
			},
		}
	}
	series := []chart.Series{
		line("loss", loss, 0, chart.YAxisPrimary),
		line("accuracy", acc, 1, chart.YAxisSecondary),
	}
	if hasValidation {
		series = append(series,
			line("val_loss", valLoss, 2, chart.YAxisPrimary),
			line("val_accuracy", valAcc, 3, chart.YAxisSecondary),
		)
	}

	graph := chart.Chart{
		Title:      "Training History",
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      "Epoch",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      "Loss",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxisSecondary: chart.YAxis{
			Name:      "Accuracy",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := graph.Render(chart.PNG, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render history: %w", err)
	}
	return f.Close()
}

// HistoryLogger is a training callback that keeps history.csv and
// history.png in Dir up to date after every epoch.
type HistoryLogger struct {
	Dir     string
	history model.History
}

// NewHistoryLogger creates dir and returns a logger writing into it.
func NewHistoryLogger(dir string) (*HistoryLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	return &HistoryLogger{Dir: dir}, nil
}

// OnEpochEnd records m and rewrites the log files.
func (l *HistoryLogger) OnEpochEnd(_ context.Context, _ *model.Network, m model.EpochMetrics) error {
	l.history.Epochs = append(l.history.Epochs, m)

	if err := WriteHistoryCSV(&l.history, filepath.Join(l.Dir, HistoryCSV)); err != nil {
		return err
	}
	if len(l.history.Epochs) < 2 {
		return nil
	}
	if err := PlotHistory(&l.history, filepath.Join(l.Dir, HistoryChart)); err != nil {
		logger.S().Warnw("failed to plot history", "error", err)
	}
	return nil
}

// History returns the epochs recorded so far.
func (l *HistoryLogger) History() *model.History {
	return &model.History{Epochs: append([]model.EpochMetrics(nil), l.history.Epochs...)}
}
