package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"github.com/ironsheep/asl-classifier/internal/logger"
	"github.com/ironsheep/asl-classifier/internal/metrics"
)

// ConfusionOptions controls PlotConfusionMatrix.
type ConfusionOptions struct {
	Title string

	// Normalize plots row fractions instead of counts.
	Normalize bool

	// Size is the width and height of the figure. Zero means 16 inches.
	Size vg.Length
}

// blues is a sequential white-to-navy palette.
type blues []color.Color

func (b blues) Colors() []color.Color { return b }

// newBlues interpolates n colors in Lab space.
func newBlues(n int) palette.Palette {
	light, _ := colorful.Hex("#f7fbff")
	dark, _ := colorful.Hex("#08306b")
	p := make(blues, n)
	for i := range p {
		p[i] = light.BlendLab(dark, float64(i)/float64(n-1)).Clamped()
	}
	return p
}

// matrixGrid presents a square matrix as a heat map grid with row 0 at the
// top.
type matrixGrid struct {
	values [][]float64
}

func (g matrixGrid) Dims() (c, r int)   { return len(g.values), len(g.values) }
func (g matrixGrid) X(c int) float64    { return float64(c) }
func (g matrixGrid) Y(r int) float64    { return float64(r) }
func (g matrixGrid) Z(c, r int) float64 { return g.values[len(g.values)-1-r][c] }

// PlotConfusionMatrix renders cm as a heat map PNG at path. Rows are true
// labels and columns are predicted labels. Each cell is annotated with its
// value in white when above half the maximum and black otherwise.
func PlotConfusionMatrix(cm *metrics.Matrix, classes []string, opts ConfusionOptions, path string) error {
	n := cm.Size()
	if n == 0 || len(classes) != n {
		return fmt.Errorf("%d class names for a %dx%d matrix", len(classes), n, n)
	}

	var values [][]float64
	format := func(v float64) string { return strconv.Itoa(int(v)) }
	if opts.Normalize {
		logger.S().Info("Normalized confusion matrix")
		values = cm.Normalize()
		format = func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	} else {
		logger.S().Info("Confusion matrix, without normalization")
		values = cm.Float()
	}

	lo, hi := values[0][0], values[0][0]
	for _, row := range values {
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.Y.Label.Text = "True label"
	p.X.Label.Text = "Predicted label"

	hm := plotter.NewHeatMap(matrixGrid{values: values}, newBlues(64))
	if hi == lo {
		hm.Min, hm.Max = lo, lo+1
	}
	p.Add(hm)

	threshold := hi / 2
	xys := make(plotter.XYs, 0, n*n)
	texts := make([]string, 0, n*n)
	for i, row := range values {
		for j, v := range row {
			xys = append(xys, plotter.XY{X: float64(j), Y: float64(n - 1 - i)})
			texts = append(texts, format(v))
		}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
	if err != nil {
		return fmt.Errorf("failed to create cell labels: %w", err)
	}
	for k := range labels.TextStyle {
		i, j := k/n, k%n
		labels.TextStyle[k].XAlign = text.XCenter
		labels.TextStyle[k].YAlign = text.YCenter
		if values[i][j] > threshold {
			labels.TextStyle[k].Color = color.White
		} else {
			labels.TextStyle[k].Color = color.Black
		}
	}
	p.Add(labels)

	xTicks := make([]plot.Tick, n)
	yTicks := make([]plot.Tick, n)
	for i, name := range classes {
		xTicks[i] = plot.Tick{Value: float64(i), Label: name}
		yTicks[i] = plot.Tick{Value: float64(n - 1 - i), Label: name}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.X.Tick.Label.Rotation = 0.785398 // 45 degrees
	p.X.Tick.Label.XAlign = text.XRight
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)

	p.X.Min, p.X.Max = -0.5, float64(n)-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(n)-0.5

	size := opts.Size
	if size == 0 {
		size = 16 * vg.Inch
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := p.Save(size, size, path); err != nil {
		return fmt.Errorf("failed to save confusion matrix: %w", err)
	}
	logger.S().Infow("wrote confusion matrix", "path", path, "classes", n)
	return nil
}
