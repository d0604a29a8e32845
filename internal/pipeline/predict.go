package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/ironsheep/asl-classifier/internal/config"
	"github.com/ironsheep/asl-classifier/internal/dataset"
	"github.com/ironsheep/asl-classifier/internal/imaging"
	"github.com/ironsheep/asl-classifier/internal/logger"
	"github.com/ironsheep/asl-classifier/internal/model"
)

// Contact sheet layout.
const (
	sheetTileSize = 128
	sheetColumns  = 6
)

// Prediction is the classification of one external image. Err is set, and
// the other result fields are zero, when the image could not be read.
type Prediction struct {
	Path       string
	Label      string
	Index      int
	Confidence float32
	Err        error
}

// PredictFiles classifies each path with net. Results are returned in the
// order of paths; unreadable files produce a Prediction with Err set rather
// than failing the call.
func PredictFiles(ctx context.Context, net *model.Network, cfg config.Config, cache *imaging.ImageCache, paths []string) ([]Prediction, error) {
	pre, err := imaging.NewPreprocessor(cfg.Preprocess)
	if err != nil {
		return nil, err
	}
	size := net.Architecture().ImageSize

	preds := make([]Prediction, len(paths))
	set := &dataset.Set{ImageSize: size}
	var loaded []int
	for i, path := range paths {
		preds[i] = Prediction{Path: path, Index: -1}
		img, err := cache.Load(path, size)
		if err != nil {
			preds[i].Err = err
			logger.S().Warnw("cannot classify image", "path", path, "error", err)
			continue
		}
		set.Samples = append(set.Samples, imaging.ToSample(pre.Apply(img)))
		set.Labels = append(set.Labels, 0)
		set.Paths = append(set.Paths, path)
		loaded = append(loaded, i)
	}
	if len(loaded) == 0 {
		return preds, nil
	}

	probs, err := net.Predict(ctx, set.Tensor(float32(cfg.Rescale)))
	if err != nil {
		return nil, fmt.Errorf("failed to classify images: %w", err)
	}

	classes := net.Categories()
	for k, idx := range model.Argmax(probs) {
		p := &preds[loaded[k]]
		p.Index = idx
		p.Label = classes[idx]
		p.Confidence = probs[k][idx]
	}
	return preds, nil
}

// PrintPredictions writes one "path --> label" line per prediction.
func PrintPredictions(w io.Writer, preds []Prediction) {
	for _, p := range preds {
		if p.Err != nil {
			fmt.Fprintf(w, "%s --> error: %v\n", p.Path, p.Err)
			continue
		}
		fmt.Fprintf(w, "%s --> %s (%.1f%%)\n", p.Path, p.Label, 100*p.Confidence)
	}
}

// WriteContactSheet saves a captioned grid of the successfully classified
// images to path.
func WriteContactSheet(preds []Prediction, cache *imaging.ImageCache, path string) error {
	var tiles []imaging.Tile
	for _, p := range preds {
		if p.Err != nil {
			continue
		}
		img, err := cache.Load(p.Path, sheetTileSize)
		if err != nil {
			return err
		}
		tiles = append(tiles, imaging.Tile{
			Image:   img,
			Caption: fmt.Sprintf("%s %.0f%%", p.Label, 100*p.Confidence),
		})
	}
	if len(tiles) == 0 {
		return fmt.Errorf("no classified images to draw")
	}

	sheet, err := imaging.ContactSheet(tiles, sheetTileSize, sheetColumns)
	if err != nil {
		return err
	}
	if err := imaging.SavePNG(sheet, path); err != nil {
		return err
	}
	logger.S().Infow("wrote contact sheet", "path", path, "images", len(tiles))
	return nil
}
