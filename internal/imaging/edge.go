package imaging

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/convolution"
)

// Preprocessing modes.
const (
	PreprocessNone      = "none"
	PreprocessLaplacian = "laplacian"
)

// Preprocessor transforms a resized grayscale image before it is stored as a
// sample. The zero value is not usable; use NewPreprocessor.
type Preprocessor struct {
	mode string
}

// NewPreprocessor returns a preprocessor for the named mode.
//
// Supported modes:
//   - "none": the image is returned untouched
//   - "laplacian": a 3x3 Laplacian edge filter is applied
func NewPreprocessor(mode string) (*Preprocessor, error) {
	switch mode {
	case PreprocessNone, PreprocessLaplacian:
		return &Preprocessor{mode: mode}, nil
	default:
		return nil, fmt.Errorf("unknown preprocess mode %q", mode)
	}
}

// Mode returns the preprocessing mode name.
func (p *Preprocessor) Mode() string {
	return p.mode
}

// Apply runs the configured preprocessing.
func (p *Preprocessor) Apply(img *image.Gray) *image.Gray {
	if p.mode == PreprocessLaplacian {
		return Laplacian(img)
	}
	return img
}

// Laplacian applies the 4-neighbour Laplacian kernel
//
//	0  1  0
//	1 -4  1
//	0  1  0
//
// to a grayscale image. Responses are clamped to [0, 255], so only the
// positive side of each edge survives.
func Laplacian(img *image.Gray) *image.Gray {
	k := convolution.NewKernel(3, 3)
	k.Matrix = []float64{
		0, 1, 0,
		1, -4, 1,
		0, 1, 0,
	}
	filtered := convolution.Convolve(img, k, &convolution.Options{Bias: 0, Wrap: false, KeepAlpha: true})
	return ToGray(filtered)
}
