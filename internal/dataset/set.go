package dataset

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/ironsheep/asl-classifier/internal/imaging"
)

// Set is an in-memory collection of labelled grayscale samples.
//
// Every sample is a row-major ImageSize x ImageSize slice of pixel values.
// Samples, Labels and Paths are index-aligned.
type Set struct {
	ImageSize int
	Samples   [][]uint8
	Labels    []int
	Paths     []string
}

// Len returns the number of samples.
func (s *Set) Len() int {
	return len(s.Samples)
}

// Validate checks that samples, labels and paths line up and that every
// sample has ImageSize*ImageSize pixels and a label in [0, classes).
func (s *Set) Validate(classes int) error {
	if len(s.Labels) != len(s.Samples) {
		return fmt.Errorf("%d samples but %d labels", len(s.Samples), len(s.Labels))
	}
	if s.Paths != nil && len(s.Paths) != len(s.Samples) {
		return fmt.Errorf("%d samples but %d paths", len(s.Samples), len(s.Paths))
	}
	want := s.ImageSize * s.ImageSize
	for i, sample := range s.Samples {
		if len(sample) != want {
			return fmt.Errorf("sample %d has %d pixels, want %d", i, len(sample), want)
		}
		if l := s.Labels[i]; l < 0 || l >= classes {
			return fmt.Errorf("sample %d has label %d outside [0, %d)", i, l, classes)
		}
	}
	return nil
}

// Subset returns a new set holding the samples at idx, in that order.
// Sample slices are shared, not copied.
func (s *Set) Subset(idx []int) *Set {
	out := &Set{
		ImageSize: s.ImageSize,
		Samples:   make([][]uint8, len(idx)),
		Labels:    make([]int, len(idx)),
	}
	if s.Paths != nil {
		out.Paths = make([]string, len(idx))
	}
	for i, j := range idx {
		out.Samples[i] = s.Samples[j]
		out.Labels[i] = s.Labels[j]
		if s.Paths != nil {
			out.Paths[i] = s.Paths[j]
		}
	}
	return out
}

// Tensor returns every sample as an (n, 1, size, size) float32 tensor with
// pixel values multiplied by rescale. It returns nil for an empty set.
func (s *Set) Tensor(rescale float32) *tensor.Dense {
	if s.Len() == 0 {
		return nil
	}
	idx := make([]int, s.Len())
	for i := range idx {
		idx[i] = i
	}
	x, _, _ := s.batch(idx, rescale, nil)
	return x
}

// batch assembles the samples at idx, optionally augmented, into an NCHW
// tensor and returns their labels.
func (s *Set) batch(idx []int, rescale float32, aug *imaging.Augmenter) (*tensor.Dense, []int, error) {
	px := s.ImageSize * s.ImageSize
	data := make([]float32, len(idx)*px)
	labels := make([]int, len(idx))

	for i, j := range idx {
		sample := s.Samples[j]
		if aug != nil {
			img, err := imaging.FromSample(sample, s.ImageSize)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to augment sample %d: %w", j, err)
			}
			sample = imaging.ToSample(aug.Apply(img))
		}
		dst := data[i*px : (i+1)*px]
		for k, v := range sample {
			dst[k] = float32(v) * rescale
		}
		labels[i] = s.Labels[j]
	}

	x := tensor.New(
		tensor.WithShape(len(idx), 1, s.ImageSize, s.ImageSize),
		tensor.WithBacking(data),
	)
	return x, labels, nil
}

// OneHot encodes labels as an (n, classes) float32 tensor.
func OneHot(labels []int, classes int) *tensor.Dense {
	data := make([]float32, len(labels)*classes)
	for i, l := range labels {
		data[i*classes+l] = 1
	}
	return tensor.New(tensor.WithShape(len(labels), classes), tensor.WithBacking(data))
}
