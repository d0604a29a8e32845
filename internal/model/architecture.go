package model

import (
	"fmt"
	"strings"
)

// Layer kinds.
const (
	KindConv2D  = "conv2d"
	KindDropout = "dropout"
	KindFlatten = "flatten"
	KindDense   = "dense"
)

// Activations.
const (
	ActivationReLU    = "relu"
	ActivationSoftmax = "softmax"
)

// Layer describes one layer of a sequential network. Only the fields relevant
// to Kind are set.
type Layer struct {
	Kind string `json:"kind"`

	// Conv2D
	Filters int `json:"filters,omitempty"`
	Kernel  int `json:"kernel,omitempty"`
	Stride  int `json:"stride,omitempty"`

	// Dense
	Units int `json:"units,omitempty"`

	// Dropout
	Rate float64 `json:"rate,omitempty"`

	// Conv2D and Dense
	Activation string `json:"activation,omitempty"`
}

// Name returns a short human-readable description.
func (l Layer) Name() string {
	switch l.Kind {
	case KindConv2D:
		return fmt.Sprintf("conv2d %dx%d/%d", l.Kernel, l.Kernel, l.Stride)
	case KindDense:
		return "dense"
	case KindDropout:
		return fmt.Sprintf("dropout %.2f", l.Rate)
	default:
		return l.Kind
	}
}

// Architecture is a sequential network over single-channel square images.
type Architecture struct {
	ImageSize int     `json:"image_size"`
	Channels  int     `json:"channels"`
	Classes   int     `json:"classes"`
	Layers    []Layer `json:"layers"`
}

// Shape is a per-sample tensor shape: (channels, height, width) for feature
// maps and (units) after flattening.
type Shape []int

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Size is the number of scalars in the shape.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// DefaultArchitecture returns the sign-alphabet network: three pairs of 3x3
// convolutions (64, 128 and 256 filters; stride 1 then stride 2) with dropout
// after the first two pairs, then flatten, dropout, a 512-unit dense layer and
// a softmax over the classes.
func DefaultArchitecture(imageSize, classes int, dropout float64) Architecture {
	conv := func(filters, stride int) Layer {
		return Layer{Kind: KindConv2D, Filters: filters, Kernel: 3, Stride: stride, Activation: ActivationReLU}
	}
	drop := Layer{Kind: KindDropout, Rate: dropout}

	return Architecture{
		ImageSize: imageSize,
		Channels:  1,
		Classes:   classes,
		Layers: []Layer{
			conv(64, 1),
			conv(64, 2),
			drop,
			conv(128, 1),
			conv(128, 2),
			drop,
			conv(256, 1),
			conv(256, 2),
			{Kind: KindFlatten},
			drop,
			{Kind: KindDense, Units: 512, Activation: ActivationReLU},
			{Kind: KindDense, Units: classes, Activation: ActivationSoftmax},
		},
	}
}

// convOutput is the spatial size of a valid (unpadded) convolution.
func convOutput(in, kernel, stride int) int {
	return (in-kernel)/stride + 1
}

// OutputShapes validates the architecture and returns the output shape of
// every layer.
func (a Architecture) OutputShapes() ([]Shape, error) {
	if a.ImageSize < 1 || a.Channels < 1 {
		return nil, fmt.Errorf("invalid input %dx%dx%d", a.Channels, a.ImageSize, a.ImageSize)
	}
	if a.Classes < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", a.Classes)
	}
	if len(a.Layers) == 0 {
		return nil, fmt.Errorf("architecture has no layers")
	}

	cur := Shape{a.Channels, a.ImageSize, a.ImageSize}
	shapes := make([]Shape, len(a.Layers))

	for i, l := range a.Layers {
		switch l.Kind {
		case KindConv2D:
			if len(cur) != 3 {
				return nil, fmt.Errorf("layer %d: conv2d after flatten", i)
			}
			if l.Filters < 1 || l.Kernel < 1 || l.Stride < 1 {
				return nil, fmt.Errorf("layer %d: invalid conv2d %+v", i, l)
			}
			h := convOutput(cur[1], l.Kernel, l.Stride)
			w := convOutput(cur[2], l.Kernel, l.Stride)
			if cur[1] < l.Kernel || cur[2] < l.Kernel || h < 1 || w < 1 {
				return nil, fmt.Errorf("layer %d: %dx%d input is smaller than the %dx%d kernel", i, cur[1], cur[2], l.Kernel, l.Kernel)
			}
			cur = Shape{l.Filters, h, w}
		case KindDropout:
			if l.Rate < 0 || l.Rate >= 1 {
				return nil, fmt.Errorf("layer %d: dropout rate %g outside [0, 1)", i, l.Rate)
			}
		case KindFlatten:
			cur = Shape{cur.Size()}
		case KindDense:
			if len(cur) != 1 {
				return nil, fmt.Errorf("layer %d: dense before flatten", i)
			}
			if l.Units < 1 {
				return nil, fmt.Errorf("layer %d: dense with %d units", i, l.Units)
			}
			cur = Shape{l.Units}
		default:
			return nil, fmt.Errorf("layer %d: unknown kind %q", i, l.Kind)
		}

		if l.Kind == KindConv2D || l.Kind == KindDense {
			switch l.Activation {
			case ActivationReLU, ActivationSoftmax, "":
			default:
				return nil, fmt.Errorf("layer %d: unknown activation %q", i, l.Activation)
			}
		}
		shapes[i] = append(Shape(nil), cur...)
	}

	last := a.Layers[len(a.Layers)-1]
	if last.Kind != KindDense || last.Activation != ActivationSoftmax || last.Units != a.Classes {
		return nil, fmt.Errorf("last layer must be a %d-unit softmax dense layer", a.Classes)
	}
	return shapes, nil
}

// paramShapes returns the kernel and bias shapes of a learnable layer, given
// the shape of its input. Non-learnable layers return nil.
func paramShapes(l Layer, in Shape) (kernel, bias []int) {
	switch l.Kind {
	case KindConv2D:
		return []int{l.Filters, in[0], l.Kernel, l.Kernel}, []int{1, l.Filters, 1, 1}
	case KindDense:
		return []int{in[0], l.Units}, []int{1, l.Units}
	}
	return nil, nil
}

// ParamCount returns the number of learnable scalars per layer and in total.
func (a Architecture) ParamCount() ([]int, int, error) {
	shapes, err := a.OutputShapes()
	if err != nil {
		return nil, 0, err
	}
	counts := make([]int, len(a.Layers))
	total := 0
	in := Shape{a.Channels, a.ImageSize, a.ImageSize}
	for i, l := range a.Layers {
		k, b := paramShapes(l, in)
		if k != nil {
			counts[i] = Shape(k).Size() + Shape(b).Size()
			total += counts[i]
		}
		in = shapes[i]
	}
	return counts, total, nil
}
