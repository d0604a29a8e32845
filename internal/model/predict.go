package model

import (
	"context"
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Predict returns the softmax probabilities for every sample of x, an
// (n, channels, size, size) float32 tensor. Samples are processed in batches;
// the last batch is zero-padded and the padding discarded. Dropout is not
// applied.
func (n *Network) Predict(ctx context.Context, x *tensor.Dense) ([][]float32, error) {
	if x == nil {
		return nil, fmt.Errorf("no samples to predict")
	}
	a := n.arch
	shape := x.Shape()
	if shape.Dims() != 4 || shape[1] != a.Channels || shape[2] != a.ImageSize || shape[3] != a.ImageSize {
		return nil, fmt.Errorf("input shape %v does not match (n, %d, %d, %d)", shape, a.Channels, a.ImageSize, a.ImageSize)
	}
	data, ok := x.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("input must be float32, got %v", x.Dtype())
	}

	total := shape[0]
	batch := n.predictBatch
	if total < batch {
		batch = total
	}

	gr, err := n.buildGraph(batch, false)
	if err != nil {
		return nil, err
	}
	vm := gorgonia.NewTapeMachine(gr.g)
	defer vm.Close()

	px := a.Channels * a.ImageSize * a.ImageSize
	out := make([][]float32, 0, total)

	for start := 0; start < total; start += batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batch
		if end > total {
			end = total
		}

		buf := make([]float32, batch*px)
		copy(buf, data[start*px:end*px])
		chunk := tensor.New(
			tensor.WithShape(batch, a.Channels, a.ImageSize, a.ImageSize),
			tensor.WithBacking(buf),
		)
		if err := gorgonia.Let(gr.x, chunk); err != nil {
			return nil, fmt.Errorf("failed to bind input: %w", err)
		}
		if err := vm.RunAll(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}

		probs, ok := gr.probsVal.Data().([]float32)
		if !ok {
			return nil, fmt.Errorf("unexpected output type %T", gr.probsVal.Data())
		}
		for i := 0; i < end-start; i++ {
			row := make([]float32, a.Classes)
			copy(row, probs[i*a.Classes:(i+1)*a.Classes])
			out = append(out, row)
		}
		vm.Reset()
	}
	return out, nil
}

// Argmax reduces each probability vector to the index of its largest entry.
// Ties resolve to the lowest index.
func Argmax(probs [][]float32) []int {
	out := make([]int, len(probs))
	for i, row := range probs {
		best := 0
		for j, p := range row {
			if p > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}
