package dataset

import (
	"fmt"
	"math/rand"

	"gorgonia.org/tensor"

	"github.com/ironsheep/asl-classifier/internal/imaging"
)

// Generator serves fixed-size training batches from a Set.
//
// Shuffle draws a new epoch order. Batch(step) returns the step-th batch of
// that order; the final batch is topped up with samples from the start of the
// order, so every batch holds exactly BatchSize samples and every sample is
// seen at least once per epoch. If the set is smaller than the batch size the
// order is repeated as often as needed.
//
// A Generator is not safe for concurrent use.
type Generator struct {
	set       *Set
	classes   int
	batchSize int
	rescale   float32
	aug       *imaging.Augmenter
	rng       *rand.Rand
	order     []int
}

// Flow creates a generator over set. aug may be nil to disable augmentation.
func Flow(set *Set, classes, batchSize int, rescale float32, aug *imaging.Augmenter, seed int64) (*Generator, error) {
	if set.Len() == 0 {
		return nil, fmt.Errorf("cannot flow an empty set")
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if err := set.Validate(classes); err != nil {
		return nil, err
	}

	g := &Generator{
		set:       set,
		classes:   classes,
		batchSize: batchSize,
		rescale:   rescale,
		aug:       aug,
		rng:       rand.New(rand.NewSource(seed)),
		order:     make([]int, set.Len()),
	}
	for i := range g.order {
		g.order[i] = i
	}
	return g, nil
}

// Steps returns the number of batches per epoch.
func (g *Generator) Steps() int {
	return (len(g.order) + g.batchSize - 1) / g.batchSize
}

// BatchSize returns the number of samples in every batch.
func (g *Generator) BatchSize() int {
	return g.batchSize
}

// Classes returns the width of the one-hot label tensors.
func (g *Generator) Classes() int {
	return g.classes
}

// Shuffle draws a new epoch order.
func (g *Generator) Shuffle() {
	g.rng.Shuffle(len(g.order), func(i, j int) {
		g.order[i], g.order[j] = g.order[j], g.order[i]
	})
}

// Batch returns the inputs, one-hot labels and integer labels of a step.
func (g *Generator) Batch(step int) (x, y *tensor.Dense, labels []int, err error) {
	if step < 0 || step >= g.Steps() {
		return nil, nil, nil, fmt.Errorf("step %d out of range [0, %d)", step, g.Steps())
	}

	idx := make([]int, g.batchSize)
	for i := range idx {
		idx[i] = g.order[(step*g.batchSize+i)%len(g.order)]
	}

	x, labels, err = g.set.batch(idx, g.rescale, g.aug)
	if err != nil {
		return nil, nil, nil, err
	}
	return x, OneHot(labels, g.classes), labels, nil
}
