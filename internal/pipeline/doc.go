// Package pipeline wires the data, model, metrics and report packages into the
// classifier's end-to-end stages: training, evaluation and classification of
// external images.
package pipeline
