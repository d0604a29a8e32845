// Package metrics scores class predictions: accuracy, confusion matrices and
// per-class precision, recall and F1.
package metrics
