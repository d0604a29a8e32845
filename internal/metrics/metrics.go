package metrics

import (
	"fmt"
	"time"
)

// Accuracy is the fraction of positions where pred equals truth.
func Accuracy(pred, truth []int) (float64, error) {
	if len(pred) != len(truth) {
		return 0, fmt.Errorf("%d predictions for %d labels", len(pred), len(truth))
	}
	if len(pred) == 0 {
		return 0, fmt.Errorf("no predictions")
	}
	correct := 0
	for i := range pred {
		if pred[i] == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(pred)), nil
}

// Matrix is a square confusion matrix. Counts[i][j] is the number of samples
// whose true class is i and predicted class is j.
type Matrix struct {
	Counts [][]int
}

// ConfusionMatrix counts (truth, pred) pairs over n classes.
func ConfusionMatrix(truth, pred []int, n int) (*Matrix, error) {
	if len(pred) != len(truth) {
		return nil, fmt.Errorf("%d predictions for %d labels", len(pred), len(truth))
	}
	if n < 1 {
		return nil, fmt.Errorf("invalid class count %d", n)
	}
	m := &Matrix{Counts: make([][]int, n)}
	for i := range m.Counts {
		m.Counts[i] = make([]int, n)
	}
	for i := range truth {
		t, p := truth[i], pred[i]
		if t < 0 || t >= n || p < 0 || p >= n {
			return nil, fmt.Errorf("sample %d: label %d or prediction %d outside [0, %d)", i, t, p, n)
		}
		m.Counts[t][p]++
	}
	return m, nil
}

// Size is the number of classes.
func (m *Matrix) Size() int {
	return len(m.Counts)
}

// Total is the number of counted samples.
func (m *Matrix) Total() int {
	total := 0
	for _, row := range m.Counts {
		for _, c := range row {
			total += c
		}
	}
	return total
}

// Float returns the raw counts as floats.
func (m *Matrix) Float() [][]float64 {
	out := make([][]float64, len(m.Counts))
	for i, row := range m.Counts {
		out[i] = make([]float64, len(row))
		for j, c := range row {
			out[i][j] = float64(c)
		}
	}
	return out
}

// Normalize divides every row by its sum. Rows without samples stay zero.
func (m *Matrix) Normalize() [][]float64 {
	out := m.Float()
	for _, row := range out {
		var sum float64
		for _, v := range row {
			sum += v
		}
		if sum == 0 {
			continue
		}
		for j := range row {
			row[j] /= sum
		}
	}
	return out
}

// EvaluationResult is the outcome of scoring a labelled set.
type EvaluationResult struct {
	Name        string
	Predictions []int
	Truth       []int
	Accuracy    float64
	Elapsed     time.Duration
	Matrix      *Matrix
}

// Evaluate scores predictions against truth over n classes.
func Evaluate(name string, truth, pred []int, n int, elapsed time.Duration) (*EvaluationResult, error) {
	acc, err := Accuracy(pred, truth)
	if err != nil {
		return nil, fmt.Errorf("failed to score %s: %w", name, err)
	}
	cm, err := ConfusionMatrix(truth, pred, n)
	if err != nil {
		return nil, fmt.Errorf("failed to score %s: %w", name, err)
	}
	return &EvaluationResult{
		Name:        name,
		Predictions: pred,
		Truth:       truth,
		Accuracy:    acc,
		Elapsed:     elapsed,
		Matrix:      cm,
	}, nil
}
