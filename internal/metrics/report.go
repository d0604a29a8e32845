package metrics

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// ClassScore holds the per-class scores of a classification report.
type ClassScore struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a per-class precision/recall/F1 summary.
type Report struct {
	Classes     []ClassScore
	Accuracy    float64
	MacroAvg    ClassScore
	WeightedAvg ClassScore
	Total       int
}

// ClassificationReport scores every class named in names. A class with no
// predictions has precision 0 and a class with no support has recall 0.
// The macro average only covers classes that occur in truth or pred.
func ClassificationReport(truth, pred []int, names []string) (*Report, error) {
	cm, err := ConfusionMatrix(truth, pred, len(names))
	if err != nil {
		return nil, err
	}
	acc, err := Accuracy(pred, truth)
	if err != nil {
		return nil, err
	}

	n := len(names)
	predicted := make([]int, n)
	for _, row := range cm.Counts {
		for j, c := range row {
			predicted[j] += c
		}
	}

	r := &Report{
		Classes:     make([]ClassScore, n),
		Accuracy:    acc,
		Total:       len(truth),
		MacroAvg:    ClassScore{Name: "macro avg", Support: len(truth)},
		WeightedAvg: ClassScore{Name: "weighted avg", Support: len(truth)},
	}
	present := 0
	for i := 0; i < n; i++ {
		tp := cm.Counts[i][i]
		support := 0
		for _, c := range cm.Counts[i] {
			support += c
		}

		s := ClassScore{
			Name:      names[i],
			Precision: ratio(tp, predicted[i]),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		}
		r.Classes[i] = s

		if support > 0 || predicted[i] > 0 {
			present++
			r.MacroAvg.Precision += s.Precision
			r.MacroAvg.Recall += s.Recall
			r.MacroAvg.F1 += s.F1
		}

		w := float64(support) / float64(r.Total)
		r.WeightedAvg.Precision += s.Precision * w
		r.WeightedAvg.Recall += s.Recall * w
		r.WeightedAvg.F1 += s.F1 * w
	}
	if present > 0 {
		r.MacroAvg.Precision /= float64(present)
		r.MacroAvg.Recall /= float64(present)
		r.MacroAvg.F1 /= float64(present)
	}
	return r, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Render prints the report as a table.
func (r *Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Class", "Precision", "Recall", "F1-score", "Support"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	row := func(s ClassScore) []string {
		return []string{
			s.Name,
			fmt.Sprintf("%.2f", s.Precision),
			fmt.Sprintf("%.2f", s.Recall),
			fmt.Sprintf("%.2f", s.F1),
			humanize.Comma(int64(s.Support)),
		}
	}
	for _, s := range r.Classes {
		table.Append(row(s))
	}
	table.Append([]string{"accuracy", "", "", fmt.Sprintf("%.2f", r.Accuracy), humanize.Comma(int64(r.Total))})
	table.Append(row(r.MacroAvg))
	table.Append(row(r.WeightedAvg))
	table.Render()
}
