package model

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// Summary prints one row per layer with its output shape and parameter count.
func (n *Network) Summary(w io.Writer) error {
	counts, total, err := n.arch.ParamCount()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Input: %s\n", Shape{n.arch.Channels, n.arch.ImageSize, n.arch.ImageSize})

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Layer", "Output Shape", "Params"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for i, l := range n.arch.Layers {
		name := l.Name()
		if l.Activation != "" {
			name += " " + l.Activation
		}
		table.Append([]string{
			fmt.Sprint(i),
			name,
			n.shapes[i].String(),
			humanize.Comma(int64(counts[i])),
		})
	}
	table.SetFooter([]string{"", "", "Total", humanize.Comma(int64(total))})
	table.Render()
	return nil
}
