package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// detailWidth wraps long output paths and error messages.
const detailWidth = 72

type column struct {
	title string
	align text.Align
	// wrap caps the column at detailWidth.
	wrap bool
}

func left(title string) column    { return column{title: title, align: text.AlignLeft} }
func right(title string) column   { return column{title: title, align: text.AlignRight} }
func wrapped(title string) column { return column{title: title, align: text.AlignLeft, wrap: true} }

// printTable writes rows to out. Terminals get rounded box drawing; pipes
// and files get plain ASCII so the output stays greppable. Short rows are
// padded with empty cells.
func printTable(out io.Writer, cols []column, rows [][]string) {
	if len(cols) == 0 {
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleDefault)
	if isTerminal(out) {
		tw.SetStyle(table.StyleRounded)
	}

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: c.align, AlignHeader: text.AlignLeft}
		if c.wrap {
			configs[i].WidthMax = detailWidth
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	tw.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
