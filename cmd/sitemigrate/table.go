package main

import (
	"io"
	"os"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"sitemigrate/internal/migration"
)

// renderTable lays rows out under headers. Columns listed in rightAligned
// (zero based) are right aligned; short rows are padded with blanks.
func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	if len(headers) == 0 {
		return ""
	}
	toRow := func(cells []string) table.Row {
		row := make(table.Row, len(headers))
		for i := range row {
			row[i] = ""
			if i < len(cells) {
				row[i] = cells[i]
			}
		}
		return row
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers))
	for _, cells := range rows {
		tw.AppendRow(toRow(cells))
	}
	configs := make([]table.ColumnConfig, len(headers))
	for i := range configs {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if slices.Contains(rightAligned, i) {
			configs[i].Align = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// shouldColorize reports whether w is an interactive terminal.
func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func colorState(state migration.State, colorize bool) string {
	label := string(state)
	if !colorize {
		return label
	}
	switch {
	case state == migration.StateCompleted:
		return text.FgGreen.Sprint(label)
	case state == migration.StateError:
		return text.FgRed.Sprint(label)
	case state.IsRest():
		return text.FgYellow.Sprint(label)
	case state.IsBusy():
		return text.FgCyan.Sprint(label)
	}
	return label
}

func colorResult(passed, optional, colorize bool) string {
	var label string
	var color text.Color
	switch {
	case passed:
		label, color = "OK", text.FgGreen
	case optional:
		label, color = "WARN", text.FgYellow
	default:
		label, color = "FAIL", text.FgRed
	}
	if !colorize {
		return label
	}
	return color.Sprint(label)
}
