package commands

import (
	"os"
	"sort"
	"strconv"

	pretty "github.com/jedib0t/go-pretty/v6/table"

	"njvaxbot/internal/table"
)

func newTable() pretty.Writer {
	t := pretty.NewWriter()
	t.SetStyle(pretty.StyleRounded)
	t.SetOutputMirror(os.Stdout)

	return t
}

// showTable prints t with the index column first and fields in alphabetical order.
func showTable(t *table.FieldTable, indexLabel string) {
	fields := t.Fields()
	sort.Strings(fields)

	w := newTable()
	w.SetTitle(t.Name())

	header := pretty.Row{indexLabel}
	for _, f := range fields {
		header = append(header, f)
	}

	w.AppendHeader(header)

	for _, key := range t.Keys() {
		row := pretty.Row{key}

		for _, f := range fields {
			v, _ := t.Value(key, f)
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}

		w.AppendRow(row)
	}

	w.Render()
}
