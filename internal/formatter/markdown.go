// Package formatter renders tables as aligned markdown reports.
package formatter

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"njvaxbot/internal/table"
	"njvaxbot/pkg/metadata"
)

// Report renders t as a titled markdown table with the index column first
// and fields in alphabetical order, then signs it.
func Report(title, indexLabel string, t *table.FieldTable, meta metadata.Metadata) string {
	fields := t.Fields()
	sort.Strings(fields)

	rows := [][]string{append([]string{indexLabel}, fields...)}

	for _, key := range t.Keys() {
		row := []string{key}

		for _, f := range fields {
			v, _ := t.Value(key, f)
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}

		rows = append(rows, row)
	}

	var sb strings.Builder

	sb.WriteString("# " + title + "\n\n")
	sb.WriteString(strings.Join(FormatTable(rows), "\n"))
	sb.WriteString("\n")

	return metadata.Sign(sb.String(), meta)
}

// FormatTable lays out a header row plus data rows as a markdown table whose
// columns are padded to the widest cell by display width.
func FormatTable(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}

	colCount := 0
	for _, row := range rows {
		colCount = max(colCount, len(row))
	}

	// At least three dashes per separator cell.
	widths := make([]int, colCount)
	for i := range widths {
		widths[i] = 3
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	separator := make([]string, colCount)
	for i, w := range widths {
		separator[i] = strings.Repeat("-", w)
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, formatRow(rows[0], widths))
	lines = append(lines, formatRow(separator, widths))

	for _, row := range rows[1:] {
		lines = append(lines, formatRow(row, widths))
	}

	return lines
}

func formatRow(row []string, widths []int) string {
	var sb strings.Builder

	sb.WriteString("|")

	for i, w := range widths {
		cell := ""
		if i < len(row) {
			cell = strings.TrimSpace(row[i])
		}

		sb.WriteString(" ")
		sb.WriteString(runewidth.FillRight(cell, w))
		sb.WriteString(" |")
	}

	return sb.String()
}
