package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// WriteCSV writes the table with an index column followed by the fields in
// alphabetical order. Rows follow key order.
func WriteCSV(w io.Writer, t *FieldTable, indexLabel string) error {
	fields := t.Fields()
	sort.Strings(fields)

	cw := csv.NewWriter(w)

	if err := cw.Write(append([]string{indexLabel}, fields...)); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, key := range t.Keys() {
		record := make([]string, 0, len(fields)+1)
		record = append(record, key)

		for _, f := range fields {
			v, _ := t.Value(key, f)
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %q: %w", key, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	return nil
}

// WriteCSVFile writes the table to path, creating parent directories.
func WriteCSVFile(path string, t *FieldTable, indexLabel string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteCSV(f, t, indexLabel); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	return nil
}

// ReadCSV reads a table written by WriteCSV. The first column is the index.
func ReadCSV(r io.Reader, name string) (*FieldTable, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv %s: %w", name, err)
	}

	if len(records) == 0 || len(records[0]) < 2 {
		return nil, fmt.Errorf("%w: %s has no header", ErrSchemaMismatch, name)
	}

	fields := records[0][1:]
	rows := make(map[string][]float64, len(records)-1)

	for i, rec := range records[1:] {
		key := rec[0]
		if _, dup := rows[key]; dup {
			return nil, fmt.Errorf("%w: %q in %s (line %d)", ErrDuplicateKey, key, name, i+2)
		}

		values := make([]float64, len(fields))

		for j, cell := range rec[1:] {
			v, err := ParseNumber(cell, Decimal)
			if err != nil {
				return nil, fmt.Errorf("%s line %d field %q: %w", name, i+2, fields[j], err)
			}

			values[j] = v
		}

		rows[key] = values
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTable, name)
	}

	return New(name, fields, rows)
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) (*FieldTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return ReadCSV(f, filepath.Base(path))
}
