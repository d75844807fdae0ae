package table

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultLabelSuffixes are removed from labels before a key is derived.
var DefaultLabelSuffixes = []string{" Doses Administered", " County", " COUNTY"}

var keyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// RawRecord is the ordered text of one scraped element or API row.
// Cell 0 is the label, the remaining cells carry values.
type RawRecord []string

// Label returns the first cell.
func (r RawRecord) Label() string {
	if len(r) == 0 {
		return ""
	}

	return r[0]
}

// Cells returns the value cells.
func (r RawRecord) Cells() []string {
	if len(r) < 2 {
		return nil
	}

	return r[1:]
}

// Row is one parsed record: an entity key and one value per schema field.
type Row struct {
	Key    string
	Values []float64
}

// Parser turns raw records into rows for a fixed schema.
type Parser struct {
	schema   Schema
	suffixes []string
}

// NewParser creates a parser. Without explicit suffixes DefaultLabelSuffixes are used.
func NewParser(schema Schema, suffixes ...string) *Parser {
	if len(suffixes) == 0 {
		suffixes = DefaultLabelSuffixes
	}

	return &Parser{
		schema:   schema,
		suffixes: append([]string(nil), suffixes...),
	}
}

// Schema returns the schema rows are validated against.
func (p *Parser) Schema() Schema {
	return p.schema
}

// Parse converts one record.
func (p *Parser) Parse(rec RawRecord) (Row, error) {
	key, err := NormalizeKey(rec.Label(), p.suffixes)
	if err != nil {
		return Row{}, err
	}

	var cells []string

	for _, c := range rec.Cells() {
		if strings.TrimSpace(strings.ReplaceAll(c, ",", "")) != "" {
			cells = append(cells, c)
		}
	}

	if len(cells) != p.schema.Len() {
		return Row{}, fmt.Errorf("%w: key %q has %d value cells, schema has %d (%v)",
			ErrSchemaMismatch, key, len(cells), p.schema.Len(), p.schema.Names())
	}

	row := Row{Key: key, Values: make([]float64, len(cells))}

	for i, f := range p.schema.fields {
		v, err := ParseNumber(cells[i], f.Kind)
		if err != nil {
			return Row{}, fmt.Errorf("key %q field %q: %w", key, f.Name, err)
		}

		row.Values[i] = v
	}

	return row, nil
}

// ParseAll converts records in order and stops at the first failure.
func (p *Parser) ParseAll(records []RawRecord) ([]Row, error) {
	rows := make([]Row, 0, len(records))

	for i, rec := range records {
		row, err := p.Parse(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// NormalizeKey derives an entity key: suffixes removed, whitespace runs joined
// with "_", lowercased. The result must match ^[a-z0-9_]+$.
func NormalizeKey(label string, suffixes []string) (string, error) {
	s := label
	for _, suffix := range suffixes {
		s = strings.ReplaceAll(s, suffix, "")
	}

	key := strings.ToLower(strings.Join(strings.Fields(s), "_"))
	if key == "" {
		return "", fmt.Errorf("%w: %q yields an empty key", ErrMalformedLabel, label)
	}

	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q yields key %q", ErrMalformedLabel, label, key)
	}

	return key, nil
}

// ParseNumber reads the leading whitespace-delimited token of a cell after
// thousands separators are removed.
func ParseNumber(cell string, kind Kind) (float64, error) {
	tokens := strings.Fields(strings.ReplaceAll(cell, ",", ""))
	if len(tokens) == 0 {
		return 0, fmt.Errorf("%w: no numeric token in %q", ErrUnparsableValue, cell)
	}

	if kind == Decimal {
		v, err := strconv.ParseFloat(tokens[0], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %q is not a decimal", ErrUnparsableValue, cell)
		}

		return v, nil
	}

	n, err := strconv.ParseInt(tokens[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrUnparsableValue, cell)
	}

	return float64(n), nil
}
