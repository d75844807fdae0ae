package table

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind is the numeric type of a field.
type Kind int

const (
	// Integer cells are parsed with strconv.ParseInt.
	Integer Kind = iota
	// Decimal cells are parsed with strconv.ParseFloat.
	Decimal
)

// String returns the YAML spelling of the kind.
func (k Kind) String() string {
	if k == Decimal {
		return "decimal"
	}

	return "integer"
}

// ParseKind maps "integer" / "decimal" (empty means integer).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "integer":
		return Integer, nil
	case "decimal":
		return Decimal, nil
	}

	return Integer, fmt.Errorf("%w: unknown field kind %q", ErrSchemaMismatch, s)
}

// Field describes one named numeric column.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the ordered field list every row of a source must match.
type Schema struct {
	fields []Field
}

// NewSchema validates and builds a schema: at least one field, unique non-empty names.
func NewSchema(fields ...Field) (Schema, error) {
	if len(fields) == 0 {
		return Schema{}, fmt.Errorf("%w: schema has no fields", ErrSchemaMismatch)
	}

	seen := make(map[string]bool, len(fields))

	for _, f := range fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("%w: empty field name", ErrSchemaMismatch)
		}

		if seen[f.Name] {
			return Schema{}, fmt.Errorf("%w: field %q declared twice", ErrSchemaMismatch, f.Name)
		}

		seen[f.Name] = true
	}

	return Schema{fields: append([]Field(nil), fields...)}, nil
}

// IntegerFields is shorthand for a list of Integer fields.
func IntegerFields(names ...string) []Field {
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Field{Name: n, Kind: Integer}
	}

	return fields
}

// DeriveSchema builds the schema from the annotated value cells of a record.
// Each cell reads like "12,345 Total Confirmed Cases": the leading word is the
// value and is dropped, a "Total " prefix is removed and empty names are skipped.
// The record itself still parses as data against the derived schema.
func DeriveSchema(header RawRecord) (Schema, error) {
	var fields []Field

	for _, cell := range header.Cells() {
		if name := headerName(cell); name != "" {
			fields = append(fields, Field{Name: name, Kind: Integer})
		}
	}

	if len(fields) == 0 {
		return Schema{}, fmt.Errorf("%w: no field names in header %q", ErrSchemaMismatch, header.Label())
	}

	return NewSchema(fields...)
}

func headerName(cell string) string {
	idx := strings.IndexFunc(cell, unicode.IsSpace)
	if idx < 0 {
		return ""
	}

	name := strings.TrimSpace(cell[idx:])

	return strings.TrimSpace(strings.TrimPrefix(name, "Total "))
}

// Len returns the number of fields.
func (s Schema) Len() int {
	return len(s.fields)
}

// Fields returns a copy of the fields.
func (s Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}

	return names
}
