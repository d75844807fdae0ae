// Package table provides the typed tabular model shared by every pipeline stage:
// raw records, schemas, the record parser, the assembler and the immutable FieldTable.
package table

import (
	"errors"
	"fmt"
	"sort"
)

// Table errors.
var (
	ErrMalformedLabel  = errors.New("malformed label")
	ErrUnparsableValue = errors.New("unparsable value")
	ErrSchemaMismatch  = errors.New("schema mismatch")
	ErrDuplicateKey    = errors.New("duplicate entity key")
	ErrEmptyTable      = errors.New("table has no rows")
	ErrUnknownField    = errors.New("unknown field")
)

// FieldTable maps entity keys to named numeric fields.
// It is immutable: constructors copy their input and accessors return copies.
type FieldTable struct {
	rows   map[string][]float64
	index  map[string]int
	name   string
	fields []string
	keys   []string
}

// New builds a FieldTable. Every row must carry exactly one value per field.
// A table with zero rows is valid here; Assemble is the stage that rejects it.
func New(name string, fields []string, rows map[string][]float64) (*FieldTable, error) {
	index := make(map[string]int, len(fields))

	for i, f := range fields {
		if f == "" {
			return nil, fmt.Errorf("%w: %s: empty field name at position %d", ErrSchemaMismatch, name, i)
		}

		if _, dup := index[f]; dup {
			return nil, fmt.Errorf("%w: %s: field %q declared twice", ErrSchemaMismatch, name, f)
		}

		index[f] = i
	}

	t := &FieldTable{
		name:   name,
		fields: append([]string(nil), fields...),
		index:  index,
		rows:   make(map[string][]float64, len(rows)),
		keys:   make([]string, 0, len(rows)),
	}

	for key, values := range rows {
		if len(values) != len(fields) {
			return nil, fmt.Errorf("%w: %s: key %q has %d values, want %d",
				ErrSchemaMismatch, name, key, len(values), len(fields))
		}

		t.rows[key] = append([]float64(nil), values...)
		t.keys = append(t.keys, key)
	}

	sort.Strings(t.keys)

	return t, nil
}

// Name returns the table name used in logs and errors.
func (t *FieldTable) Name() string {
	return t.name
}

// Len returns the number of entities.
func (t *FieldTable) Len() int {
	return len(t.keys)
}

// Fields returns the ordered field names.
func (t *FieldTable) Fields() []string {
	return append([]string(nil), t.fields...)
}

// Keys returns the entity keys in ascending order.
func (t *FieldTable) Keys() []string {
	return append([]string(nil), t.keys...)
}

// HasKey reports whether the entity exists.
func (t *FieldTable) HasKey(key string) bool {
	_, ok := t.rows[key]

	return ok
}

// HasField reports whether the field exists.
func (t *FieldTable) HasField(field string) bool {
	_, ok := t.index[field]

	return ok
}

// Value returns one cell.
func (t *FieldTable) Value(key, field string) (float64, bool) {
	row, ok := t.rows[key]
	if !ok {
		return 0, false
	}

	i, ok := t.index[field]
	if !ok {
		return 0, false
	}

	return row[i], true
}

// Row returns the values of one entity in field order.
func (t *FieldTable) Row(key string) ([]float64, bool) {
	row, ok := t.rows[key]
	if !ok {
		return nil, false
	}

	return append([]float64(nil), row...), true
}

// Column returns entity -> value for one field.
func (t *FieldTable) Column(field string) (map[string]float64, error) {
	i, ok := t.index[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q in table %s", ErrUnknownField, field, t.name)
	}

	col := make(map[string]float64, len(t.keys))
	for key, row := range t.rows {
		col[key] = row[i]
	}

	return col, nil
}

// Rows returns a deep copy of the table data, keyed by entity.
func (t *FieldTable) Rows() map[string][]float64 {
	out := make(map[string][]float64, len(t.rows))
	for key, row := range t.rows {
		out[key] = append([]float64(nil), row...)
	}

	return out
}

// String returns a short description of the table.
func (t *FieldTable) String() string {
	return fmt.Sprintf("FieldTable{%s: %d rows, fields %v}", t.name, len(t.keys), t.fields)
}
