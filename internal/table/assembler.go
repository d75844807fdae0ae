package table

import "fmt"

// Assemble builds the table of one source. Duplicate keys are rejected rather
// than overwritten; they point at a scraping or parsing bug.
func Assemble(name string, schema Schema, rows []Row) (*FieldTable, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTable, name)
	}

	seen := make(map[string]int, len(rows))
	data := make(map[string][]float64, len(rows))

	for i, row := range rows {
		if first, dup := seen[row.Key]; dup {
			return nil, fmt.Errorf("%w: %q in %s (records %d and %d)", ErrDuplicateKey, row.Key, name, first, i)
		}

		seen[row.Key] = i
		data[row.Key] = row.Values
	}

	return New(name, schema.Names(), data)
}
