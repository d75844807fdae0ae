package normalizer

import (
	"errors"
	"fmt"
	"math"

	"njvaxbot/internal/table"
)

// Validation errors.
var (
	ErrEmptyReference     = errors.New("reference has no entries")
	ErrReferenceOrder     = errors.New("reference keys are not sorted")
	ErrReferenceDuplicate = errors.New("reference key repeated")
	ErrNilTable           = errors.New("table is nil")
	ErrNonFiniteValue     = errors.New("non-finite value")
)

// ReferenceEntry is one key of static reference data, e.g. a county population.
type ReferenceEntry struct {
	Key   string  `yaml:"key"`
	Value float64 `yaml:"value"`
}

// Reference is the ordered static dataset attached during the join.
type Reference []ReferenceEntry

// Validate checks the entries are non-empty, unique and alphabetically sorted.
func (r Reference) Validate() error {
	if len(r) == 0 {
		return ErrEmptyReference
	}

	for i := 1; i < len(r); i++ {
		switch {
		case r[i].Key == r[i-1].Key:
			return fmt.Errorf("%w: %q", ErrReferenceDuplicate, r[i].Key)
		case r[i].Key < r[i-1].Key:
			return fmt.Errorf("%w: %q after %q", ErrReferenceOrder, r[i].Key, r[i-1].Key)
		}
	}

	return nil
}

// Map returns key -> value.
func (r Reference) Map() map[string]float64 {
	m := make(map[string]float64, len(r))
	for _, e := range r {
		m[e.Key] = e.Value
	}

	return m
}

// Validator handles table validation before statistics run.
type Validator struct{}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTable checks that t is non-nil, has rows and only finite values.
func (v *Validator) ValidateTable(t *table.FieldTable) error {
	if t == nil {
		return ErrNilTable
	}

	if t.Len() == 0 {
		return fmt.Errorf("%w: %s", table.ErrEmptyTable, t.Name())
	}

	fields := t.Fields()

	for _, key := range t.Keys() {
		row, _ := t.Row(key)

		for i, val := range row {
			if math.IsNaN(val) || math.IsInf(val, 0) {
				return fmt.Errorf("%w: %s[%q][%q]", ErrNonFiniteValue, t.Name(), key, fields[i])
			}
		}
	}

	return nil
}
