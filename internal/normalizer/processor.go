// Package normalizer joins per-source tables with reference data and derives
// the normalized tables the color binner consumes.
package normalizer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"njvaxbot/internal/table"
)

// Join errors.
var (
	ErrKeysDropped      = errors.New("keys dropped by join")
	ErrFieldCollision   = errors.New("field collision")
	ErrMissingReference = errors.New("missing reference value")
	ErrNoTables         = errors.New("no tables to join")
	ErrDuplicateTable   = errors.New("duplicate table name")
)

// JoinOptions controls Join.
type JoinOptions struct {
	// FailOnDropped turns any key missing from at least one input into ErrKeysDropped.
	FailOnDropped bool
}

// DroppedKey is a key excluded from the join and the inputs that lacked it.
type DroppedKey struct {
	Key         string
	MissingFrom []string
}

// JoinReport describes what the inner join discarded.
type JoinReport struct {
	Dropped []DroppedKey
}

// DroppedKeys returns the dropped keys in order.
func (r JoinReport) DroppedKeys() []string {
	keys := make([]string, len(r.Dropped))
	for i, d := range r.Dropped {
		keys[i] = d.Key
	}

	return keys
}

// Join inner-joins tables on entity key, attaches refName from the reference,
// truncates every value toward zero and sorts fields alphabetically.
// Disjoint inputs yield a table with zero rows.
func Join(tables []*table.FieldTable, ref Reference, refName string, opts JoinOptions) (*table.FieldTable, JoinReport, error) {
	var report JoinReport

	if len(tables) == 0 {
		return nil, report, ErrNoTables
	}

	if err := ref.Validate(); err != nil {
		return nil, report, err
	}

	names := make(map[string]bool, len(tables))

	for _, t := range tables {
		if names[t.Name()] {
			return nil, report, fmt.Errorf("%w: %q", ErrDuplicateTable, t.Name())
		}

		names[t.Name()] = true
	}

	// owner maps each field to the index of its table; -1 is the reference.
	owner := map[string]int{refName: -1}

	var fields []string

	for i, t := range tables {
		for _, f := range t.Fields() {
			if prev, dup := owner[f]; dup {
				from := "reference"
				if prev >= 0 {
					from = tables[prev].Name()
				}

				return nil, report, fmt.Errorf("%w: %q in %s and %s", ErrFieldCollision, f, from, t.Name())
			}

			owner[f] = i
			fields = append(fields, f)
		}
	}

	fields = append(fields, refName)
	sort.Strings(fields)

	all := make(map[string]bool)

	for _, t := range tables {
		for _, k := range t.Keys() {
			all[k] = true
		}
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	refValues := ref.Map()
	rows := make(map[string][]float64, len(keys))

	for _, key := range keys {
		var missing []string

		for _, t := range tables {
			if !t.HasKey(key) {
				missing = append(missing, t.Name())
			}
		}

		if len(missing) > 0 {
			report.Dropped = append(report.Dropped, DroppedKey{Key: key, MissingFrom: missing})

			continue
		}

		refValue, ok := refValues[key]
		if !ok {
			return nil, report, fmt.Errorf("%w: %q has no %s", ErrMissingReference, key, refName)
		}

		row := make([]float64, len(fields))

		for i, f := range fields {
			if f == refName {
				row[i] = math.Trunc(refValue)

				continue
			}

			v, _ := tables[owner[f]].Value(key, f)
			row[i] = math.Trunc(v)
		}

		rows[key] = row
	}

	if opts.FailOnDropped && len(report.Dropped) > 0 {
		return nil, report, fmt.Errorf("%w: %v", ErrKeysDropped, report.DroppedKeys())
	}

	joined, err := table.New("joined", fields, rows)
	if err != nil {
		return nil, report, err
	}

	return joined, report, nil
}

// Result bundles every table a Processor derives.
type Result struct {
	Joined     *table.FieldTable
	Normalized *table.FieldTable
	PerCapita  *table.FieldTable
	Share      *table.FieldTable
	Report     JoinReport
	Warnings   []Warning
}

// Processor runs join, validation and transformation in sequence.
type Processor struct {
	validator   *Validator
	transformer *Transformer
	opts        JoinOptions
}

// NewProcessor creates a new processor instance.
func NewProcessor(discrepancies []Discrepancy, opts JoinOptions) *Processor {
	return &Processor{
		validator:   NewValidator(),
		transformer: NewTransformer(discrepancies),
		opts:        opts,
	}
}

// Process joins the source tables with the reference and derives the
// normalized, per-reference and share tables.
func (p *Processor) Process(tables []*table.FieldTable, ref Reference, refName string) (*Result, error) {
	joined, report, err := Join(tables, ref, refName, p.opts)
	if err != nil {
		return nil, fmt.Errorf("join failed: %w", err)
	}

	if err := p.validator.ValidateTable(joined); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	res, err := p.transformer.Transform(joined, refName)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	res.Report = report

	return res, nil
}
