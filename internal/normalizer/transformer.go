package normalizer

import (
	"fmt"
	"math"

	"njvaxbot/internal/table"
)

// Warning reports a degenerate column that was given a defined value instead of failing.
type Warning struct {
	Table   string
	Field   string
	Message string
}

// String formats the warning for logs.
func (w Warning) String() string {
	return fmt.Sprintf("%s[%s]: %s", w.Table, w.Field, w.Message)
}

// Discrepancy declares a derived field Name = Minuend - Subtrahend.
type Discrepancy struct {
	Name       string `yaml:"name"`
	Minuend    string `yaml:"minuend"`
	Subtrahend string `yaml:"subtrahend"`
}

// Transformer derives the normalized and ratio tables from a joined table.
type Transformer struct {
	discrepancies []Discrepancy
}

// NewTransformer creates a new transformer instance.
func NewTransformer(discrepancies []Discrepancy) *Transformer {
	return &Transformer{discrepancies: append([]Discrepancy(nil), discrepancies...)}
}

// Transform returns the normalized table with discrepancies, the per-reference
// table and the share-of-total table for joined.
func (t *Transformer) Transform(joined *table.FieldTable, refField string) (*Result, error) {
	res := &Result{Joined: joined}

	normalized, warnings, err := Normalize(joined)
	if err != nil {
		return nil, err
	}

	res.Warnings = append(res.Warnings, warnings...)

	res.Normalized, err = WithDiscrepancies(normalized, t.discrepancies)
	if err != nil {
		return nil, err
	}

	res.PerCapita, warnings, err = PerReference(joined, refField)
	if err != nil {
		return nil, err
	}

	res.Warnings = append(res.Warnings, warnings...)

	res.Share, warnings, err = ShareOfTotal(joined)
	if err != nil {
		return nil, err
	}

	res.Warnings = append(res.Warnings, warnings...)

	return res, nil
}

// Normalize z-scores every field with the population standard deviation.
// A field with zero deviation normalizes to 0 and yields a Warning.
func Normalize(t *table.FieldTable) (*table.FieldTable, []Warning, error) {
	fields := t.Fields()
	keys := t.Keys()
	rows := t.Rows()

	var warnings []Warning

	for i, f := range fields {
		col := make([]float64, len(keys))
		for j, key := range keys {
			col[j] = rows[key][i]
		}

		mean, std := meanStd(col)
		// Rounding in the mean leaves constant decimal columns with a tiny
		// nonzero deviation; treat it as zero.
		if std <= 1e-12*math.Max(1, math.Abs(mean)) {
			std = 0
		}

		if std == 0 {
			warnings = append(warnings, Warning{Table: t.Name(), Field: f, Message: "zero standard deviation, normalized to 0"})
		}

		for _, key := range keys {
			if std == 0 {
				rows[key][i] = 0
			} else {
				rows[key][i] = (rows[key][i] - mean) / std
			}
		}
	}

	out, err := table.New("normalized", fields, rows)
	if err != nil {
		return nil, nil, err
	}

	return out, warnings, nil
}

// WithDiscrepancies appends one field per discrepancy, in declaration order.
func WithDiscrepancies(t *table.FieldTable, discrepancies []Discrepancy) (*table.FieldTable, error) {
	fields := t.Fields()
	rows := t.Rows()

	for _, d := range discrepancies {
		for _, operand := range []string{d.Minuend, d.Subtrahend} {
			if !t.HasField(operand) {
				return nil, fmt.Errorf("%w: %q used by %q", table.ErrUnknownField, operand, d.Name)
			}
		}

		for _, f := range fields {
			if f == d.Name {
				return nil, fmt.Errorf("%w: discrepancy %q", ErrFieldCollision, d.Name)
			}
		}

		fields = append(fields, d.Name)

		for _, key := range t.Keys() {
			a, _ := t.Value(key, d.Minuend)
			b, _ := t.Value(key, d.Subtrahend)
			rows[key] = append(rows[key], a-b)
		}
	}

	return table.New(t.Name(), fields, rows)
}

// PerReference divides every field by refField and drops refField.
// A zero reference yields 0 for that entity and a Warning.
func PerReference(t *table.FieldTable, refField string) (*table.FieldTable, []Warning, error) {
	if !t.HasField(refField) {
		return nil, nil, fmt.Errorf("%w: %q", table.ErrUnknownField, refField)
	}

	var (
		fields   []string
		warnings []Warning
	)

	for _, f := range t.Fields() {
		if f != refField {
			fields = append(fields, f)
		}
	}

	rows := make(map[string][]float64, t.Len())

	for _, key := range t.Keys() {
		ref, _ := t.Value(key, refField)
		if ref == 0 {
			warnings = append(warnings, Warning{Table: "per_capita", Field: refField, Message: fmt.Sprintf("zero reference for %q", key)})
		}

		row := make([]float64, len(fields))

		for i, f := range fields {
			if ref != 0 {
				v, _ := t.Value(key, f)
				row[i] = v / ref
			}
		}

		rows[key] = row
	}

	out, err := table.New("per_capita", fields, rows)
	if err != nil {
		return nil, nil, err
	}

	return out, warnings, nil
}

// ShareOfTotal divides every cell by its column sum.
// A zero sum yields 0 for the column and a Warning.
func ShareOfTotal(t *table.FieldTable) (*table.FieldTable, []Warning, error) {
	fields := t.Fields()
	rows := t.Rows()

	var warnings []Warning

	for i, f := range fields {
		sum := 0.0
		for _, row := range rows {
			sum += row[i]
		}

		if sum == 0 {
			warnings = append(warnings, Warning{Table: "share", Field: f, Message: "zero column sum"})
		}

		for key := range rows {
			if sum == 0 {
				rows[key][i] = 0
			} else {
				rows[key][i] /= sum
			}
		}
	}

	out, err := table.New("share", fields, rows)
	if err != nil {
		return nil, nil, err
	}

	return out, warnings, nil
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	mean := sum / float64(len(values))

	sq := 0.0
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}

	return mean, math.Sqrt(sq / float64(len(values)))
}
