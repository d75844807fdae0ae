// Package binner assigns entities to one of five palette colors using
// percentile breakpoints and produces legend labels for map templates.
package binner

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Bins is the number of palette colors and breakpoints.
const Bins = 5

// Fallback is the color of values outside every bin.
const Fallback = "white"

// Binning errors.
var (
	ErrInvalidPalette = errors.New("palette must have exactly 5 colors")
	ErrInvalidMode    = errors.New("invalid label mode")
	ErrNoValues       = errors.New("no values to bin")
	ErrInvalidValue   = errors.New("value is not finite")
)

// Mode selects how breakpoints are rendered as legend labels.
type Mode string

const (
	// Linear labels show the breakpoint rounded to one decimal.
	Linear Mode = "linear"
	// Percent labels show the breakpoint times 100, one decimal, with a % suffix.
	Percent Mode = "percent"
)

// ParseMode reads a mode from configuration or flags, ignoring case and
// surrounding whitespace. Bin itself only accepts Linear and Percent.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Linear, Percent:
		return m, nil
	}

	return "", fmt.Errorf("%w: %q (want linear or percent)", ErrInvalidMode, s)
}

// Palette is the ordered list of bin colors, lightest bin first.
type Palette [Bins]string

// NewPalette trims every color and requires exactly five non-empty entries.
func NewPalette(colors []string) (Palette, error) {
	var p Palette

	if len(colors) != Bins {
		return p, fmt.Errorf("%w: got %d", ErrInvalidPalette, len(colors))
	}

	for i, c := range colors {
		c = strings.TrimSpace(c)
		if c == "" {
			return p, fmt.Errorf("%w: color %d is empty", ErrInvalidPalette, i+1)
		}

		p[i] = c
	}

	return p, nil
}

// Result is the outcome of binning one field.
type Result struct {
	Colors      map[string]string
	index       map[string]int
	Palette     Palette
	Breakpoints [Bins]float64
	Labels      [Bins]string
	Mode        Mode
}

// Bin computes the 20/40/60/80/100th percentile breakpoints of values and
// assigns every entity a color.
func Bin(values map[string]float64, palette Palette, mode Mode) (*Result, error) {
	if mode != Linear && mode != Percent {
		return nil, fmt.Errorf("%w: %q (want linear or percent)", ErrInvalidMode, mode)
	}

	if _, err := NewPalette(palette[:]); err != nil {
		return nil, err
	}

	if len(values) == 0 {
		return nil, ErrNoValues
	}

	sorted := make([]float64, 0, len(values))

	for key, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q = %v", ErrInvalidValue, key, v)
		}

		sorted = append(sorted, v)
	}

	sort.Float64s(sorted)

	res := &Result{
		Palette: palette,
		Mode:    mode,
		Colors:  make(map[string]string, len(values)),
		index:   make(map[string]int, len(values)),
	}

	for i := range Bins {
		res.Breakpoints[i] = Percentile(sorted, float64((i+1)*20))
		res.Labels[i] = Label(res.Breakpoints[i], mode)
	}

	for key, v := range values {
		idx := res.classify(v)
		res.index[key] = idx

		if idx == 0 {
			res.Colors[key] = Fallback
		} else {
			res.Colors[key] = palette[idx-1]
		}
	}

	return res, nil
}

func (r *Result) classify(v float64) int {
	for i := 0; i < Bins-1; i++ {
		if v < r.Breakpoints[i] {
			return i + 1
		}
	}

	if v <= r.Breakpoints[Bins-1] {
		return Bins
	}

	return 0
}

// Index returns the 1-based bin of key, or 0 for the fallback or an unknown key.
func (r *Result) Index(key string) int {
	return r.index[key]
}

// Tokens returns the template substitutions: key_color1..5, key_label1..5
// and one entry per entity mapping to its color.
func (r *Result) Tokens() map[string]string {
	tokens := make(map[string]string, len(r.Colors)+2*Bins)

	for i := range Bins {
		tokens[fmt.Sprintf("key_color%d", i+1)] = r.Palette[i]
		tokens[fmt.Sprintf("key_label%d", i+1)] = r.Labels[i]
	}

	for key, c := range r.Colors {
		tokens[key] = c
	}

	return tokens
}

// Percentile returns the p-th percentile of sorted values using linear
// interpolation between the closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))

	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)

	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Label formats a breakpoint for the legend.
func Label(v float64, mode Mode) string {
	d := decimal.NewFromFloat(v)

	if mode == Percent {
		return d.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
	}

	return d.StringFixed(1)
}
