package normalizer

import (
	"errors"
	"math"
	"strings"
	"testing"

	"njvaxbot/internal/table"
)

func TestNormalize(t *testing.T) {
	tbl := mustTable(t, "joined", []string{"a", "flat"}, map[string][]float64{
		"k1": {1, 7},
		"k2": {2, 7},
		"k3": {3, 7},
	})

	out, warnings, err := Normalize(tbl)
	if err != nil {
		t.Fatalf("Normalize returned unexpected error: %v", err)
	}

	want := math.Sqrt(1.5)
	if v, _ := out.Value("k1", "a"); math.Abs(v+want) > 1e-12 {
		t.Errorf("k1 = %v, want %v", v, -want)
	}

	if v, _ := out.Value("k2", "a"); v != 0 {
		t.Errorf("k2 = %v, want 0", v)
	}

	for _, k := range out.Keys() {
		if v, _ := out.Value(k, "flat"); v != 0 {
			t.Errorf("%s flat = %v, want 0", k, v)
		}
	}

	if len(warnings) != 1 || warnings[0].Field != "flat" {
		t.Fatalf("warnings = %v, want one for flat", warnings)
	}

	if !strings.Contains(warnings[0].String(), "zero standard deviation") {
		t.Errorf("warning text = %q", warnings[0].String())
	}
}

func TestNormalize_ConstantDecimalColumn(t *testing.T) {
	tbl := mustTable(t, "joined", []string{"rate"}, map[string][]float64{
		"k1": {0.1},
		"k2": {0.1},
		"k3": {0.1},
		"k4": {0.1},
		"k5": {0.1},
		"k6": {0.1},
		"k7": {0.1},
	})

	out, warnings, err := Normalize(tbl)
	if err != nil {
		t.Fatalf("Normalize returned unexpected error: %v", err)
	}

	for _, k := range out.Keys() {
		if v, _ := out.Value(k, "rate"); v != 0 {
			t.Errorf("%s rate = %v, want 0", k, v)
		}
	}

	if len(warnings) != 1 || warnings[0].Field != "rate" {
		t.Errorf("warnings = %v, want one for rate", warnings)
	}
}

func TestWithDiscrepancies(t *testing.T) {
	tbl := mustTable(t, "normalized", []string{"Confirmed Cases", "Vaccine Doses"}, map[string][]float64{
		"k1": {1, 5},
	})

	out, err := WithDiscrepancies(tbl, []Discrepancy{
		{Name: "Vaccine-Case Discrepancy", Minuend: "Vaccine Doses", Subtrahend: "Confirmed Cases"},
	})
	if err != nil {
		t.Fatalf("WithDiscrepancies returned unexpected error: %v", err)
	}

	fields := out.Fields()
	if fields[len(fields)-1] != "Vaccine-Case Discrepancy" {
		t.Errorf("discrepancy not appended last: %v", fields)
	}

	if v, _ := out.Value("k1", "Vaccine-Case Discrepancy"); v != 4 {
		t.Errorf("discrepancy = %v, want 4", v)
	}

	_, err = WithDiscrepancies(tbl, []Discrepancy{{Name: "d", Minuend: "missing", Subtrahend: "Vaccine Doses"}})
	if !errors.Is(err, table.ErrUnknownField) {
		t.Errorf("unknown operand error = %v, want ErrUnknownField", err)
	}

	_, err = WithDiscrepancies(tbl, []Discrepancy{{Name: "Vaccine Doses", Minuend: "Vaccine Doses", Subtrahend: "Confirmed Cases"}})
	if !errors.Is(err, ErrFieldCollision) {
		t.Errorf("collision error = %v, want ErrFieldCollision", err)
	}
}

func TestPerReference_ZeroReference(t *testing.T) {
	tbl := mustTable(t, "joined", []string{"Population", "x"}, map[string][]float64{
		"k1": {0, 5},
		"k2": {10, 5},
	})

	out, warnings, err := PerReference(tbl, "Population")
	if err != nil {
		t.Fatalf("PerReference returned unexpected error: %v", err)
	}

	if v, _ := out.Value("k1", "x"); v != 0 {
		t.Errorf("k1 = %v, want 0", v)
	}

	if v, _ := out.Value("k2", "x"); v != 0.5 {
		t.Errorf("k2 = %v, want 0.5", v)
	}

	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want 1", warnings)
	}

	if _, _, err := PerReference(tbl, "Households"); !errors.Is(err, table.ErrUnknownField) {
		t.Errorf("error = %v, want ErrUnknownField", err)
	}
}

func TestShareOfTotal(t *testing.T) {
	tbl := mustTable(t, "joined", []string{"x", "zero"}, map[string][]float64{
		"k1": {1, 0},
		"k2": {3, 0},
	})

	out, warnings, err := ShareOfTotal(tbl)
	if err != nil {
		t.Fatalf("ShareOfTotal returned unexpected error: %v", err)
	}

	if v, _ := out.Value("k2", "x"); v != 0.75 {
		t.Errorf("k2 share = %v, want 0.75", v)
	}

	if len(warnings) != 1 || warnings[0].Field != "zero" {
		t.Errorf("warnings = %v, want one for zero", warnings)
	}
}
