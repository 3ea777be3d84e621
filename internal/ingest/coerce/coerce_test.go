package coerce

import (
	"testing"
	"time"
)

func TestConvert_EmptyValuesAlwaysNil(t *testing.T) {
	targets := []Type{TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeDate}
	inputs := []any{nil, "", "   "}

	for _, target := range targets {
		for _, input := range inputs {
			if got := Convert(input, target); got != nil {
				t.Fatalf("Convert(%v, %s) = %v, want nil", input, target, got)
			}
		}
	}
}

func TestConvert_Number(t *testing.T) {
	if got := Convert("123.5", TypeNumber); got != 123.5 {
		t.Fatalf("expected 123.5, got %v", got)
	}
	if got := Convert(42, TypeNumber); got != float64(42) {
		t.Fatalf("expected 42, got %v", got)
	}
	if got := Convert("not a number", TypeNumber); got != nil {
		t.Fatalf("expected nil for garbage, got %v", got)
	}
	if got := Convert("NaN", TypeNumber); got != nil {
		t.Fatalf("expected nil for NaN, got %v", got)
	}
	if got := Convert("Inf", TypeNumber); got != nil {
		t.Fatalf("expected nil for Inf, got %v", got)
	}
}

func TestConvert_Integer(t *testing.T) {
	if got := Convert("2020", TypeInteger); got != 2020 {
		t.Fatalf("expected 2020, got %v", got)
	}
	if got := Convert("2.9", TypeInteger); got != 2 {
		t.Fatalf("expected truncation to 2, got %v", got)
	}
	if got := Convert("twenty", TypeInteger); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := Convert("1e300", TypeInteger); got != nil {
		t.Fatalf("expected nil beyond the int range, got %v", got)
	}
	if got := Convert("-1e300", TypeInteger); got != nil {
		t.Fatalf("expected nil beyond the int range, got %v", got)
	}
}

func TestConvert_Boolean(t *testing.T) {
	truthy := []any{"true", "TRUE", "1", "yes", "Yes", "on", true}
	for _, input := range truthy {
		if got := Convert(input, TypeBoolean); got != true {
			t.Fatalf("Convert(%v) = %v, want true", input, got)
		}
	}

	// "no" and "0" are indistinguishable from garbage; both map to false.
	falsy := []any{"false", "no", "0", "off", "garbage", false}
	for _, input := range falsy {
		if got := Convert(input, TypeBoolean); got != false {
			t.Fatalf("Convert(%v) = %v, want false", input, got)
		}
	}
}

func TestConvert_String(t *testing.T) {
	if got := Convert("  Toyota  ", TypeString); got != "Toyota" {
		t.Fatalf("expected trimmed string, got %q", got)
	}
	if got := Convert(2020, TypeString); got != "2020" {
		t.Fatalf("expected \"2020\", got %q", got)
	}
	if got := Convert(true, TypeString); got != "true" {
		t.Fatalf("expected \"true\", got %q", got)
	}
}

func TestConvert_Date(t *testing.T) {
	got := Convert("2020-06-15", TypeDate)
	parsed, ok := got.(time.Time)
	if !ok {
		t.Fatalf("expected time.Time, got %T", got)
	}
	if parsed.Year() != 2020 || parsed.Month() != time.June || parsed.Day() != 15 {
		t.Fatalf("unexpected date %v", parsed)
	}

	if got := Convert("not a date", TypeDate); got != nil {
		t.Fatalf("expected nil for invalid date, got %v", got)
	}

	got = Convert("2020", TypeDate)
	parsed, ok = got.(time.Time)
	if !ok || parsed.Year() != 2020 {
		t.Fatalf("expected year-only date 2020, got %v", got)
	}
}

func TestParseType(t *testing.T) {
	if ParseType("Integer") != TypeInteger {
		t.Fatalf("expected integer")
	}
	if ParseType("unknown") != TypeString {
		t.Fatalf("unknown hints fall back to string")
	}
	if ParseType(" date ") != TypeDate {
		t.Fatalf("expected date")
	}
}
