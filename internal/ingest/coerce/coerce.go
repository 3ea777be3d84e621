// Package coerce converts raw ingested field values to target semantic types.
// Conversion never fails loudly: any value that cannot be represented in the
// target type degrades to nil and the caller drops the field from the record.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Type is a coercion target.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeDate    Type = "date"
)

// truthyTokens are the recognized true-like string values. Everything else,
// including "no" and "0", coerces to false; garbage input is indistinguishable
// from an explicit negative. Preserved from the original semantics.
var truthyTokens = map[string]struct{}{
	"true": {},
	"1":    {},
	"yes":  {},
	"on":   {},
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
}

// ParseType maps a raw type hint to a Type; unknown hints fall back to string.
func ParseType(hint string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(hint))) {
	case TypeNumber:
		return TypeNumber
	case TypeInteger:
		return TypeInteger
	case TypeBoolean:
		return TypeBoolean
	case TypeDate:
		return TypeDate
	default:
		return TypeString
	}
}

// Convert coerces value to the target type, returning nil when the value is
// absent, empty, or unrepresentable.
func Convert(value any, target Type) any {
	if isEmpty(value) {
		return nil
	}

	switch target {
	case TypeNumber:
		return toNumber(value)
	case TypeInteger:
		return toInteger(value)
	case TypeBoolean:
		return toBoolean(value)
	case TypeDate:
		return toDate(value)
	default:
		return toString(value)
	}
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toNumber(value any) any {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	case float32:
		return toNumber(float64(v))
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return float64(1)
		}
		return float64(0)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return nil
		}
		return parsed
	default:
		return nil
	}
}

func toInteger(value any) any {
	num := toNumber(value)
	if num == nil {
		return nil
	}
	f := math.Trunc(num.(float64))
	// Converting a float beyond the int range is not defined; such values
	// degrade to nil like every other unrepresentable input.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	return int(f)
}

func toBoolean(value any) any {
	if b, ok := value.(bool); ok {
		return b
	}
	token := strings.ToLower(strings.TrimSpace(toStringRaw(value)))
	_, ok := truthyTokens[token]
	return ok
}

func toString(value any) any {
	return strings.TrimSpace(toStringRaw(value))
}

func toStringRaw(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toDate(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v
	case float64:
		// Epoch seconds; anything before 1971 is assumed to be a bare year.
		if v > 3000 {
			return time.Unix(int64(v), 0).UTC()
		}
		return time.Date(int(v), time.January, 1, 0, 0, 0, 0, time.UTC)
	case string:
		text := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, text); err == nil {
				return parsed
			}
		}
		if year, err := strconv.Atoi(text); err == nil && year >= 1000 && year <= 3000 {
			return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		}
		return nil
	default:
		return nil
	}
}
