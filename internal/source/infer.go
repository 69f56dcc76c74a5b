package source

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
)

var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+$`)
	decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.\d*|\.\d+|\d+)([eE][+-]?\d+)?$`)
)

// InferType maps one observed value to a canonical type.
//
// Values arrive already decoded: strings for delimited files, native JSON
// scalars (json.Number when decoded with UseNumber) for JSON documents.
// Rules, first match wins:
//
//	nil or ""                                  -> string
//	bool, "true"/"false"                       -> boolean
//	whole number, integer literal              -> integer
//	fractional number, decimal literal         -> float
//	anything else                              -> string
//
// Callers apply it to the first data row only. An empty first cell types
// the column as string even when later rows hold numbers.
func InferType(v any) Type {
	switch x := v.(type) {
	case nil:
		return TypeString
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32:
		return inferFloat(float64(x))
	case float64:
		return inferFloat(x)
	case json.Number:
		if strings.ContainsAny(string(x), ".eE") {
			return TypeFloat
		}
		return TypeInteger
	case string:
		return inferString(x)
	default:
		return TypeString
	}
}

func inferFloat(f float64) Type {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return TypeFloat
	}
	if f == math.Trunc(f) {
		return TypeInteger
	}
	return TypeFloat
}

func inferString(s string) Type {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeString
	}
	if strings.EqualFold(s, "true") || strings.EqualFold(s, "false") {
		return TypeBoolean
	}
	if integerPattern.MatchString(s) {
		return TypeInteger
	}
	if decimalPattern.MatchString(s) {
		return TypeFloat
	}
	return TypeString
}
