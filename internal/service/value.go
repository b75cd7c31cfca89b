package service

import (
	"encoding/json"
	"fmt"
	"math"
)

// encodableValue prepares a completion value for a JSON transport.
// Non-finite numbers become the strings "NaN", "Infinity" and "-Infinity",
// also inside arrays and objects. Anything else that still does not
// marshal, such as a host object carrying functions, is an error.
func encodableValue(v interface{}) (interface{}, error) {
	out := normalizeNumbers(v)
	if _, err := json.Marshal(out); err != nil {
		return nil, fmt.Errorf("result cannot be represented as JSON: %w", err)
	}
	return out, nil
}

func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		return nonFinite(t)
	case float32:
		return nonFinite(float64(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeNumbers(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = normalizeNumbers(item)
		}
		return out
	default:
		return v
	}
}

func nonFinite(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}
