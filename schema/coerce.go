package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Coerce converts JSON-decoded values to the types the schema declares.
//
// Integral numbers become int for int fields, numeric strings become numbers,
// "true"/"false" become bools. Values that cannot be converted are left as they
// are for ValidateConfig to report. The input is never mutated.
func Coerce(config map[string]any, s ConfigSchema) map[string]any {
	return coerceObject(config, s.Properties)
}

func coerceObject(config map[string]any, props map[string]PropertySchema) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		if prop, ok := props[k]; ok {
			out[k] = coerceValue(v, prop)
			continue
		}
		out[k] = deepCopy(v)
	}
	return out
}

func coerceValue(value any, prop PropertySchema) any {
	switch prop.Type {
	case TypeInt:
		if i, ok := toInt(value); ok {
			return i
		}
	case TypeNumber:
		switch v := value.(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		case int, int32, int64, float32:
			f, _ := toFloat(v)
			return f
		}
	case TypeBool:
		if s, ok := value.(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true":
				return true
			case "false":
				return false
			}
		}
	case TypeArray:
		elems, ok := asSlice(value)
		if !ok {
			break
		}
		out := make([]any, len(elems))
		for i, e := range elems {
			if prop.Items != nil {
				out[i] = coerceValue(e, *prop.Items)
			} else {
				out[i] = deepCopy(e)
			}
		}
		return out
	case TypeObject:
		if m, ok := value.(map[string]any); ok {
			return coerceObject(m, prop.Properties)
		}
	}
	return deepCopy(value)
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
		if f, err := v.Float64(); err == nil && f == math.Trunc(f) {
			return int(f), true
		}
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int(v), true
		}
	case float32:
		if f := float64(v); f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int(f), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// MergeDefaults merges config over the schema's declared defaults.
//
// Explicit values always win; a nil value counts as absent. Nested objects are
// merged field by field. The result is a fresh map and neither input is
// mutated.
func MergeDefaults(config map[string]any, s ConfigSchema) map[string]any {
	return mergeObject(config, s.Properties)
}

func mergeObject(config map[string]any, props map[string]PropertySchema) map[string]any {
	out := make(map[string]any, len(config)+len(props))
	for k, v := range config {
		if v != nil {
			out[k] = deepCopy(v)
		}
	}
	for name, prop := range props {
		current, exists := out[name]
		switch {
		case exists && prop.Type == TypeObject && len(prop.Properties) > 0:
			if m, ok := current.(map[string]any); ok {
				out[name] = mergeObject(m, prop.Properties)
			}
		case exists:
		case prop.Default != nil:
			out[name] = deepCopy(prop.Default)
			if m, ok := out[name].(map[string]any); ok && len(prop.Properties) > 0 {
				out[name] = mergeObject(m, prop.Properties)
			}
		case prop.Type == TypeObject && len(prop.Properties) > 0:
			if nested := mergeObject(nil, prop.Properties); len(nested) > 0 {
				out[name] = nested
			}
		}
	}
	return out
}

// deepCopy copies maps and slices so callers never share mutable state.
func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = deepCopy(e)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case []map[string]any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = deepCopy(e)
		}
		return out
	}
	return value
}

// CopyConfig returns a deep copy of a configuration map.
func CopyConfig(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	return deepCopy(config).(map[string]any)
}
