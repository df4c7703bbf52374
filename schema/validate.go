package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Validation error codes
const (
	CodeRequired = "required"
	CodeType     = "type"
	CodeEnum     = "enum"
	CodeMin      = "min"
	CodeMax      = "max"
	CodeItems    = "items"
	CodeNested   = "nested"
)

// ValidationError represents a validation failure for one configuration field.
//
// Codes:
//   - "required": field is required but missing
//   - "type": value does not match the declared type
//   - "enum": value not among the allowed literals
//   - "min" / "max": numeric value outside its bounds
//   - "items": an array element failed validation
//   - "nested": a field of a nested object failed validation
//
// Field holds the path of the failing value, e.g. "cards[1].title".
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Fields returns the distinct field paths named by errs, in order.
func Fields(errs []ValidationError) []string {
	seen := make(map[string]bool, len(errs))
	var out []string
	for _, e := range errs {
		if !seen[e.Field] {
			seen[e.Field] = true
			out = append(out, e.Field)
		}
	}
	return out
}

// ValidateConfig validates a configuration map against a schema.
//
// Validation is lenient to unknown fields. Results are ordered by field name
// so callers get stable messages.
func ValidateConfig(config map[string]any, s ConfigSchema) []ValidationError {
	return validateObject("", config, s.Properties)
}

func validateObject(prefix string, config map[string]any, props map[string]PropertySchema) []ValidationError {
	var errs []ValidationError
	for _, name := range sortedKeys(props) {
		prop := props[name]
		path := joinPath(prefix, name)
		value, exists := config[name]
		if !exists || value == nil {
			if prop.Required {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("Field %q is required", path),
					Code:    CodeRequired,
				})
			}
			continue
		}
		errs = append(errs, validateValue(path, value, prop)...)
	}
	return errs
}

func validateValue(path string, value any, prop PropertySchema) []ValidationError {
	if err := validateType(path, value, prop); err != nil {
		return []ValidationError{*err}
	}

	var errs []ValidationError
	switch prop.Type {
	case TypeString, TypeEnum:
		if len(prop.Enum) > 0 {
			if err := validateEnum(path, value.(string), prop.Enum); err != nil {
				errs = append(errs, *err)
			}
		}
	case TypeInt, TypeNumber:
		n, _ := toFloat(value)
		if prop.Minimum != nil && n < *prop.Minimum {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("Field %q must be >= %s", path, formatNumber(*prop.Minimum)),
				Code:    CodeMin,
			})
		}
		if prop.Maximum != nil && n > *prop.Maximum {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("Field %q must be <= %s", path, formatNumber(*prop.Maximum)),
				Code:    CodeMax,
			})
		}
	case TypeArray:
		if prop.Items == nil {
			break
		}
		elems, _ := asSlice(value)
		for i, elem := range elems {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			if elem == nil {
				errs = append(errs, ValidationError{
					Field: elemPath, Message: fmt.Sprintf("Element %q must not be null", elemPath), Code: CodeItems,
				})
				continue
			}
			for _, e := range validateValue(elemPath, elem, *prop.Items) {
				errs = append(errs, ValidationError{Field: e.Field, Message: e.Message, Code: CodeItems})
			}
		}
	case TypeObject:
		if len(prop.Properties) == 0 {
			break
		}
		for _, e := range validateObject(path, value.(map[string]any), prop.Properties) {
			errs = append(errs, ValidationError{Field: e.Field, Message: e.Message, Code: CodeNested})
		}
	}
	return errs
}

func validateType(path string, value any, prop PropertySchema) *ValidationError {
	typeErr := func(what string) *ValidationError {
		return &ValidationError{
			Field:   path,
			Message: fmt.Sprintf("Field %q must be %s", path, what),
			Code:    CodeType,
		}
	}

	switch prop.Type {
	case TypeString, TypeEnum:
		if _, ok := value.(string); !ok {
			return typeErr("a string")
		}
	case TypeInt:
		n, ok := toFloat(value)
		if !ok || n != math.Trunc(n) {
			return typeErr("an integer")
		}
	case TypeNumber:
		if _, ok := toFloat(value); !ok {
			return typeErr("a number")
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return typeErr("a boolean")
		}
	case TypeArray:
		if _, ok := asSlice(value); !ok {
			return typeErr("an array")
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return typeErr("an object")
		}
	}
	return nil
}

func validateEnum(path, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   path,
		Message: fmt.Sprintf("Field %q must be one of: %v", path, allowed),
		Code:    CodeEnum,
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toFloat converts any numeric representation produced by encoding/json or
// Go literals to float64.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// asSlice accepts the slice shapes configuration values arrive in.
func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}
