package schema

import (
	"encoding/json"
	"fmt"

	"github.com/c360/semblocks/errors"
)

// Limits bounds the shape of configuration values accepted for rendering.
type Limits struct {
	MaxDepth     int
	MaxArraySize int
	MaxStringLen int
}

// DefaultLimits returns limits that reject deeply nested or oversized input.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:     10,
		MaxArraySize: 1000,
		MaxStringLen: 64 * 1024,
	}
}

// Check walks config and rejects values that exceed the limits or contain
// null bytes or control characters.
func (l Limits) Check(config map[string]any) error {
	if err := l.checkValue(config, 0); err != nil {
		return errors.WrapInvalid(err, "Limits", "Check", "configuration limits")
	}
	return nil
}

func (l Limits) checkValue(value any, depth int) error {
	if l.MaxDepth > 0 && depth > l.MaxDepth {
		return fmt.Errorf("%w: depth %d exceeds maximum %d", errors.ErrInvalidData, depth, l.MaxDepth)
	}

	switch v := value.(type) {
	case string:
		return l.checkString(v)
	case map[string]any:
		for key, elem := range v {
			if err := l.checkString(key); err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
			if err := l.checkValue(elem, depth+1); err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
		}
	case []any:
		if l.MaxArraySize > 0 && len(v) > l.MaxArraySize {
			return fmt.Errorf("%w: array size %d exceeds maximum %d", errors.ErrInvalidData, len(v), l.MaxArraySize)
		}
		for i, elem := range v {
			if err := l.checkValue(elem, depth+1); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case []string:
		if l.MaxArraySize > 0 && len(v) > l.MaxArraySize {
			return fmt.Errorf("%w: array size %d exceeds maximum %d", errors.ErrInvalidData, len(v), l.MaxArraySize)
		}
		for _, s := range v {
			if err := l.checkString(s); err != nil {
				return err
			}
		}
	case json.Number:
		if _, err := v.Float64(); err != nil {
			return fmt.Errorf("%w: number %q out of range", errors.ErrInvalidData, v.String())
		}
	case nil, bool, int, int32, int64, float32, float64:
	default:
		return fmt.Errorf("%w: unexpected type %T", errors.ErrInvalidData, value)
	}
	return nil
}

func (l Limits) checkString(s string) error {
	if l.MaxStringLen > 0 && len(s) > l.MaxStringLen {
		return fmt.Errorf("%w: string length %d exceeds maximum %d", errors.ErrInvalidData, len(s), l.MaxStringLen)
	}
	for _, r := range s {
		if r == 0 {
			return fmt.Errorf("%w: string contains null byte", errors.ErrInvalidData)
		}
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return fmt.Errorf("%w: string contains control character 0x%02x", errors.ErrInvalidData, r)
		}
	}
	return nil
}
