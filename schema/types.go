package schema

import (
	"encoding/json"
	"sort"
)

// Property types
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeInt    = "int"
	TypeBool   = "bool"
	TypeEnum   = "enum"
	TypeArray  = "array"
	TypeObject = "object"
)

// Property categories used by editing surfaces
const (
	CategoryBasic    = "basic"
	CategoryAdvanced = "advanced"
)

// PropertySchema describes one configuration field.
type PropertySchema struct {
	Name        string                    `json:"name,omitempty"`
	Type        string                    `json:"type"`
	Description string                    `json:"description,omitempty"`
	Default     any                       `json:"default,omitempty"`
	Required    bool                      `json:"required,omitempty"`
	Editable    bool                      `json:"editable,omitempty"`
	Enum        []string                  `json:"enum,omitempty"`
	Minimum     *float64                  `json:"minimum,omitempty"`
	Maximum     *float64                  `json:"maximum,omitempty"`
	Items       *PropertySchema           `json:"items,omitempty"`      // element schema for arrays
	Properties  map[string]PropertySchema `json:"properties,omitempty"` // nested fields for objects
	Category    string                    `json:"category,omitempty"`
}

// ConfigSchema is the configuration shape of a block kind.
type ConfigSchema struct {
	Properties map[string]PropertySchema `json:"properties"`
}

// IsKnownType reports whether t is a supported property type
func IsKnownType(t string) bool {
	switch t {
	case TypeString, TypeNumber, TypeInt, TypeBool, TypeEnum, TypeArray, TypeObject:
		return true
	}
	return false
}

// IsComplexType returns true if a property type cannot be edited as a
// single form input.
func IsComplexType(propType string) bool {
	return propType == TypeObject || propType == TypeArray
}

// Clone returns a deep copy of the property.
func (p PropertySchema) Clone() PropertySchema {
	out := p
	out.Default = deepCopy(p.Default)
	if p.Enum != nil {
		out.Enum = append([]string(nil), p.Enum...)
	}
	if p.Minimum != nil {
		v := *p.Minimum
		out.Minimum = &v
	}
	if p.Maximum != nil {
		v := *p.Maximum
		out.Maximum = &v
	}
	if p.Items != nil {
		items := p.Items.Clone()
		out.Items = &items
	}
	if p.Properties != nil {
		out.Properties = make(map[string]PropertySchema, len(p.Properties))
		for k, v := range p.Properties {
			out.Properties[k] = v.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the schema.
func (s ConfigSchema) Clone() ConfigSchema {
	out := ConfigSchema{Properties: make(map[string]PropertySchema, len(s.Properties))}
	for k, v := range s.Properties {
		out.Properties[k] = v.Clone()
	}
	return out
}

// Editable returns the subset of fields exposed for non-technical editing.
func (s ConfigSchema) Editable() ConfigSchema {
	out := ConfigSchema{Properties: make(map[string]PropertySchema)}
	for k, v := range s.Properties {
		if v.Editable {
			out.Properties[k] = v.Clone()
		}
	}
	return out
}

// Required returns the names of required top-level fields in sorted order.
func (s ConfigSchema) Required() []string {
	var names []string
	for name, p := range s.Properties {
		if p.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether the schema declares no fields
func (s ConfigSchema) IsEmpty() bool {
	return len(s.Properties) == 0
}

// JSON encodes the schema with sorted keys.
func (s ConfigSchema) JSON() ([]byte, error) {
	if s.Properties == nil {
		s.Properties = map[string]PropertySchema{}
	}
	return json.Marshal(s)
}

// GetProperties filters schema properties by category. Properties without a
// category count as advanced; an empty category returns every property.
func GetProperties(s ConfigSchema, category string) map[string]PropertySchema {
	filtered := make(map[string]PropertySchema)
	for name, prop := range s.Properties {
		if category == "" || propertyCategory(prop) == category {
			filtered[name] = prop
		}
	}
	return filtered
}

// SortedPropertyNames returns property names in display order: basic fields
// first, then advanced, alphabetical within each group.
func SortedPropertyNames(s ConfigSchema) []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci := propertyCategory(s.Properties[names[i]])
		cj := propertyCategory(s.Properties[names[j]])
		if ci != cj {
			return ci == CategoryBasic
		}
		return names[i] < names[j]
	})
	return names
}

func propertyCategory(p PropertySchema) string {
	if p.Category == "" {
		return CategoryAdvanced
	}
	return p.Category
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
