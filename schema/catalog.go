package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/c360/semblocks/errors"
)

//go:embed builtin.hcl
var builtinHCL []byte

// Rendering strategies as written in catalog documents
const (
	StrategyEager    = "eager"
	StrategyDeferred = "deferred"
)

// KindSpec is the catalog entry of one block kind: its schema plus the
// rendering metadata authored next to it.
type KindSpec struct {
	Name             string
	Description      string
	Strategy         string
	Feature          string
	MinHeight        int
	AspectRatio      string
	SupportsChildren bool
	Schema           ConfigSchema
}

func (k KindSpec) clone() KindSpec {
	out := k
	out.Schema = k.Schema.Clone()
	return out
}

// Catalog is an immutable set of kind schemas.
type Catalog struct {
	kinds map[string]KindSpec
}

// NewCatalog builds a catalog from specs. Every declared default must satisfy
// its own field schema.
func NewCatalog(specs ...KindSpec) (*Catalog, error) {
	c := &Catalog{kinds: make(map[string]KindSpec, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Catalog", "NewCatalog", "kind without name")
		}
		if _, dup := c.kinds[spec.Name]; dup {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: duplicate kind %q", errors.ErrInvalidData, spec.Name), "Catalog", "NewCatalog", "add kind")
		}
		switch spec.Strategy {
		case "":
			spec.Strategy = StrategyEager
		case StrategyEager, StrategyDeferred:
		default:
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: kind %q has unknown strategy %q", errors.ErrInvalidData, spec.Name, spec.Strategy),
				"Catalog", "NewCatalog", "check strategy")
		}
		if err := CheckSchema(spec.Schema); err != nil {
			return nil, errors.Wrap(err, "Catalog", "NewCatalog", "check kind "+spec.Name)
		}
		c.kinds[spec.Name] = spec.clone()
	}
	return c, nil
}

// CheckSchema verifies that every property has a known type and that each
// declared default satisfies its own property schema.
func CheckSchema(s ConfigSchema) error {
	for _, name := range sortedKeys(s.Properties) {
		if err := checkProperty(name, s.Properties[name]); err != nil {
			return errors.WrapInvalid(err, "schema", "CheckSchema", "property "+name)
		}
	}
	return nil
}

func checkProperty(path string, p PropertySchema) error {
	if !IsKnownType(p.Type) {
		return fmt.Errorf("%w: field %q has unknown type %q", errors.ErrInvalidData, path, p.Type)
	}
	if p.Type == TypeEnum && len(p.Enum) == 0 {
		return fmt.Errorf("%w: enum field %q declares no values", errors.ErrInvalidData, path)
	}
	if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
		return fmt.Errorf("%w: field %q minimum exceeds maximum", errors.ErrInvalidData, path)
	}
	if p.Items != nil {
		if err := checkProperty(path+"[]", *p.Items); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(p.Properties) {
		if err := checkProperty(joinPath(path, name), p.Properties[name]); err != nil {
			return err
		}
	}
	if p.Default != nil {
		if errs := validateValue(path, p.Default, p); len(errs) > 0 {
			return fmt.Errorf("%w: default of %q: %s", errors.ErrInvalidData, path, errs[0].Message)
		}
	}
	return nil
}

// Describe returns a copy of the schema for kind.
func (c *Catalog) Describe(kind string) (ConfigSchema, error) {
	spec, ok := c.kinds[kind]
	if !ok {
		return ConfigSchema{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrSchemaNotFound, kind), "Catalog", "Describe", "lookup kind")
	}
	return spec.Schema.Clone(), nil
}

// Kind returns a copy of the full catalog entry for kind.
func (c *Catalog) Kind(kind string) (KindSpec, error) {
	spec, ok := c.kinds[kind]
	if !ok {
		return KindSpec{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrSchemaNotFound, kind), "Catalog", "Kind", "lookup kind")
	}
	return spec.clone(), nil
}

// Kinds returns the kind names in sorted order.
func (c *Catalog) Kinds() []string {
	return sortedKeys(c.kinds)
}

// Features returns the distinct feature flags named by catalog kinds.
func (c *Catalog) Features() []string {
	seen := make(map[string]bool)
	var out []string
	for _, spec := range c.kinds {
		if spec.Feature != "" && !seen[spec.Feature] {
			seen[spec.Feature] = true
			out = append(out, spec.Feature)
		}
	}
	sort.Strings(out)
	return out
}

// Builtin parses the embedded catalog of built-in kinds.
func Builtin() (*Catalog, error) {
	return ParseCatalog("builtin.hcl", builtinHCL)
}

type catalogFile struct {
	Kinds []kindBlock `hcl:"kind,block"`
}

type kindBlock struct {
	Name             string       `hcl:"name,label"`
	Description      string       `hcl:"description,optional"`
	Strategy         string       `hcl:"strategy,optional"`
	Feature          string       `hcl:"feature,optional"`
	MinHeight        int          `hcl:"min_height,optional"`
	AspectRatio      string       `hcl:"aspect_ratio,optional"`
	SupportsChildren bool         `hcl:"supports_children,optional"`
	Fields           []fieldBlock `hcl:"field,block"`
}

type fieldBlock struct {
	Name        string         `hcl:"name,label"`
	Type        string         `hcl:"type"`
	Description string         `hcl:"description,optional"`
	Required    bool           `hcl:"required,optional"`
	Editable    bool           `hcl:"editable,optional"`
	Category    string         `hcl:"category,optional"`
	Enum        []string       `hcl:"enum,optional"`
	Minimum     *float64       `hcl:"minimum,optional"`
	Maximum     *float64       `hcl:"maximum,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
	Items       *itemsBlock    `hcl:"items,block"`
	Fields      []fieldBlock   `hcl:"field,block"`
}

type itemsBlock struct {
	Type   string       `hcl:"type"`
	Enum   []string     `hcl:"enum,optional"`
	Fields []fieldBlock `hcl:"field,block"`
}

// ParseCatalog decodes an HCL catalog document. filename must end in .hcl and
// is only used in diagnostics.
func ParseCatalog(filename string, src []byte) (*Catalog, error) {
	var file catalogFile
	if err := hclsimple.Decode(filename, src, nil, &file); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Catalog", "ParseCatalog", "decode "+filename)
	}

	specs := make([]KindSpec, 0, len(file.Kinds))
	for _, kb := range file.Kinds {
		props, err := convertFields(kb.Fields)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Catalog", "ParseCatalog", "kind "+kb.Name)
		}
		specs = append(specs, KindSpec{
			Name:             kb.Name,
			Description:      kb.Description,
			Strategy:         kb.Strategy,
			Feature:          kb.Feature,
			MinHeight:        kb.MinHeight,
			AspectRatio:      kb.AspectRatio,
			SupportsChildren: kb.SupportsChildren,
			Schema:           ConfigSchema{Properties: props},
		})
	}
	return NewCatalog(specs...)
}

func convertFields(fields []fieldBlock) (map[string]PropertySchema, error) {
	props := make(map[string]PropertySchema, len(fields))
	for _, f := range fields {
		if _, dup := props[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", errors.ErrInvalidData, f.Name)
		}
		p := PropertySchema{
			Name:        f.Name,
			Type:        f.Type,
			Description: f.Description,
			Required:    f.Required,
			Editable:    f.Editable,
			Category:    f.Category,
			Enum:        f.Enum,
			Minimum:     f.Minimum,
			Maximum:     f.Maximum,
		}
		if len(f.Fields) > 0 {
			nested, err := convertFields(f.Fields)
			if err != nil {
				return nil, err
			}
			p.Properties = nested
		}
		if f.Items != nil {
			items := PropertySchema{Type: f.Items.Type, Enum: f.Items.Enum}
			if len(f.Items.Fields) > 0 {
				nested, err := convertFields(f.Items.Fields)
				if err != nil {
					return nil, err
				}
				items.Properties = nested
			}
			p.Items = &items
		}
		def, err := defaultValue(f.Default)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if def != nil {
			p.Default = coerceValue(def, p)
		}
		props[f.Name] = p
	}
	return props, nil
}

// defaultValue evaluates a literal default expression into plain Go values
// through its JSON form.
func defaultValue(expr hcl.Expression) (any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: default must be a literal: %s", errors.ErrParsingFailed, diags.Error())
	}
	if val.IsNull() {
		return nil, nil
	}
	raw, err := ctyjson.SimpleJSONValue{Value: val}.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: encode default: %v", errors.ErrParsingFailed, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode default: %v", errors.ErrParsingFailed, err)
	}
	return out, nil
}
