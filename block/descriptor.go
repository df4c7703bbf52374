package block

import (
	"context"
	"fmt"
	"html/template"
	"regexp"

	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/schema"
)

// Strategy selects when a kind's renderer runs.
type Strategy string

// Rendering strategies
const (
	StrategyEager    Strategy = "eager"
	StrategyDeferred Strategy = "deferred"
)

// Source tells built-in kinds from administrator supplied ones.
type Source string

// Source categories
const (
	SourceBuiltIn Source = "built-in"
	SourceCustom  Source = "custom"
)

// LayoutHint sizes the interim placeholder of a deferred kind.
type LayoutHint struct {
	MinHeight   int    `json:"minHeight,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// Input is what a renderer receives: validated configuration merged over the
// kind's defaults. For kinds that support children, Config["children"] holds
// the pre-rendered child markup as template.HTML.
type Input struct {
	Tenant     string
	Kind       string
	InstanceID string
	Config     map[string]any
}

// Renderer turns validated configuration into markup.
type Renderer interface {
	Render(ctx context.Context, in Input) (template.HTML, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, in Input) (template.HTML, error)

// Render calls f
func (f RendererFunc) Render(ctx context.Context, in Input) (template.HTML, error) {
	return f(ctx, in)
}

// Descriptor is everything the dispatcher needs to know about a kind.
// A registered descriptor is immutable; replace it by registering a new one.
type Descriptor struct {
	Kind             string
	Description      string
	Schema           schema.ConfigSchema
	Strategy         Strategy
	Source           Source
	Renderer         Renderer
	Layout           LayoutHint
	FeatureFlag      string
	Version          int
	SupportsChildren bool
}

var kindNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Validate checks the descriptor is complete enough to publish.
func (d *Descriptor) Validate() error {
	if d == nil {
		return errors.WrapInvalid(errors.ErrMalformedKind, "Descriptor", "Validate", "nil descriptor")
	}
	if !kindNamePattern.MatchString(d.Kind) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: invalid kind name %q", errors.ErrMalformedKind, d.Kind),
			"Descriptor", "Validate", "kind name")
	}
	if d.Renderer == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: kind %q has no renderer", errors.ErrMalformedKind, d.Kind),
			"Descriptor", "Validate", "renderer")
	}
	switch d.Strategy {
	case StrategyEager, StrategyDeferred:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: kind %q has unknown strategy %q", errors.ErrMalformedKind, d.Kind, d.Strategy),
			"Descriptor", "Validate", "strategy")
	}
	switch d.Source {
	case SourceBuiltIn, SourceCustom:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: kind %q has unknown source %q", errors.ErrMalformedKind, d.Kind, d.Source),
			"Descriptor", "Validate", "source")
	}
	if d.Layout.MinHeight < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: kind %q has negative min height", errors.ErrMalformedKind, d.Kind),
			"Descriptor", "Validate", "layout hint")
	}
	if err := schema.CheckSchema(d.Schema); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: kind %q: %v", errors.ErrMalformedKind, d.Kind, err),
			"Descriptor", "Validate", "schema")
	}
	return nil
}

// Clone returns a deep copy. The renderer is shared.
func (d *Descriptor) Clone() *Descriptor {
	out := *d
	out.Schema = d.Schema.Clone()
	return &out
}

// EditableSchema returns the fields exposed for non-technical editing
func (d *Descriptor) EditableSchema() schema.ConfigSchema {
	return d.Schema.Editable()
}

// IsBuiltIn reports whether the kind ships with the system
func (d *Descriptor) IsBuiltIn() bool {
	return d.Source == SourceBuiltIn
}

// Resolution is the result of a registry lookup. Found is false for kinds
// that are not registered.
type Resolution struct {
	Descriptor *Descriptor
	Found      bool
}
