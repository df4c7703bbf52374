package blockregistry

import (
	"fmt"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/schema"
)

// Options configures built-in renderers
type Options struct {
	// Feeds supplies entries for the Careers and BlogFeed kinds. Without it
	// those kinds render their empty state.
	Feeds FeedSource
	// Policy sanitizes RichText output. Defaults to bluemonday's UGC policy.
	Policy *bluemonday.Policy
	Logger *slog.Logger
}

// Renderers returns the renderer of every built-in kind keyed by kind name.
func Renderers(opts Options) map[string]block.Renderer {
	if opts.Policy == nil {
		opts.Policy = bluemonday.UGCPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return map[string]block.Renderer{
		"Hero":        templateRenderer("Hero"),
		"RichText":    &richTextRenderer{policy: opts.Policy},
		"CardGrid":    templateRenderer("CardGrid"),
		"Section":     templateRenderer("Section"),
		"Gallery":     templateRenderer("Gallery"),
		"VideoEmbed":  block.RendererFunc(renderVideo),
		"Careers":     &feedRenderer{feed: FeedCareers, filterKey: "department", source: opts.Feeds, logger: opts.Logger},
		"BlogFeed":    &feedRenderer{feed: FeedBlog, filterKey: "category", source: opts.Feeds, logger: opts.Logger},
		"ContactForm": block.RendererFunc(renderContactForm),
		"Spacer":      templateRenderer("Spacer"),
	}
}

// Descriptor builds the built-in descriptor for a catalog entry.
func Descriptor(spec schema.KindSpec, renderer block.Renderer) *block.Descriptor {
	return &block.Descriptor{
		Kind:             spec.Name,
		Description:      spec.Description,
		Schema:           spec.Schema,
		Strategy:         block.Strategy(spec.Strategy),
		Source:           block.SourceBuiltIn,
		Renderer:         renderer,
		Layout:           block.LayoutHint{MinHeight: spec.MinHeight, AspectRatio: spec.AspectRatio},
		FeatureFlag:      spec.Feature,
		SupportsChildren: spec.SupportsChildren,
	}
}

// Register adds every catalog kind to reg. Every catalog kind needs a
// renderer and every renderer a catalog entry.
func Register(reg *block.Registry, cat *schema.Catalog, opts Options) error {
	if reg == nil || cat == nil {
		return errors.WrapFatal(errors.ErrNilDependency, "blockregistry", "Register", "dependency check")
	}

	renderers := Renderers(opts)
	kinds := cat.Kinds()
	if len(kinds) != len(renderers) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: catalog has %d kinds, %d renderers available", errors.ErrMalformedKind, len(kinds), len(renderers)),
			"blockregistry", "Register", "catalog check")
	}

	for _, kind := range kinds {
		renderer, ok := renderers[kind]
		if !ok {
			return errors.WrapInvalid(
				fmt.Errorf("%w: no renderer for kind %q", errors.ErrMalformedKind, kind),
				"blockregistry", "Register", "renderer lookup")
		}
		spec, err := cat.Kind(kind)
		if err != nil {
			return errors.Wrap(err, "blockregistry", "Register", "catalog lookup")
		}
		if err := reg.Register(Descriptor(spec, renderer)); err != nil {
			return errors.Wrap(err, "blockregistry", "Register", "register "+kind)
		}
	}
	return nil
}
