package blockregistry

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/schema"
)

func builtinCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.Builtin()
	require.NoError(t, err)
	return cat
}

func render(t *testing.T, r block.Renderer, kind string, cfg map[string]any) (template.HTML, error) {
	t.Helper()
	cat := builtinCatalog(t)
	s, err := cat.Describe(kind)
	require.NoError(t, err)

	cfg = schema.Coerce(cfg, s)
	require.Empty(t, schema.ValidateConfig(cfg, s))
	return r.Render(context.Background(), block.Input{
		Tenant:     "acme",
		Kind:       kind,
		InstanceID: "inst-1",
		Config:     schema.MergeDefaults(cfg, s),
	})
}

func TestRegister(t *testing.T) {
	cat := builtinCatalog(t)
	reg := block.NewRegistry()

	require.NoError(t, Register(reg, cat, Options{}))
	reg.Seal()

	assert.Equal(t, cat.Kinds(), reg.Kinds())
	for _, kind := range reg.Kinds() {
		d := reg.Resolve(kind).Descriptor
		assert.True(t, d.IsBuiltIn(), kind)
		assert.Equal(t, 1, d.Version)
	}

	gallery := reg.Resolve("Gallery").Descriptor
	assert.Equal(t, block.StrategyDeferred, gallery.Strategy)
	assert.Equal(t, "gallery", gallery.FeatureFlag)
	assert.Equal(t, block.LayoutHint{MinHeight: 240, AspectRatio: "4:3"}, gallery.Layout)
	assert.True(t, reg.Resolve("Section").Descriptor.SupportsChildren)

	// Seeding twice is refused once sealed.
	assert.Error(t, Register(reg, cat, Options{}))
}

func TestRegister_RequiresDependencies(t *testing.T) {
	err := Register(nil, builtinCatalog(t), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestRegister_CatalogMismatch(t *testing.T) {
	cat, err := schema.NewCatalog(schema.KindSpec{Name: "Mystery"})
	require.NoError(t, err)

	err = Register(block.NewRegistry(), cat, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRenderers(t *testing.T) {
	renderers := Renderers(Options{})

	tests := []struct {
		kind     string
		config   map[string]any
		contains []string
		excludes []string
	}{
		{
			kind:     "Hero",
			config:   map[string]any{"title": "Welcome"},
			contains: []string{`<h1>Welcome</h1>`, `align-center`},
			excludes: []string{`class="cta"`, `subtitle`},
		},
		{
			kind:     "Hero",
			config:   map[string]any{"title": "<b>Hi</b>", "cta_label": "Apply", "cta_href": "/apply"},
			contains: []string{`&lt;b&gt;Hi&lt;/b&gt;`, `<a class="cta" href="/apply">Apply</a>`},
		},
		{
			kind: "CardGrid",
			config: map[string]any{"columns": 2, "cards": []any{
				map[string]any{"title": "One", "href": "/one"},
				map[string]any{"title": "Two", "body": "Second"},
			}},
			contains: []string{`cols-2`, `<a href="/one">One</a>`, `<h3>Two</h3><p>Second</p>`},
		},
		{
			kind:     "Section",
			config:   map[string]any{"heading": "About"},
			contains: []string{`<h2>About</h2>`, `bg-none`},
			excludes: []string{`[]`},
		},
		{
			kind: "Gallery",
			config: map[string]any{"images": []any{
				map[string]any{"src": "/a.jpg", "alt": "A", "caption": "First"},
			}},
			contains: []string{`<img src="/a.jpg" alt="A" loading="lazy">`, `<figcaption>First</figcaption>`},
		},
		{
			kind:     "VideoEmbed",
			config:   map[string]any{"url": "https://www.youtube.com/watch?v=abc123"},
			contains: []string{`https://www.youtube-nocookie.com/embed/abc123`, `title="Video"`},
			excludes: []string{`allow="autoplay"`},
		},
		{
			kind:     "Careers",
			config:   map[string]any{},
			contains: []string{`<h2>Open positions</h2>`, `There are no open positions right now.`},
		},
		{
			kind:     "BlogFeed",
			config:   map[string]any{},
			contains: []string{`<h2>Latest news</h2>`, `No posts yet.`},
		},
		{
			kind:     "ContactForm",
			config:   map[string]any{"recipient": "office@example.edu", "fields": []any{"email", "message"}},
			contains: []string{`action="/forms/contact/inst-1"`, `type="email"`, `<textarea name="message"`, `>Send</button>`},
			excludes: []string{`office@example.edu`, `name="name"`},
		},
		{
			kind:     "Spacer",
			config:   map[string]any{"height": "48"},
			contains: []string{`height: 48px`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			html, err := render(t, renderers[tt.kind], tt.kind, tt.config)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, string(html), want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, string(html), unwanted)
			}
		})
	}
}

func TestSection_RendersChildrenMarkup(t *testing.T) {
	r := Renderers(Options{})["Section"]
	html, err := r.Render(context.Background(), block.Input{Config: map[string]any{
		"heading":    "",
		"background": "muted",
		"children":   template.HTML(`<p>child</p>`),
	}})
	require.NoError(t, err)
	assert.Equal(t, `<section class="block block-section bg-muted"><p>child</p></section>`, string(html))
}

func TestRichText_Sanitizes(t *testing.T) {
	r := Renderers(Options{})["RichText"]
	md := "# Title\n\nSome *emphasis* and a [link](https://example.org).\n\n<script>alert(1)</script>\n\n<a href=\"javascript:alert(1)\">x</a>"

	html, err := render(t, r, "RichText", map[string]any{"markdown": md})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, `<div class="block block-richtext width-narrow">`)
	assert.Contains(t, out, `<h1>Title</h1>`)
	assert.Contains(t, out, `<em>emphasis</em>`)
	assert.Contains(t, out, `https://example.org`)
	assert.NotContains(t, out, `<script`)
	assert.NotContains(t, out, `javascript:`)
}

func TestVideo_RejectsUnsafeURLs(t *testing.T) {
	r := Renderers(Options{})["VideoEmbed"]
	for _, u := range []string{"http://example.org/v.mp4", "javascript:alert(1)", "/relative.mp4"} {
		_, err := render(t, r, "VideoEmbed", map[string]any{"url": u})
		require.Error(t, err, u)
		assert.True(t, errors.IsInvalid(err), u)
	}
}

func TestEmbedURL(t *testing.T) {
	tests := map[string]string{
		"https://youtu.be/xyz":             "https://www.youtube-nocookie.com/embed/xyz",
		"https://vimeo.com/12345":          "https://player.vimeo.com/video/12345",
		"https://cdn.example.org/clip.mp4": "https://cdn.example.org/clip.mp4",
	}
	for in, want := range tests {
		got, err := embedURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFeeds(t *testing.T) {
	var gotTenant, gotFeed, gotFilter string
	source := FeedSourceFunc(func(_ context.Context, tenant, feed, filter string, limit int) ([]FeedEntry, error) {
		gotTenant, gotFeed, gotFilter = tenant, feed, filter
		var out []FeedEntry
		for i := 0; i < limit+3; i++ {
			out = append(out, FeedEntry{Title: fmt.Sprintf("Post %d", i), Href: fmt.Sprintf("/blog/%d", i)})
		}
		return out, nil
	})
	r := Renderers(Options{Feeds: source})["BlogFeed"]

	html, err := render(t, r, "BlogFeed", map[string]any{"limit": 2, "category": "events"})
	require.NoError(t, err)

	assert.Equal(t, "acme", gotTenant)
	assert.Equal(t, FeedBlog, gotFeed)
	assert.Equal(t, "events", gotFilter)
	assert.Equal(t, 2, strings.Count(string(html), "<li>"))
	assert.Contains(t, string(html), `<a href="/blog/0">Post 0</a>`)
}

func TestFeeds_SourceError(t *testing.T) {
	source := FeedSourceFunc(func(context.Context, string, string, string, int) ([]FeedEntry, error) {
		return nil, errors.ErrStorageUnavailable
	})
	r := Renderers(Options{Feeds: source})["Careers"]

	_, err := render(t, r, "Careers", map[string]any{})
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
}
