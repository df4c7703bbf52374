package admission

import (
	"context"
	"html/template"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/metric"
	"github.com/c360/semblocks/schema"
)

const cardSource = `{{define "Card"}}<div class="card"><h2>{{default "Untitled" .title}}</h2>` +
	`{{if .featured}}<span class="badge">Featured</span>{{end}}` +
	`{{range .tags}}<em>{{.}}</em>{{end}}{{.children}}</div>{{end}}`

type fakeKinds map[string]block.Source

func (f fakeKinds) Resolve(kind string) block.Resolution {
	source, ok := f[kind]
	if !ok {
		return block.Resolution{}
	}
	return block.Resolution{Found: true, Descriptor: &block.Descriptor{Kind: kind, Source: source}}
}

func codes(diags []Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func TestAdmit_ValidComponent(t *testing.T) {
	p := NewPipeline(fakeKinds{"Hero": block.SourceBuiltIn})
	res := p.Admit(context.Background(), "Card", cardSource)

	require.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Empty(t, res.Errors)
	assert.True(t, res.SupportsChildren)

	props := res.Schema.Properties
	require.Len(t, props, 4)
	assert.Equal(t, schema.TypeString, props["title"].Type)
	assert.Equal(t, "Untitled", props["title"].Default)
	assert.Equal(t, schema.TypeBool, props["featured"].Type)
	assert.Equal(t, false, props["featured"].Default)
	assert.Equal(t, schema.TypeArray, props["tags"].Type)
	assert.Equal(t, schema.TypeArray, props["children"].Type)
	assert.False(t, props["children"].Editable)

	assert.Len(t, res.EditableSchema.Properties, 3)
	assert.NotContains(t, res.EditableSchema.Properties, "children")
}

func TestAdmit_Descriptor(t *testing.T) {
	res := NewPipeline(nil).Admit(context.Background(), "Card", cardSource)
	require.True(t, res.Valid)

	desc, err := res.Descriptor()
	require.NoError(t, err)
	require.NoError(t, desc.Validate())
	assert.Equal(t, "Card", desc.Kind)
	assert.Equal(t, block.StrategyDeferred, desc.Strategy)
	assert.Equal(t, block.SourceCustom, desc.Source)
	assert.True(t, desc.SupportsChildren)

	html, err := desc.Renderer.Render(context.Background(), block.Input{
		Kind: "Card",
		Config: map[string]any{
			"title":    "Hi",
			"tags":     []any{"a"},
			"children": template.HTML("<p>kid</p>"),
		},
	})
	require.NoError(t, err)
	out := string(html)
	assert.Contains(t, out, `<div class="card">`)
	assert.Contains(t, out, "<h2>Hi</h2>")
	assert.Contains(t, out, "<em>a</em>")
	assert.Contains(t, out, "<p>kid</p>")
	assert.NotContains(t, out, "Featured")
}

func TestDescriptor_RendersAbsentFieldsEmpty(t *testing.T) {
	src := `{{define "Note"}}<p>{{.body}}</p>{{end}}`
	res := NewPipeline(nil).Admit(context.Background(), "Note", src)
	require.True(t, res.Valid)
	desc, err := res.Descriptor()
	require.NoError(t, err)

	html, err := desc.Renderer.Render(context.Background(), block.Input{Kind: "Note"})
	require.NoError(t, err)
	assert.Equal(t, "<p></p>", string(html))
}

func TestDescriptor_TopLevelExport(t *testing.T) {
	res := NewPipeline(nil).Admit(context.Background(), "Card", `<div class="card">{{.title}}</div>`)
	require.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Contains(t, res.Schema.Properties, "title")
	assert.NotContains(t, codes(res.Warnings), CodeOutsideDefine)

	desc, err := res.Descriptor()
	require.NoError(t, err)
	html, err := desc.Renderer.Render(context.Background(), block.Input{
		Kind:   "Card",
		Config: map[string]any{"title": "Hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, `<div class="card">Hello</div>`, string(html))
}

func TestDescriptor_SanitizesDisallowedMarkup(t *testing.T) {
	src := `{{define "Card"}}<p>{{.title}}</p><script>track()</script>` +
		`<button onclick="boom()">go</button>{{end}}`
	res := NewPipeline(nil).Admit(context.Background(), "Card", src)
	require.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Contains(t, codes(res.Warnings), CodeDisallowedConstruct)

	desc, err := res.Descriptor()
	require.NoError(t, err)
	html, err := desc.Renderer.Render(context.Background(), block.Input{
		Kind:   "Card",
		Config: map[string]any{"title": "Hi"},
	})
	require.NoError(t, err)
	out := string(html)
	assert.Contains(t, out, "<p>Hi</p>")
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "track()")
	assert.NotContains(t, out, "onclick")
}

func TestDescriptor_InvalidResult(t *testing.T) {
	res := NewPipeline(nil).Admit(context.Background(), "card", cardSource)
	require.False(t, res.Valid)

	_, err := res.Descriptor()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrComponentRejected)
	assert.True(t, errors.IsInvalid(err))
}

func TestAdmit_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		source string
		code   string
		line   int
	}{
		{
			name:   "lowercase name",
			kind:   "card",
			source: `{{define "card"}}x{{end}}`,
			code:   CodeNameFormat,
		},
		{
			name:   "name with punctuation",
			kind:   "My-Card",
			source: `{{define "My-Card"}}x{{end}}`,
			code:   CodeNameFormat,
		},
		{
			name:   "name too long",
			kind:   "C" + strings.Repeat("a", 64),
			source: `x`,
			code:   CodeNameFormat,
		},
		{
			name:   "reserved word",
			kind:   "Fragment",
			source: `{{define "Fragment"}}x{{end}}`,
			code:   CodeNameReserved,
		},
		{
			name:   "built-in collision",
			kind:   "Hero",
			source: `{{define "Hero"}}x{{end}}`,
			code:   CodeNameReserved,
		},
		{
			name:   "empty source",
			kind:   "Card",
			source: "  \n ",
			code:   CodeSourceEmpty,
		},
		{
			name:   "syntax error",
			kind:   "Card",
			source: `{{define "Card"}}{{if .x}}open{{end}}`,
			code:   CodeSyntax,
		},
		{
			name:   "call is not available",
			kind:   "Card",
			source: "{{define \"Card\"}}\n{{call .fn}}{{end}}",
			code:   CodeSyntax,
			line:   2,
		},
		{
			name:   "undefined template reference",
			kind:   "Card",
			source: "{{define \"Card\"}}\n\n{{template \"Nope\" .}}{{end}}",
			code:   CodeUndefinedTemplate,
			line:   3,
		},
		{
			name:   "unterminated attribute",
			kind:   "Card",
			source: `{{define "Card"}}<a href="{{.url}}{{end}}`,
			code:   CodeUnsafeContext,
		},
	}

	p := NewPipeline(fakeKinds{"Hero": block.SourceBuiltIn})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Admit(context.Background(), tt.kind, tt.source)
			assert.False(t, res.Valid)
			require.Contains(t, codes(res.Errors), tt.code, "errors: %v", res.Errors)
			if tt.line > 0 {
				for _, d := range res.Errors {
					if d.Code == tt.code {
						assert.Equal(t, tt.line, d.Line)
					}
				}
			}
		})
	}
}

func TestAdmit_CustomNameMayReplaceCustom(t *testing.T) {
	p := NewPipeline(fakeKinds{"Card": block.SourceCustom})
	res := p.Admit(context.Background(), "Card", cardSource)
	assert.True(t, res.Valid)
}

func TestAdmit_SourceTooLarge(t *testing.T) {
	p := NewPipeline(nil, WithMaxSourceBytes(16))
	res := p.Admit(context.Background(), "Card", cardSource)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{CodeSourceTooLarge}, codes(res.Errors))
}

func TestAdmit_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewPipeline(nil).Admit(ctx, "Card", cardSource)
	assert.False(t, res.Valid)
	assert.Contains(t, codes(res.Errors), CodeCanceled)
}

func TestAdmit_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		source string
		code   string
		line   int
	}{
		{
			name:   "missing export",
			source: `<div class="card">{{.title}}</div>`,
			code:   CodeMissingExport,
		},
		{
			name:   "script element",
			source: `{{define "Card"}}<p>{{.title}}</p><script>track()</script>{{end}}`,
			code:   CodeDisallowedConstruct,
			line:   1,
		},
		{
			name:   "event handler",
			source: "{{define \"Card\"}}\n<button onclick=\"boom()\">{{.label}}</button>{{end}}",
			code:   CodeDisallowedConstruct,
			line:   2,
		},
		{
			name:   "javascript url",
			source: `{{define "Card"}}<a href="javascript:go()">x</a>{{end}}`,
			code:   CodeDisallowedConstruct,
		},
		{
			name:   "unused template",
			source: `{{define "Card"}}x{{end}}{{define "spare"}}y{{end}}`,
			code:   CodeUnusedTemplate,
		},
		{
			name:   "unused variable",
			source: `{{define "Card"}}{{$t := .title}}x{{end}}`,
			code:   CodeUnusedVariable,
		},
		{
			name:   "empty body",
			source: `{{define "Card"}}{{end}}`,
			code:   CodeEmptyBody,
		},
		{
			name:   "content outside define",
			source: `stray text {{define "Card"}}x{{end}}`,
			code:   CodeOutsideDefine,
		},
		{
			name:   "failing trial render",
			source: `{{define "Card"}}{{index .items 5}}{{end}}`,
			code:   CodeTrialRender,
		},
	}

	p := NewPipeline(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Admit(context.Background(), "Card", tt.source)
			assert.True(t, res.Valid, "errors: %v", res.Errors)
			require.Contains(t, codes(res.Warnings), tt.code, "warnings: %v", res.Warnings)
			if tt.line > 0 {
				for _, d := range res.Warnings {
					if d.Code == tt.code {
						assert.Equal(t, tt.line, d.Line)
					}
				}
			}
		})
	}
}

func TestAdmit_Extraction(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   map[string]schema.PropertySchema
	}{
		{
			name:   "piped default",
			source: `{{define "Card"}}{{.heading | default "Hello"}}{{end}}`,
			want: map[string]schema.PropertySchema{
				"heading": {Type: schema.TypeString, Default: "Hello"},
			},
		},
		{
			name:   "integer default",
			source: `{{define "Card"}}{{default 3 .count}}{{end}}`,
			want: map[string]schema.PropertySchema{
				"count": {Type: schema.TypeInt, Default: 3},
			},
		},
		{
			name:   "logical condition",
			source: `{{define "Card"}}{{if and .a (not .b)}}x{{end}}{{end}}`,
			want: map[string]schema.PropertySchema{
				"a": {Type: schema.TypeBool, Default: false},
				"b": {Type: schema.TypeBool, Default: false},
			},
		},
		{
			name:   "comparison operand is text",
			source: `{{define "Card"}}{{if eq .layout "wide"}}x{{end}}{{end}}`,
			want: map[string]schema.PropertySchema{
				"layout": {Type: schema.TypeString},
			},
		},
		{
			name:   "with rebinds dot",
			source: `{{define "Card"}}{{with .subtitle}}<p>{{.text}}</p>{{end}}{{end}}`,
			want: map[string]schema.PropertySchema{
				"subtitle": {Type: schema.TypeString},
			},
		},
		{
			name:   "dollar reaches the root",
			source: `{{define "Card"}}{{range .items}}{{$.label}}{{end}}{{end}}`,
			want: map[string]schema.PropertySchema{
				"items": {Type: schema.TypeArray},
				"label": {Type: schema.TypeString},
			},
		},
		{
			name:   "called template sees the configuration",
			source: `{{define "Card"}}{{template "inner" .}}{{end}}{{define "inner"}}{{.title}}{{end}}`,
			want: map[string]schema.PropertySchema{
				"title": {Type: schema.TypeString},
			},
		},
		{
			name:   "nested field",
			source: `{{define "Card"}}{{with .cta}}{{end}}{{$.cta.label}}{{end}}`,
			want: map[string]schema.PropertySchema{
				"cta": {Type: schema.TypeObject},
			},
		},
	}

	p := NewPipeline(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Admit(context.Background(), "Card", tt.source)
			require.True(t, res.Valid, "errors: %v", res.Errors)
			require.Len(t, res.Schema.Properties, len(tt.want))
			for name, want := range tt.want {
				got, ok := res.Schema.Properties[name]
				require.True(t, ok, "field %s missing", name)
				assert.Equal(t, want.Type, got.Type, name)
				assert.Equal(t, want.Default, got.Default, name)
			}
		})
	}
}

func TestAdmit_NestedFieldProperties(t *testing.T) {
	src := `{{define "Card"}}{{with .cta}}<a href="{{.href}}">{{.label}}</a>{{end}}{{$.cta.label}}{{end}}`
	res := NewPipeline(nil).Admit(context.Background(), "Card", src)
	require.True(t, res.Valid, "errors: %v", res.Errors)

	cta := res.Schema.Properties["cta"]
	assert.Equal(t, schema.TypeObject, cta.Type)
	assert.Contains(t, cta.Properties, "label")
}

func TestAdmit_Metrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	p := NewPipeline(nil, WithMetrics(reg))
	require.NotNil(t, p.metrics)

	p.Admit(context.Background(), "Card", cardSource)
	p.Admit(context.Background(), "card", cardSource)
	p.Admit(context.Background(), "card", cardSource)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.admissions.WithLabelValues("valid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.admissions.WithLabelValues("invalid")))

	again := NewPipeline(nil, WithMetrics(reg))
	assert.Nil(t, again.metrics)
}

func TestDefaultFunc(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"nil", nil, "d"},
		{"empty string", "", "d"},
		{"empty slice", []any{}, "d"},
		{"text", "x", "x"},
		{"false is kept", false, false},
		{"zero is kept", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultFunc("d", tt.value))
		})
	}
}
