package admission

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"html/template"
	"log/slog"
	"regexp"
	"strings"
	"text/template/parse"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/metric"
	"github.com/c360/semblocks/schema"
)

const (
	// DefaultMaxSourceBytes bounds submitted component source.
	DefaultMaxSourceBytes = 64 << 10

	maxNameLength  = 64
	maxOutputBytes = 256 << 10

	// topLevelName is the parse name of the submission as a whole. It cannot
	// collide with a component name because those start with a capital.
	topLevelName = "_source"
)

var namePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

// reservedNames are kinds the page model and dispatcher use themselves.
var reservedNames = map[string]struct{}{
	"Fragment":    {},
	"Placeholder": {},
	"Children":    {},
	"Page":        {},
}

// KindLookup reports currently registered kinds. *block.Registry satisfies it.
type KindLookup interface {
	Resolve(kind string) block.Resolution
}

// Submission is an administrator's component: a name and its template source.
type Submission struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// Result is the outcome of one admission.
type Result struct {
	Name     string       `json:"name"`
	Valid    bool         `json:"valid"`
	Errors   []Diagnostic `json:"errors,omitempty"`
	Warnings []Diagnostic `json:"warnings,omitempty"`

	// Schema holds every field the template reads. EditableSchema is the
	// subset an editor may change.
	Schema           schema.ConfigSchema `json:"schema"`
	EditableSchema   schema.ConfigSchema `json:"editableSchema"`
	SupportsChildren bool                `json:"supportsChildren"`

	template *template.Template
	export   string
	policy   *bluemonday.Policy
}

func (r *Result) addError(code string, line int, format string, args ...any) {
	r.Errors = append(r.Errors, Diagnostic{Code: code, Line: line, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) addWarning(code string, line int, format string, args ...any) {
	r.Warnings = append(r.Warnings, Diagnostic{Code: code, Line: line, Message: fmt.Sprintf(format, args...)})
}

// Descriptor builds the custom block descriptor for a valid result.
func (r Result) Descriptor() (*block.Descriptor, error) {
	if !r.Valid || r.template == nil {
		return nil, errors.WrapInvalid(errors.ErrComponentRejected, "Result", "Descriptor",
			fmt.Sprintf("descriptor for %q", r.Name))
	}
	renderer := &componentRenderer{
		name:   r.Name,
		export: r.export,
		tmpl:   r.template,
		schema: r.Schema.Clone(),
		policy: r.policy,
	}
	return &block.Descriptor{
		Kind:             r.Name,
		Description:      "Custom component",
		Schema:           r.Schema.Clone(),
		Strategy:         block.StrategyDeferred,
		Source:           block.SourceCustom,
		Renderer:         renderer,
		SupportsChildren: r.SupportsChildren,
	}, nil
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithMaxSourceBytes overrides DefaultMaxSourceBytes. Values below 1 are ignored.
func WithMaxSourceBytes(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxSourceBytes = n
		}
	}
}

// WithLogger sets the pipeline logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPolicy sets the sanitizer applied to rendered component markup.
func WithPolicy(policy *bluemonday.Policy) Option {
	return func(p *Pipeline) {
		if policy != nil {
			p.policy = policy
		}
	}
}

// WithMetrics exports admission counters and latency.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Pipeline) {
		if registry == nil {
			return
		}
		m, err := newAdmissionMetrics(registry)
		if err != nil {
			p.logger.Warn("admission metrics not registered", "error", err)
			return
		}
		p.metrics = m
	}
}

// Pipeline admits component submissions. It is safe for concurrent use.
type Pipeline struct {
	kinds          KindLookup
	maxSourceBytes int
	policy         *bluemonday.Policy
	logger         *slog.Logger
	metrics        *admissionMetrics
}

// NewPipeline creates a pipeline. kinds may be nil, in which case only the
// fixed reserved names are refused.
func NewPipeline(kinds KindLookup, opts ...Option) *Pipeline {
	p := &Pipeline{
		kinds:          kinds,
		maxSourceBytes: DefaultMaxSourceBytes,
		policy:         DefaultPolicy(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultPolicy is the sanitizer for component output: user generated
// content plus class attributes.
func DefaultPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Globally()
	return policy
}

// Admit checks a submission. It never registers anything and never returns
// an error: every problem is reported as a diagnostic. A cancelled context
// yields an invalid result with a CodeCanceled error.
func (p *Pipeline) Admit(ctx context.Context, name, source string) Result {
	started := time.Now()
	res := Result{Name: name, policy: p.policy}
	p.admit(ctx, &res, source)
	res.Valid = len(res.Errors) == 0
	if !res.Valid {
		res.template = nil
	}
	p.metrics.record(res, started)
	p.logger.Debug("component admission",
		"name", name, "valid", res.Valid, "errors", len(res.Errors), "warnings", len(res.Warnings))
	return res
}

// AdmitSubmission is Admit for a Submission value.
func (p *Pipeline) AdmitSubmission(ctx context.Context, s Submission) Result {
	return p.Admit(ctx, s.Name, s.Source)
}

func (p *Pipeline) admit(ctx context.Context, res *Result, source string) {
	p.checkName(res)

	if strings.TrimSpace(source) == "" {
		res.addError(CodeSourceEmpty, 0, "source is empty")
		return
	}
	if len(source) > p.maxSourceBytes {
		res.addError(CodeSourceTooLarge, 0, "source is %d bytes, limit is %d", len(source), p.maxSourceBytes)
		return
	}
	if canceled(ctx, res) {
		return
	}

	trees, err := parse.Parse(topLevelName, source, "", "", parseFuncs())
	if err != nil {
		res.addError(CodeSyntax, syntaxLine(err), "%s", syntaxMessage(err))
		return
	}

	a := newAnalysis(source, trees)
	res.export = a.check(res, res.Name)
	if canceled(ctx, res) {
		return
	}

	ext := a.extract(res.export)
	res.Schema = ext.schema
	res.EditableSchema = ext.schema.Editable()
	res.SupportsChildren = ext.children
	for _, w := range ext.warnings {
		res.addWarning(CodeExtractionIncomplete, w.Line, "%s", w.Message)
	}

	if len(res.Errors) > 0 || canceled(ctx, res) {
		return
	}

	tmpl, err := template.New(topLevelName).Funcs(componentFuncs).Parse(source)
	if err != nil {
		res.addError(CodeSyntax, syntaxLine(err), "%s", syntaxMessage(err))
		return
	}
	p.trialRender(res, tmpl)
	if len(res.Errors) == 0 {
		res.template = tmpl
	}
}

func (p *Pipeline) checkName(res *Result) {
	name := res.Name
	switch {
	case len(name) > maxNameLength:
		res.addError(CodeNameFormat, 0, "name is longer than %d characters", maxNameLength)
		return
	case !namePattern.MatchString(name):
		res.addError(CodeNameFormat, 0,
			"name %q must start with a capital letter and contain only letters and digits", name)
		return
	}
	if _, ok := reservedNames[name]; ok {
		res.addError(CodeNameReserved, 0, "name %q is reserved", name)
		return
	}
	if p.kinds == nil {
		return
	}
	if r := p.kinds.Resolve(name); r.Found && r.Descriptor.IsBuiltIn() {
		res.addError(CodeNameReserved, 0, "name %q is a built-in block kind", name)
	}
}

// trialRender executes the component once over its extracted defaults. The
// html/template escaper runs on first execution, so unsafe contexts surface
// here.
func (p *Pipeline) trialRender(res *Result, tmpl *template.Template) {
	data := templateData(schema.MergeDefaults(nil, res.Schema), res.Schema)
	var buf bytes.Buffer
	err := tmpl.ExecuteTemplate(&limitedWriter{w: &buf, remaining: maxOutputBytes}, res.export, data)
	if err == nil {
		return
	}
	var escapeErr *template.Error
	if stderrors.As(err, &escapeErr) {
		res.addError(CodeUnsafeContext, escapeErr.Line, "%s", escapeErr.Description)
		return
	}
	res.addWarning(CodeTrialRender, 0, "rendering with default values failed: %v", err)
}

func canceled(ctx context.Context, res *Result) bool {
	if err := ctx.Err(); err != nil {
		res.addError(CodeCanceled, 0, "admission canceled: %v", err)
		return true
	}
	return false
}

var lineInError = regexp.MustCompile(`^template: [^:]*:(\d+):`)

// syntaxLine pulls the line number out of a template parse error.
func syntaxLine(err error) int {
	m := lineInError.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	line := 0
	fmt.Sscanf(m[1], "%d", &line)
	return line
}

func syntaxMessage(err error) string {
	msg := err.Error()
	if loc := lineInError.FindStringIndex(msg); loc != nil {
		msg = strings.TrimSpace(msg[loc[1]:])
	}
	return msg
}

// limitedWriter fails once more than remaining bytes have been written,
// which aborts template execution.
type limitedWriter struct {
	w         *bytes.Buffer
	remaining int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if len(p) > l.remaining {
		return 0, errors.WrapInvalid(errors.ErrResourceExhausted, "component", "Render",
			fmt.Sprintf("output limit of %d bytes", maxOutputBytes))
	}
	l.remaining -= len(p)
	return l.w.Write(p)
}
