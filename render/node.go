package render

import (
	"bytes"
	"html/template"

	"github.com/c360/semblocks/block"
)

// Reason says why an instance was replaced by a placeholder.
type Reason string

// Placeholder reasons
const (
	ReasonFeatureDisabled Reason = "feature_disabled"
	ReasonUnregistered    Reason = "unregistered"
	ReasonInvalidConfig   Reason = "invalid_config"
	ReasonRenderFailed    Reason = "render_failed"
)

// State is where a node is in its lifecycle.
type State string

// Node states
const (
	StateRendered    State = "rendered"
	StatePlaceholder State = "placeholder"
	StateDeferred    State = "deferred"
)

// Placeholder describes a substituted instance. Detail is for operators and
// is removed by Node.Public.
type Placeholder struct {
	Reason     Reason   `json:"reason"`
	Kind       string   `json:"kind"`
	InstanceID string   `json:"instanceId"`
	Flag       string   `json:"flag,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

// Node is one position of the render tree.
type Node struct {
	Index       int               `json:"index"`
	InstanceID  string            `json:"instanceId"`
	Kind        string            `json:"kind"`
	Strategy    block.Strategy    `json:"strategy,omitempty"`
	State       State             `json:"state"`
	HTML        template.HTML     `json:"html,omitempty"`
	Placeholder *Placeholder      `json:"placeholder,omitempty"`
	Loading     *block.LayoutHint `json:"loading,omitempty"`
}

// Public returns the node as a site visitor may see it: placeholder
// diagnostics are stripped.
func (n Node) Public() Node {
	if n.Placeholder != nil {
		p := *n.Placeholder
		p.Detail = ""
		p.Fields = nil
		p.Flag = ""
		n.Placeholder = &p
	}
	return n
}

// Markup returns the node's visitor-facing HTML. Placeholders and pending
// deferred nodes render as empty, sized containers.
func (n Node) Markup() template.HTML {
	switch n.State {
	case StateRendered:
		return n.HTML
	case StateDeferred:
		return execute("loading", n.Loading)
	default:
		return execute("placeholder", n.Public().Placeholder)
	}
}

var markup = template.Must(template.New("render").Parse(`
{{- define "placeholder" -}}
<div class="block-placeholder" data-reason="{{.Reason}}" data-instance="{{.InstanceID}}"></div>
{{- end -}}
{{- define "loading" -}}
<div class="block-loading"{{with .}} style="min-height: {{.MinHeight}}px"{{with .AspectRatio}} data-aspect-ratio="{{.}}"{{end}}{{end}}></div>
{{- end -}}`))

func execute(name string, data any) template.HTML {
	var buf bytes.Buffer
	if err := markup.ExecuteTemplate(&buf, name, data); err != nil {
		return ""
	}
	return template.HTML(buf.String())
}

func placeholderNode(index int, kind, instanceID string, p Placeholder) Node {
	p.Kind = kind
	p.InstanceID = instanceID
	return Node{
		Index:       index,
		InstanceID:  instanceID,
		Kind:        kind,
		State:       StatePlaceholder,
		Placeholder: &p,
	}
}
