package blockregistry

import (
	"bytes"
	"context"
	"html/template"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/errors"
)

var templates = template.Must(template.New("builtin").Parse(`
{{define "Hero"}}<section class="block block-hero align-{{.alignment}}">
{{- with .background_image}}<img class="hero-background" src="{{.}}" alt="">{{end -}}
<h1>{{.title}}</h1>
{{- with .subtitle}}<p class="subtitle">{{.}}</p>{{end -}}
{{- if and .cta_label .cta_href}}<a class="cta" href="{{.cta_href}}">{{.cta_label}}</a>{{end -}}
</section>{{end}}

{{define "RichText"}}<div class="block block-richtext width-{{.width}}">{{.body}}</div>{{end}}

{{define "CardGrid"}}<section class="block block-cardgrid cols-{{.columns}}">
{{- with .heading}}<h2>{{.}}</h2>{{end -}}
<ul>{{range .cards}}<li class="card">
{{- with .image}}<img src="{{.}}" alt="">{{end -}}
{{- if .href}}<a href="{{.href}}">{{.title}}</a>{{else}}<h3>{{.title}}</h3>{{end -}}
{{- with .body}}<p>{{.}}</p>{{end -}}
</li>{{end}}</ul></section>{{end}}

{{define "Section"}}<section class="block block-section bg-{{.background}}">
{{- with .heading}}<h2>{{.}}</h2>{{end -}}
{{.children}}</section>{{end}}

{{define "Gallery"}}<section class="block block-gallery layout-{{.layout}}"><ul>
{{- range .images}}<li><figure><img src="{{.src}}" alt="{{with .alt}}{{.}}{{end}}" loading="lazy">
{{- with .caption}}<figcaption>{{.}}</figcaption>{{end -}}
</figure></li>{{end -}}
</ul></section>{{end}}

{{define "VideoEmbed"}}<section class="block block-video"><iframe src="{{.src}}" title="{{.title}}" loading="lazy" allowfullscreen
{{- if .autoplay}} allow="autoplay"{{end}}></iframe></section>{{end}}

{{define "Feed"}}<section class="block block-{{.Class}}"><h2>{{.Heading}}</h2>
{{- if .Entries}}<ul>{{range .Entries}}<li><a href="{{.Href}}">{{.Title}}</a>
{{- with .Summary}}<p>{{.}}</p>{{end -}}
</li>{{end}}</ul>{{else}}<p class="empty">{{.Empty}}</p>{{end -}}
</section>{{end}}

{{define "ContactForm"}}<section class="block block-contact"><h2>{{.Heading}}</h2>
<form method="post" action="{{.Action}}">
{{- range .Fields}}<label>{{.Label}}
{{- if eq .Name "message"}}<textarea name="{{.Name}}" required></textarea>
{{- else}}<input name="{{.Name}}" type="{{.InputType}}" required>{{end -}}
</label>{{end -}}
<button type="submit">{{.Submit}}</button></form></section>{{end}}

{{define "Spacer"}}<div class="block block-spacer" style="height: {{.height}}px" aria-hidden="true"></div>{{end}}
`))

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrap(err, "blockregistry", "execute", "render "+name)
	}
	return template.HTML(buf.String()), nil
}

// templateRenderer renders a kind whose template reads the configuration
// map directly.
type templateRenderer string

func (t templateRenderer) Render(_ context.Context, in block.Input) (template.HTML, error) {
	data := in.Config
	if _, ok := data["children"]; ok {
		if _, isHTML := data["children"].(template.HTML); !isHTML {
			data = shallowCopy(data)
			data["children"] = template.HTML("")
		}
	}
	return execute(string(t), data)
}

func shallowCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
