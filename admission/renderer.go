package admission

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/schema"
)

// componentRenderer executes an admitted component and sanitizes the result.
type componentRenderer struct {
	name   string
	export string
	tmpl   *template.Template
	schema schema.ConfigSchema
	policy *bluemonday.Policy
}

func (r *componentRenderer) Render(ctx context.Context, in block.Input) (template.HTML, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WrapTransient(err, r.name, "Render", "context check")
	}
	data := templateData(in.Config, r.schema)
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&limitedWriter{w: &buf, remaining: maxOutputBytes}, r.export, data); err != nil {
		return "", errors.Wrap(err, r.name, "Render", fmt.Sprintf("execute component for instance %s", in.InstanceID))
	}
	if r.policy == nil {
		return template.HTML(buf.String()), nil
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// templateData copies config and fills every declared field that is absent
// with its type's zero value, so templates never print "<no value>".
// children is always markup.
func templateData(config map[string]any, s schema.ConfigSchema) map[string]any {
	data := make(map[string]any, len(config)+len(s.Properties))
	for k, v := range config {
		data[k] = v
	}
	for name, prop := range s.Properties {
		if v, ok := data[name]; ok && v != nil {
			continue
		}
		data[name] = zeroValue(prop)
	}
	if _, ok := data[childrenField].(template.HTML); !ok {
		if _, declared := s.Properties[childrenField]; declared {
			data[childrenField] = template.HTML("")
		}
	}
	return data
}

func zeroValue(prop schema.PropertySchema) any {
	switch prop.Type {
	case schema.TypeBool:
		return false
	case schema.TypeInt:
		return 0
	case schema.TypeNumber:
		return 0.0
	case schema.TypeArray:
		return []any{}
	case schema.TypeObject:
		nested := make(map[string]any, len(prop.Properties))
		for name, sub := range prop.Properties {
			nested[name] = zeroValue(sub)
		}
		return nested
	default:
		return ""
	}
}
