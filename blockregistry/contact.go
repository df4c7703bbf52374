package blockregistry

import (
	"context"
	"html/template"
	"strings"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/schema"
)

type formField struct {
	Name      string
	Label     string
	InputType string
}

// renderContactForm renders the visitor-facing form. The recipient address
// stays server side; submissions are routed by block instance id.
func renderContactForm(_ context.Context, in block.Input) (template.HTML, error) {
	names := schema.GetStringSlice(in.Config, "fields", []string{"name", "email", "message"})
	fields := make([]formField, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		inputType := "text"
		switch name {
		case "email":
			inputType = "email"
		case "phone":
			inputType = "tel"
		}
		fields = append(fields, formField{
			Name:      name,
			Label:     strings.ToUpper(name[:1]) + name[1:],
			InputType: inputType,
		})
	}

	return execute("ContactForm", struct {
		Heading string
		Action  string
		Fields  []formField
		Submit  string
	}{
		Heading: schema.GetString(in.Config, "heading", "Contact us"),
		Action:  "/forms/contact/" + in.InstanceID,
		Fields:  fields,
		Submit:  schema.GetString(in.Config, "submit_label", "Send"),
	})
}
