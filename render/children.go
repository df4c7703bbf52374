package render

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/feature"
	"github.com/c360/semblocks/page"
)

const childrenKey = "children"

// childInstances reads nested instances from a children value. Each element
// is an object with a kind, an optional id and an optional config.
func childInstances(parentID string, value any) []page.Instance {
	elems, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]page.Instance, 0, len(elems))
	for i, elem := range elems {
		m, ok := elem.(map[string]any)
		if !ok {
			out = append(out, page.Instance{ID: fmt.Sprintf("%s/%d", parentID, i)})
			continue
		}
		inst := page.Instance{ID: fmt.Sprintf("%s/%d", parentID, i)}
		if id, ok := m["id"].(string); ok && id != "" {
			inst.ID = id
		}
		inst.Kind, _ = m["kind"].(string)
		inst.Config, _ = m["config"].(map[string]any)
		out = append(out, inst)
	}
	return out
}

// renderChildren renders nested instances inline, in order, and returns the
// concatenated markup. Children that fail render as placeholders, so a bad
// child never fails its parent.
func (d *Dispatcher) renderChildren(ctx context.Context, parent block.Input,
	tenant feature.TenantConfig, depth int) template.HTML {
	children := childInstances(parent.InstanceID, parent.Config[childrenKey])
	if len(children) == 0 {
		return ""
	}

	var b strings.Builder
	for i, child := range children {
		if depth+1 > maxChildDepth {
			b.WriteString(string(placeholderNode(i, child.Kind, child.ID, Placeholder{
				Reason: ReasonRenderFailed,
				Detail: fmt.Sprintf("nesting deeper than %d levels", maxChildDepth),
			}).Markup()))
			continue
		}
		desc, input, ph := d.prepare(child, tenant)
		if ph != nil {
			d.logPlaceholder(tenant, child, ph)
			b.WriteString(string(placeholderNode(i, child.Kind, child.ID, *ph).Markup()))
			continue
		}
		html, err := d.invoke(ctx, desc, input, tenant, depth+1)
		if err != nil {
			p := Placeholder{Reason: ReasonRenderFailed, Detail: err.Error()}
			d.logPlaceholder(tenant, child, &p)
			b.WriteString(string(placeholderNode(i, child.Kind, child.ID, p).Markup()))
			continue
		}
		b.WriteString(string(html))
	}
	return template.HTML(b.String())
}
