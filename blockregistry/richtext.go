package blockregistry

import (
	"context"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	bf "github.com/russross/blackfriday"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/schema"
)

const markdownExtensions = bf.EXTENSION_TABLES |
	bf.EXTENSION_FENCED_CODE |
	bf.EXTENSION_AUTOLINK |
	bf.EXTENSION_STRIKETHROUGH |
	bf.EXTENSION_NO_INTRA_EMPHASIS

// richTextRenderer converts markdown to HTML and sanitizes the result.
type richTextRenderer struct {
	policy *bluemonday.Policy
}

func (r *richTextRenderer) Render(_ context.Context, in block.Input) (template.HTML, error) {
	md := schema.GetString(in.Config, "markdown", "")
	body := bf.Markdown([]byte(md), bf.HtmlRenderer(bf.HTML_SKIP_STYLE, "", ""), markdownExtensions)
	body = r.policy.SanitizeBytes(body)

	return execute("RichText", map[string]any{
		"width": schema.GetString(in.Config, "width", "narrow"),
		"body":  template.HTML(body),
	})
}
