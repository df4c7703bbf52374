package blockregistry

import (
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/schema"
)

// renderVideo embeds https videos. YouTube watch and youtu.be links are
// rewritten to their embeddable form.
func renderVideo(_ context.Context, in block.Input) (template.HTML, error) {
	src, err := embedURL(schema.GetString(in.Config, "url", ""))
	if err != nil {
		return "", errors.WrapInvalid(err, "blockregistry", "renderVideo", "video url")
	}
	return execute("VideoEmbed", map[string]any{
		"src":      src,
		"title":    schema.GetString(in.Config, "title", "Video"),
		"autoplay": schema.GetBool(in.Config, "autoplay", false),
	})
}

func embedURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidData, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("%w: video url must be an absolute https url", errors.ErrInvalidData)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case host == "youtube.com" && u.Path == "/watch" && u.Query().Get("v") != "":
		return "https://www.youtube-nocookie.com/embed/" + url.PathEscape(u.Query().Get("v")), nil
	case host == "youtu.be" && len(u.Path) > 1:
		return "https://www.youtube-nocookie.com/embed/" + url.PathEscape(strings.TrimPrefix(u.Path, "/")), nil
	case host == "vimeo.com" && len(u.Path) > 1:
		return "https://player.vimeo.com/video" + u.Path, nil
	}
	return u.String(), nil
}
