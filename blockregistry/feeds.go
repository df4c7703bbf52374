package blockregistry

import (
	"context"
	"html/template"
	"log/slog"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/schema"
)

// Feed names passed to FeedSource
const (
	FeedCareers = "careers"
	FeedBlog    = "blog"
)

// FeedEntry is one listed item of a feed block.
type FeedEntry struct {
	Title   string
	Summary string
	Href    string
}

// FeedSource looks up entries for the feed kinds. filter is the kind's
// department or category setting and may be empty.
type FeedSource interface {
	Entries(ctx context.Context, tenant, feed, filter string, limit int) ([]FeedEntry, error)
}

// FeedSourceFunc adapts a function to FeedSource
type FeedSourceFunc func(ctx context.Context, tenant, feed, filter string, limit int) ([]FeedEntry, error)

// Entries calls f
func (f FeedSourceFunc) Entries(ctx context.Context, tenant, feed, filter string, limit int) ([]FeedEntry, error) {
	return f(ctx, tenant, feed, filter, limit)
}

type feedRenderer struct {
	feed      string
	filterKey string
	source    FeedSource
	logger    *slog.Logger
}

func (r *feedRenderer) Render(ctx context.Context, in block.Input) (template.HTML, error) {
	limit := schema.GetInt(in.Config, "limit", 5)
	filter := schema.GetString(in.Config, r.filterKey, "")

	var entries []FeedEntry
	if r.source != nil {
		var err error
		entries, err = r.source.Entries(ctx, in.Tenant, r.feed, filter, limit)
		if err != nil {
			return "", errors.Wrap(err, "blockregistry", "feedRenderer.Render", "load "+r.feed+" entries")
		}
		if len(entries) > limit {
			entries = entries[:limit]
		}
	} else {
		r.logger.Debug("no feed source configured", "feed", r.feed, "kind", in.Kind)
	}

	empty := "No posts yet."
	if r.feed == FeedCareers {
		empty = "There are no open positions right now."
	}
	return execute("Feed", struct {
		Class   string
		Heading string
		Entries []FeedEntry
		Empty   string
	}{
		Class:   r.feed,
		Heading: schema.GetString(in.Config, "heading", ""),
		Entries: entries,
		Empty:   empty,
	})
}
