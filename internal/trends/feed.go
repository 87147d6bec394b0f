package trends

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/trendhunter/internal/config"
	"github.com/deusflow/trendhunter/internal/fetch"
	"github.com/deusflow/trendhunter/internal/textutil"
)

// DefaultTrendingLimit bounds how many trending phrases a scan works with.
const DefaultTrendingLimit = 40

// FeedReader reads the trending-topics syndication feed.
type FeedReader struct {
	client  *fetch.Client
	sources config.Sources
}

func NewFeedReader(client *fetch.Client, sources config.Sources) *FeedReader {
	return &FeedReader{client: client, sources: sources}
}

// Trending returns up to maxItems currently trending phrases, normalized for
// substring matching.
func (f *FeedReader) Trending(ctx context.Context, maxItems int) ([]string, error) {
	q := url.Values{}
	q.Set("geo", f.sources.Locale.Geo)
	raw, err := f.client.Get(ctx, f.sources.TrendingFeedURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return ParseTrending(raw, maxItems)
}

// ParseTrending extracts normalized trending phrases from a raw feed
// document, skipping empty titles and truncating to maxItems in document
// order.
func ParseTrending(raw []byte, maxItems int) ([]string, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse trending feed: %w", err)
	}

	var out []string
	for _, item := range feed.Items {
		if len(out) >= maxItems {
			break
		}
		if item == nil {
			continue
		}
		title := textutil.Normalize(item.Title)
		if title == "" {
			continue
		}
		out = append(out, title)
	}
	return out, nil
}
