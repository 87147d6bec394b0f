// Package newsfeed reads the news-search syndication feed for one tracked
// keyword.
package newsfeed

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/rss"

	"github.com/deusflow/trendhunter/internal/config"
	"github.com/deusflow/trendhunter/internal/fetch"
)

// Candidate is one article as seen in the feed, before scoring.
type Candidate struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Keyword     string    `json:"keyword"`
}

type Reader struct {
	client  *fetch.Client
	sources config.Sources
}

func NewReader(client *fetch.Client, sources config.Sources) *Reader {
	return &Reader{client: client, sources: sources}
}

// SearchURL builds the feed URL for keyword, restricted to the last day and
// carrying the configured locale.
func (r *Reader) SearchURL(keyword string) string {
	q := url.Values{}
	q.Set("q", keyword+" when:1d")
	q.Set("hl", r.sources.Locale.HL)
	q.Set("gl", r.sources.Locale.GL)
	q.Set("ceid", r.sources.Locale.Ceid)
	return r.sources.NewsFeedURL + "?" + q.Encode()
}

// Fetch downloads and parses the feed for keyword, returning at most maxItems
// candidates in document order.
func (r *Reader) Fetch(ctx context.Context, keyword string, maxItems int) ([]Candidate, error) {
	raw, err := r.client.Get(ctx, r.SearchURL(keyword))
	if err != nil {
		return nil, err
	}
	return Parse(raw, keyword, maxItems)
}

// Parse extracts candidates from a raw feed document. Entries without a title
// or link are skipped. A missing or malformed publish date falls back to the
// current time in UTC, so such articles enter scoring at full recency.
func Parse(raw []byte, keyword string, maxItems int) ([]Candidate, error) {
	parser := &rss.Parser{}
	feed, err := parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse news feed: %w", err)
	}

	var out []Candidate
	for _, item := range feed.Items {
		if len(out) >= maxItems {
			break
		}
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}

		published := time.Now().UTC()
		if item.PubDateParsed != nil {
			published = item.PubDateParsed.UTC()
		}

		source := "Google News"
		if item.Source != nil && strings.TrimSpace(item.Source.Title) != "" {
			source = strings.TrimSpace(item.Source.Title)
		}

		out = append(out, Candidate{
			Title:       title,
			Link:        link,
			Source:      source,
			PublishedAt: published,
			Keyword:     keyword,
		})
	}
	return out, nil
}
