// Package trends talks to the trends backend: the trending-topics feed, the
// explore/widget/token JSON API for interest-over-time and related queries,
// and the TTL-cached read paths on top of them.
//
// The JSON API is a two-step protocol. An explore request describes the
// comparison and returns a list of widgets; each widget carries its own
// request object and a one-time token which must be echoed back to a
// widget-specific endpoint to obtain the data. Responses are prefixed with a
// non-JSON guard sequence that has to be stripped before decoding.
package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/trendhunter/internal/config"
	"github.com/deusflow/trendhunter/internal/fetch"
	"github.com/deusflow/trendhunter/internal/logger"
	"github.com/deusflow/trendhunter/internal/textutil"
)

// interestBatchSize is the upstream limit on keywords per explore request.
const interestBatchSize = 8

const (
	widgetTimeseries     = "TIMESERIES"
	widgetRelatedQueries = "RELATED_QUERIES"
)

// SeriesResult is the interest-over-time summary for one keyword. Points is
// the per-minute interest index; the aggregates compare the most recent 20
// minutes against the first 20 as a short-term acceleration proxy.
type SeriesResult struct {
	Keyword     string  `json:"keyword"`
	LatestIndex int     `json:"latest_index"`
	Avg60m      float64 `json:"avg_60m"`
	Avg20m      float64 `json:"avg_20m"`
	Delta20m    float64 `json:"delta_20m"`
	Points      []int   `json:"points"`
}

// RelatedItem is one ranked related query.
type RelatedItem struct {
	Query          string `json:"query"`
	Value          int    `json:"value"`
	FormattedValue string `json:"formatted_value"`
	Link           string `json:"link"`
}

// RelatedResult holds the top and rising related queries for one keyword.
type RelatedResult struct {
	Keyword     string        `json:"keyword"`
	GeneratedAt time.Time     `json:"generated_at"`
	Top         []RelatedItem `json:"top"`
	Rising      []RelatedItem `json:"rising"`
}

type Client struct {
	client  *fetch.Client
	sources config.Sources
	now     func() time.Time
}

func NewClient(client *fetch.Client, sources config.Sources) *Client {
	return &Client{client: client, sources: sources, now: time.Now}
}

type comparisonItem struct {
	Keyword string `json:"keyword"`
	Geo     string `json:"geo"`
	Time    string `json:"time"`
}

type widget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

type exploreResponse struct {
	Widgets []widget `json:"widgets"`
}

// stripGuard removes the anti-scraping prefix (")]}'" plus an optional comma
// and whitespace) that the API puts in front of every JSON body.
func stripGuard(raw []byte) []byte {
	out := bytes.TrimPrefix(raw, []byte(")]}'"))
	out = bytes.TrimPrefix(out, []byte(","))
	return bytes.TrimLeft(out, " \t\r\n")
}

func decodeGuarded(raw []byte, v any) error {
	if err := json.Unmarshal(stripGuard(raw), v); err != nil {
		return fmt.Errorf("decode trends payload: %w", err)
	}
	return nil
}

// explore runs step one of the protocol and returns the widget list.
func (c *Client) explore(ctx context.Context, items []comparisonItem) ([]widget, error) {
	payload := map[string]any{
		"comparisonItem": items,
		"category":       0,
		"property":       "",
	}
	req, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal explore request: %w", err)
	}

	q := url.Values{}
	q.Set("hl", c.sources.Locale.HL)
	q.Set("tz", c.sources.Locale.TZ)
	q.Set("req", string(req))

	raw, err := c.client.Get(ctx, c.sources.TrendsAPIURL+"/explore?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp exploreResponse
	if err := decodeGuarded(raw, &resp); err != nil {
		return nil, err
	}
	return resp.Widgets, nil
}

// widgetData runs step two: reissue the widget's own request with its token
// against endpoint and return the stripped body.
func (c *Client) widgetData(ctx context.Context, endpoint string, w widget) ([]byte, error) {
	q := url.Values{}
	q.Set("hl", c.sources.Locale.HL)
	q.Set("tz", c.sources.Locale.TZ)
	q.Set("req", string(w.Request))
	q.Set("token", w.Token)
	return c.client.Get(ctx, c.sources.TrendsAPIURL+"/"+endpoint+"?"+q.Encode())
}

func findWidget(widgets []widget, id string) (widget, bool) {
	for _, w := range widgets {
		if w.ID == id && w.Token != "" {
			return w, true
		}
	}
	return widget{}, false
}

type multilineResponse struct {
	Default struct {
		TimelineData []struct {
			Value []int `json:"value"`
		} `json:"timelineData"`
	} `json:"default"`
}

// interestBatch fetches the raw interest series for one batch of keywords.
// An absent TIMESERIES widget or a missing token is an empty result, not an
// error; the upstream does that for keywords it will not serve.
func (c *Client) interestBatch(ctx context.Context, keywords []string, geo, timeframe string) (map[string][]int, error) {
	if len(keywords) == 0 {
		return map[string][]int{}, nil
	}

	items := make([]comparisonItem, 0, len(keywords))
	for _, kw := range keywords {
		items = append(items, comparisonItem{Keyword: kw, Geo: geo, Time: timeframe})
	}

	widgets, err := c.explore(ctx, items)
	if err != nil {
		return nil, err
	}
	w, ok := findWidget(widgets, widgetTimeseries)
	if !ok {
		return map[string][]int{}, nil
	}

	raw, err := c.widgetData(ctx, "widgetdata/multiline", w)
	if err != nil {
		return nil, err
	}
	var resp multilineResponse
	if err := decodeGuarded(raw, &resp); err != nil {
		return nil, err
	}

	series := make(map[string][]int, len(keywords))
	for _, kw := range keywords {
		series[kw] = []int{}
	}
	for _, row := range resp.Default.TimelineData {
		for idx, kw := range keywords {
			v := 0
			if idx < len(row.Value) {
				v = row.Value[idx]
			}
			series[kw] = append(series[kw], v)
		}
	}
	return series, nil
}

// InterestOverTime resolves the short-window interest series for every
// keyword. Keywords are chunked into batches of eight; a failing batch is
// logged and its keywords come back with empty series, so one bad batch never
// poisons the rest. Results are ordered by latest index, then by the 20
// minute average.
func (c *Client) InterestOverTime(ctx context.Context, keywords []string, geo, timeframe string) []SeriesResult {
	collected := make(map[string][]int, len(keywords))

	for start := 0; start < len(keywords); start += interestBatchSize {
		end := start + interestBatchSize
		if end > len(keywords) {
			end = len(keywords)
		}
		batch := keywords[start:end]

		series, err := c.interestBatch(ctx, batch, geo, timeframe)
		if err != nil {
			logger.Warn("interest batch failed", "keywords", strings.Join(batch, ","), "error", err)
			for _, kw := range batch {
				collected[kw] = []int{}
			}
			continue
		}
		for kw, points := range series {
			collected[kw] = points
		}
	}

	results := make([]SeriesResult, 0, len(keywords))
	for _, kw := range keywords {
		results = append(results, summarizeSeries(kw, collected[kw]))
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].LatestIndex != results[j].LatestIndex {
			return results[i].LatestIndex > results[j].LatestIndex
		}
		return results[i].Avg20m > results[j].Avg20m
	})
	return results
}

// summarizeSeries computes the aggregates for one keyword. tail is the last
// 20 points and head the first 20 (or the whole series when shorter); the
// delta between their means approximates short-term acceleration.
func summarizeSeries(keyword string, points []int) SeriesResult {
	if len(points) == 0 {
		return SeriesResult{Keyword: keyword, Points: []int{}}
	}

	tail := points
	head := points
	if len(points) >= 20 {
		tail = points[len(points)-20:]
		head = points[:20]
	}

	return SeriesResult{
		Keyword:     keyword,
		LatestIndex: points[len(points)-1],
		Avg60m:      round2(mean(points)),
		Avg20m:      round2(mean(tail)),
		Delta20m:    round2(mean(tail) - mean(head)),
		Points:      points,
	}
}

func mean(points []int) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0
	for _, p := range points {
		sum += p
	}
	return float64(sum) / float64(len(points))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type relatedRow struct {
	Query          string `json:"query"`
	Value          int    `json:"value"`
	FormattedValue string `json:"formattedValue"`
	Link           string `json:"link"`
}

type relatedResponse struct {
	Default struct {
		RankedList []struct {
			RankedKeyword []relatedRow `json:"rankedKeyword"`
		} `json:"rankedList"`
	} `json:"default"`
}

// RelatedQueries fetches the top and rising related queries for a single
// keyword. The first ranked bucket is "top", the second "rising"; a missing
// widget, token or bucket yields empty lists rather than an error.
func (c *Client) RelatedQueries(ctx context.Context, keyword, geo, timeframe string) (RelatedResult, error) {
	result := RelatedResult{
		Keyword:     keyword,
		GeneratedAt: c.now().UTC(),
		Top:         []RelatedItem{},
		Rising:      []RelatedItem{},
	}

	widgets, err := c.explore(ctx, []comparisonItem{{Keyword: keyword, Geo: geo, Time: timeframe}})
	if err != nil {
		return result, err
	}
	w, ok := findWidget(widgets, widgetRelatedQueries)
	if !ok {
		return result, nil
	}

	raw, err := c.widgetData(ctx, "widgetdata/relatedsearches", w)
	if err != nil {
		return result, err
	}
	var resp relatedResponse
	if err := decodeGuarded(raw, &resp); err != nil {
		return result, err
	}

	ranked := resp.Default.RankedList
	if len(ranked) > 0 {
		result.Top = convertRelated(ranked[0].RankedKeyword)
	}
	if len(ranked) > 1 {
		result.Rising = convertRelated(ranked[1].RankedKeyword)
	}
	return result, nil
}

func convertRelated(rows []relatedRow) []RelatedItem {
	out := make([]RelatedItem, 0, len(rows))
	for _, row := range rows {
		query := strings.TrimSpace(row.Query)
		if query == "" {
			continue
		}
		out = append(out, RelatedItem{
			Query:          query,
			Value:          row.Value,
			FormattedValue: strings.TrimSpace(row.FormattedValue),
			Link:           row.Link,
		})
	}
	return out
}

// InterestCacheKey is the order-independent cache key for a keyword set.
func InterestCacheKey(keywords []string) string {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		normalized = append(normalized, textutil.Normalize(kw))
	}
	sort.Strings(normalized)
	return strings.Join(normalized, "|")
}

// RelatedCacheKey keys a related-query lookup by keyword, geo and timeframe.
func RelatedCacheKey(keyword, geo, timeframe string) string {
	return textutil.Normalize(keyword) + "|" + geo + "|" + timeframe
}
