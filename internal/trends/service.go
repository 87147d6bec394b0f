package trends

import (
	"context"
	"sort"
	"time"

	"github.com/deusflow/trendhunter/internal/cache"
	"github.com/deusflow/trendhunter/internal/config"
	"github.com/deusflow/trendhunter/internal/logger"
	"github.com/deusflow/trendhunter/internal/textutil"
)

const (
	TimeframeLastHour  = "now 1-H"
	TimeframeLast4Hour = "now 4-H"
)

// Service is the cached read path over the interest client. The scan cycle
// never goes through here; only the API read handlers do.
type Service struct {
	client      *Client
	geo         string
	breakout    map[string]bool
	interestTTL time.Duration
	relatedTTL  time.Duration

	interestCache *cache.Cache[[]SeriesResult]
	relatedCache  *cache.Cache[RelatedResult]

	now func() time.Time
}

func NewService(client *Client, sources config.Sources, interestTTL, relatedTTL time.Duration) *Service {
	breakout := make(map[string]bool, len(sources.BreakoutLabels))
	for _, label := range sources.BreakoutLabels {
		breakout[textutil.Normalize(label)] = true
	}
	return &Service{
		client:        client,
		geo:           sources.Locale.Geo,
		breakout:      breakout,
		interestTTL:   interestTTL,
		relatedTTL:    relatedTTL,
		interestCache: cache.New[[]SeriesResult](),
		relatedCache:  cache.New[RelatedResult](),
		now:           time.Now,
	}
}

// LastHourInterest returns the cached interest summary for the keyword set,
// recomputing when the entry is older than the TTL or forceRefresh is set.
// The cache key is order-independent over the normalized keywords.
func (s *Service) LastHourInterest(ctx context.Context, keywords []string, forceRefresh bool) ([]SeriesResult, error) {
	if len(keywords) == 0 {
		return []SeriesResult{}, nil
	}
	return s.interestCache.GetOrCompute(InterestCacheKey(keywords), s.interestTTL, forceRefresh, func() ([]SeriesResult, error) {
		return s.client.InterestOverTime(ctx, keywords, s.geo, TimeframeLastHour), nil
	})
}

// Related returns the cached related-query buckets for one keyword and
// timeframe.
func (s *Service) Related(ctx context.Context, keyword, timeframe string, forceRefresh bool) (RelatedResult, error) {
	return s.relatedCache.GetOrCompute(RelatedCacheKey(keyword, s.geo, timeframe), s.relatedTTL, forceRefresh, func() (RelatedResult, error) {
		return s.client.RelatedQueries(ctx, keyword, s.geo, timeframe)
	})
}

// DiscoverItem is one merged related query across the source keywords.
type DiscoverItem struct {
	Query          string   `json:"query"`
	Value          int      `json:"value"`
	FormattedValue string   `json:"formatted_value"`
	FromKeywords   []string `json:"from_keywords"`
}

// DiscoverResult is the merged related-query view for a keyword set.
type DiscoverResult struct {
	GeneratedAt    time.Time      `json:"generated_at"`
	Timeframe      string         `json:"timeframe"`
	Mode           string         `json:"mode"`
	SourceKeywords []string       `json:"source_keywords"`
	Items          []DiscoverItem `json:"items"`
}

// Discover merges one related-query bucket ("rising" or "top") across all
// keywords. Duplicate queries are collapsed by normalized text keeping the
// highest value, and the result is ranked breakouts first, then by value,
// then by how many source keywords surfaced the query. A keyword whose
// lookup fails contributes nothing; the rest still resolve.
func (s *Service) Discover(ctx context.Context, keywords []string, timeframe, mode string, forceRefresh bool) DiscoverResult {
	if mode != "top" {
		mode = "rising"
	}
	result := DiscoverResult{
		GeneratedAt:    s.now().UTC(),
		Timeframe:      timeframe,
		Mode:           mode,
		SourceKeywords: keywords,
		Items:          []DiscoverItem{},
	}

	merged := make(map[string]*DiscoverItem)
	var order []string

	for _, kw := range keywords {
		related, err := s.Related(ctx, kw, timeframe, forceRefresh)
		if err != nil {
			logger.Warn("related lookup failed", "keyword", kw, "error", err)
			continue
		}

		bucket := related.Rising
		if mode == "top" {
			bucket = related.Top
		}
		for _, item := range bucket {
			key := textutil.Normalize(item.Query)
			if key == "" {
				continue
			}
			entry, ok := merged[key]
			if !ok {
				entry = &DiscoverItem{Query: item.Query}
				merged[key] = entry
				order = append(order, key)
			}
			if item.Value > entry.Value {
				entry.Value = item.Value
			}
			if item.FormattedValue != "" {
				entry.FormattedValue = item.FormattedValue
			}
			entry.FromKeywords = appendUnique(entry.FromKeywords, kw)
		}
	}

	for _, key := range order {
		result.Items = append(result.Items, *merged[key])
	}
	sort.SliceStable(result.Items, func(i, j int) bool {
		a, b := result.Items[i], result.Items[j]
		ab, bb := s.isBreakout(a.FormattedValue), s.isBreakout(b.FormattedValue)
		if ab != bb {
			return ab
		}
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return len(a.FromKeywords) > len(b.FromKeywords)
	})
	return result
}

func (s *Service) isBreakout(formatted string) bool {
	return s.breakout[textutil.Normalize(formatted)]
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
