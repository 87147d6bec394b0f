package scanner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/trendhunter/internal/config"
	"github.com/deusflow/trendhunter/internal/fetch"
	"github.com/deusflow/trendhunter/internal/metrics"
	"github.com/deusflow/trendhunter/internal/newsfeed"
	"github.com/deusflow/trendhunter/internal/storage"
	"github.com/deusflow/trendhunter/internal/trends"
)

const trendingFeed = `<?xml version="1.0"?><rss version="2.0"><channel>
<item><title>earthquake</title></item>
<item><title>transfer news</title></item>
</channel></rss>`

func newsFeed(items ...string) string {
	doc := `<?xml version="1.0"?><rss version="2.0"><channel>`
	for i, title := range items {
		doc += fmt.Sprintf(
			"<item><title>%s</title><link>https://example.com/%d</link>"+
				"<pubDate>Tue, 10 Feb 2026 11:30:00 GMT</pubDate></item>", title, i)
	}
	return doc + `</channel></rss>`
}

type fixture struct {
	store        *storage.Memory
	metrics      *metrics.Metrics
	coordinator  *Coordinator
	orchestrator *Orchestrator
}

// newFixture wires an orchestrator against stub feed servers. newsDoc and
// trendingDoc are served verbatim; an empty trendingDoc means HTTP 500.
func newFixture(t *testing.T, newsDoc, trendingDoc string) *fixture {
	t.Helper()

	newsTS := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, newsDoc)
	}))
	t.Cleanup(newsTS.Close)

	trendTS := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if trendingDoc == "" {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, trendingDoc)
	}))
	t.Cleanup(trendTS.Close)

	sources := config.Sources{NewsFeedURL: newsTS.URL, TrendingFeedURL: trendTS.URL}
	sources.Locale.HL = "tr-TR"
	sources.Locale.GL = "TR"
	sources.Locale.Ceid = "TR:tr"
	sources.Locale.Geo = "TR"

	client := fetch.NewClient(5 * time.Second)
	store := storage.NewMemory()
	m := metrics.New()
	coordinator := NewCoordinator()
	orchestrator := NewOrchestrator(store, newsfeed.NewReader(client, sources), trends.NewFeedReader(client, sources), coordinator, m)
	orchestrator.now = func() time.Time { return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) }

	return &fixture{store: store, metrics: m, coordinator: coordinator, orchestrator: orchestrator}
}

func TestScanHappyPath(t *testing.T) {
	f := newFixture(t, newsFeed("Earthquake hits the region", "Quiet day on the markets"), trendingFeed)
	ctx := context.Background()
	require.NoError(t, f.store.AddKeyword(ctx, "earthquake", time.Now()))

	result, err := f.orchestrator.Scan(ctx)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.NewArticles)
	assert.Equal(t, 2, result.TotalProcessed)
	assert.Equal(t, 2, result.TotalArticles)

	// Scored and flagged.
	a, ok := f.store.FindByLink("https://example.com/0")
	require.True(t, ok)
	assert.True(t, a.TrendSignal)
	assert.True(t, a.IsNew)
	assert.Greater(t, a.TrendScore, 75)

	b, ok := f.store.FindByLink("https://example.com/1")
	require.True(t, ok)
	assert.False(t, b.TrendSignal)

	// Audit entry is closed as success.
	scans, err := f.store.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.True(t, scans[0].Success)
	require.NotNil(t, scans[0].FinishedAt)
	assert.Equal(t, 2, scans[0].NewArticles)

	// Shared last-run timestamp and setting are updated.
	assert.False(t, f.coordinator.LastScan().IsZero())
	lastScan, err := f.store.GetSetting(ctx, storage.SettingLastScanTime)
	require.NoError(t, err)
	_, parseErr := time.Parse(time.RFC3339, lastScan)
	assert.NoError(t, parseErr)
}

func TestScanRepeatUpdatesInsteadOfDuplicating(t *testing.T) {
	f := newFixture(t, newsFeed("Earthquake hits the region"), trendingFeed)
	ctx := context.Background()
	require.NoError(t, f.store.AddKeyword(ctx, "earthquake", time.Now()))

	first, err := f.orchestrator.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewArticles)

	second, err := f.orchestrator.Scan(ctx)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.NewArticles, "re-observed links refresh, not duplicate")
	assert.Equal(t, 1, second.TotalArticles)
}

func TestScanWithoutKeywordsFails(t *testing.T) {
	f := newFixture(t, newsFeed(), trendingFeed)
	ctx := context.Background()

	result, err := f.orchestrator.Scan(ctx)
	require.NoError(t, err, "domain failures are reported in the result, not the error")
	assert.False(t, result.Success)
	assert.Equal(t, "add at least one keyword before scanning", result.Error)

	// The attempt was accepted, so it leaves a closed failed audit entry.
	scans, err := f.store.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.False(t, scans[0].Success)
	require.NotNil(t, scans[0].FinishedAt)
}

func TestScanRejectedWhileBusy(t *testing.T) {
	f := newFixture(t, newsFeed(), trendingFeed)
	ctx := context.Background()

	require.True(t, f.coordinator.TryBegin())
	defer f.coordinator.End()

	result, err := f.orchestrator.Scan(ctx)
	assert.ErrorIs(t, err, ErrScanInProgress)
	assert.True(t, result.Busy)
	assert.False(t, result.Success)

	// A rejected attempt must not leave an audit entry.
	scans, listErr := f.store.ListScans(ctx, 0)
	require.NoError(t, listErr)
	assert.Empty(t, scans)
}

func TestScanSurvivesTrendingOutage(t *testing.T) {
	f := newFixture(t, newsFeed("Earthquake hits the region"), "")
	ctx := context.Background()
	require.NoError(t, f.store.AddKeyword(ctx, "earthquake", time.Now()))

	result, err := f.orchestrator.Scan(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)

	a, ok := f.store.FindByLink("https://example.com/0")
	require.True(t, ok)
	assert.False(t, a.TrendSignal, "no trending data, no signal")
}

type captureNotifier struct {
	articles []storage.Article
}

func (c *captureNotifier) ScanAlert(_ context.Context, articles []storage.Article) {
	c.articles = append(c.articles, articles...)
}

func TestScanNotifiesOnHighScores(t *testing.T) {
	f := newFixture(t, newsFeed("Earthquake hits the region", "Quiet day on the markets"), trendingFeed)
	ctx := context.Background()
	require.NoError(t, f.store.AddKeyword(ctx, "earthquake", time.Now()))

	n := &captureNotifier{}
	f.orchestrator.SetNotifier(n, 75)

	_, err := f.orchestrator.Scan(ctx)
	require.NoError(t, err)

	require.Len(t, n.articles, 1, "only the trend hit clears the alert bar")
	assert.Equal(t, "https://example.com/0", n.articles[0].Link)

	// Second scan inserts nothing, so nothing is alerted again.
	_, err = f.orchestrator.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, n.articles, 1)
}
