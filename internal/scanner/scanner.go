// Package scanner runs the ingestion-and-scoring cycle: load tracked
// keywords, pull the trending feed, pull per-keyword news, score, persist,
// audit. The failure policy is fixed: trending and per-keyword fetches are
// isolated and degrade to empty results; an empty keyword list and storage
// errors abort the cycle. Every accepted attempt leaves a closed audit
// entry.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/trendhunter/internal/logger"
	"github.com/deusflow/trendhunter/internal/metrics"
	"github.com/deusflow/trendhunter/internal/newsfeed"
	"github.com/deusflow/trendhunter/internal/scoring"
	"github.com/deusflow/trendhunter/internal/storage"
	"github.com/deusflow/trendhunter/internal/trends"
)

// ErrScanInProgress is returned when the single-flight guard rejects an
// attempt. No audit entry is written for rejected attempts.
var ErrScanInProgress = errors.New("scan already in progress")

const noKeywordsError = "no keywords tracked"

// Result is the user-facing outcome of one scan attempt.
type Result struct {
	Success        bool   `json:"success"`
	Busy           bool   `json:"busy,omitempty"`
	Error          string `json:"error,omitempty"`
	NewArticles    int    `json:"new_articles"`
	TotalProcessed int    `json:"total_processed"`
	TotalArticles  int    `json:"total_articles"`
}

// Notifier receives the notable articles of a finished scan. Delivery is
// best effort and must never fail the scan.
type Notifier interface {
	ScanAlert(ctx context.Context, articles []storage.Article)
}

type Orchestrator struct {
	store       storage.Store
	news        *newsfeed.Reader
	trending    *trends.FeedReader
	coordinator *Coordinator
	metrics     *metrics.Metrics
	notifier    Notifier // optional

	maxItems      int
	alertMinScore int
	now           func() time.Time
}

func NewOrchestrator(store storage.Store, news *newsfeed.Reader, trending *trends.FeedReader, coordinator *Coordinator, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		store:         store,
		news:          news,
		trending:      trending,
		coordinator:   coordinator,
		metrics:       m,
		maxItems:      25,
		alertMinScore: 75,
		now:           time.Now,
	}
}

// SetNotifier attaches an optional alert sink for high-score trend hits.
func (o *Orchestrator) SetNotifier(n Notifier, minScore int) {
	o.notifier = n
	if minScore > 0 {
		o.alertMinScore = minScore
	}
}

// Scan runs one full cycle. When another cycle holds the single-flight lock
// the attempt is rejected immediately with ErrScanInProgress.
func (o *Orchestrator) Scan(ctx context.Context) (Result, error) {
	if !o.coordinator.TryBegin() {
		o.metrics.RecordRejected()
		return Result{Busy: true, Error: "scan already in progress"}, ErrScanInProgress
	}
	defer o.coordinator.End()

	startedAt := o.now().UTC()
	scanID, err := o.store.RecordScanStart(ctx, startedAt)
	if err != nil {
		o.metrics.RecordFailure(err.Error())
		return Result{Error: fmt.Sprintf("scan failed: %v", err)}, nil
	}

	result, scanErr := o.run(ctx, scanID, startedAt)
	if scanErr != nil {
		// Close the audit entry before surfacing the failure; an open
		// entry would look like a scan that never came back.
		if endErr := o.store.RecordScanEnd(ctx, scanID, o.now().UTC(), result.NewArticles, result.TotalProcessed, false, scanErr.Error()); endErr != nil {
			logger.Error("close failed scan entry", "scan_id", scanID, "error", endErr)
		}
		o.metrics.RecordFailure(scanErr.Error())
		logger.Warn("scan failed", "scan_id", scanID, "error", scanErr)
		return Result{Error: userFacingError(scanErr)}, nil
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, scanID int64, startedAt time.Time) (Result, error) {
	keywords, err := o.store.ListKeywords(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load keywords: %w", err)
	}
	if len(keywords) == 0 {
		return Result{}, errors.New(noKeywordsError)
	}

	// A broken trending feed degrades matching, it does not stop the scan.
	trending, err := o.trending.Trending(ctx, trends.DefaultTrendingLimit)
	if err != nil {
		logger.Warn("trending feed unavailable, scanning without trend matches", "error", err)
		trending = nil
	}

	var gathered []newsfeed.Candidate
	density := make(map[string]int, len(keywords))
	for _, kw := range keywords {
		items, err := o.news.Fetch(ctx, kw.Keyword, o.maxItems)
		if err != nil {
			logger.Warn("news fetch failed for keyword", "keyword", kw.Keyword, "error", err)
			items = nil
		}
		gathered = append(gathered, items...)
		density[kw.Keyword] = len(items)
	}

	var (
		newArticles    int
		totalProcessed int
		trendHits      int
		notable        []storage.Article
	)

	for _, candidate := range gathered {
		totalProcessed++

		score, signal := scoring.Score(
			o.now().UTC(),
			candidate.Title,
			candidate.Keyword,
			candidate.PublishedAt,
			trending,
			density[candidate.Keyword],
		)
		if signal {
			trendHits++
		}

		article := storage.Article{
			Title:        candidate.Title,
			Link:         candidate.Link,
			Source:       candidate.Source,
			PublishedAt:  candidate.PublishedAt,
			Keyword:      candidate.Keyword,
			TrendScore:   score,
			TrendSignal:  signal,
			DiscoveredAt: o.now().UTC(),
		}
		inserted, err := o.store.UpsertArticle(ctx, article)
		if err != nil {
			return Result{NewArticles: newArticles, TotalProcessed: totalProcessed}, fmt.Errorf("persist article: %w", err)
		}
		if inserted {
			newArticles++
			if signal && score >= o.alertMinScore {
				article.IsNew = true
				notable = append(notable, article)
			}
		}
	}

	finishedAt := o.now().UTC()
	if err := o.store.RecordScanEnd(ctx, scanID, finishedAt, newArticles, totalProcessed, true, ""); err != nil {
		return Result{NewArticles: newArticles, TotalProcessed: totalProcessed}, fmt.Errorf("close scan entry: %w", err)
	}
	if err := o.store.SetSetting(ctx, storage.SettingLastScanTime, finishedAt.Format(time.RFC3339)); err != nil {
		logger.Warn("persist last scan time", "error", err)
	}
	o.coordinator.MarkScanned(finishedAt)
	o.metrics.RecordScan(finishedAt.Sub(startedAt), totalProcessed, newArticles, trendHits)

	if o.notifier != nil && len(notable) > 0 {
		o.notifier.ScanAlert(ctx, notable)
	}

	counts, err := o.store.Counts(ctx)
	if err != nil {
		logger.Warn("load counts after scan", "error", err)
	}

	logger.Info("scan finished",
		"scan_id", scanID,
		"keywords", len(keywords),
		"processed", totalProcessed,
		"new", newArticles,
		"trend_hits", trendHits,
		"took", finishedAt.Sub(startedAt),
	)

	return Result{
		Success:        true,
		NewArticles:    newArticles,
		TotalProcessed: totalProcessed,
		TotalArticles:  counts.TotalNews,
	}, nil
}

func userFacingError(err error) string {
	if err.Error() == noKeywordsError {
		return "add at least one keyword before scanning"
	}
	return fmt.Sprintf("scan failed: %v", err)
}
