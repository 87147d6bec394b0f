// Package storage owns persistence for tracked keywords, discovered
// articles, scan audit entries and flat settings. Link uniqueness for
// articles is enforced here, at the storage layer; the scan orchestrator
// relies on the upsert outcome to count new versus refreshed articles.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateKeyword signals an attempt to track a keyword twice.
	ErrDuplicateKeyword = errors.New("keyword already tracked")
	// ErrNotFound signals a lookup of a missing record.
	ErrNotFound = errors.New("record not found")
)

// Fixed setting keys. The set is closed; there is no schema evolution here.
const (
	SettingAutoScan        = "auto_scan"
	SettingIntervalMinutes = "interval_minutes"
	SettingLastScanTime    = "last_scan_time"
)

// Keyword is one tracked keyword. ArticleCount is filled by ListKeywords for
// the API read model.
type Keyword struct {
	ID           int64     `json:"id"`
	Keyword      string    `json:"keyword"`
	CreatedAt    time.Time `json:"created_at"`
	ArticleCount int       `json:"count"`
}

// Article is a persisted news record. Identity is the link: re-observing a
// known link refreshes the record instead of duplicating it. IsNew is cleared
// only by an explicit mark-seen action and Saved only by an explicit toggle;
// scans touch neither.
type Article struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Link         string    `json:"link"`
	Source       string    `json:"source"`
	PublishedAt  time.Time `json:"published_at"`
	Keyword      string    `json:"keyword"`
	TrendScore   int       `json:"trend_score"`
	TrendSignal  bool      `json:"trend_signal"`
	IsNew        bool      `json:"is_new"`
	Saved        bool      `json:"saved"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Scan is one scan audit entry. FinishedAt is nil while the scan runs; the
// orchestrator always closes the entry, on success and on failure.
type Scan struct {
	ID            int64      `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	NewArticles   int        `json:"new_articles"`
	TotalArticles int        `json:"total_articles"`
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
}

// ArticleFilter narrows ListArticles. Filter is "all", "new" or "saved".
type ArticleFilter struct {
	Filter  string
	Keyword string
	Limit   int
}

// Counts is the aggregate read model behind the status endpoint.
type Counts struct {
	TotalNews    int `json:"total_news"`
	NewCount     int `json:"new_count"`
	SavedCount   int `json:"saved_count"`
	KeywordCount int `json:"keyword_count"`
	ScanCount    int `json:"scan_count"`
}

// Store is the narrow persistence contract the core depends on.
type Store interface {
	AddKeyword(ctx context.Context, keyword string, createdAt time.Time) error
	DeleteKeyword(ctx context.Context, keyword string) error
	// ListKeywords returns keywords ordered by creation time descending.
	ListKeywords(ctx context.Context) ([]Keyword, error)

	// UpsertArticle inserts a new record or, on a link conflict, refreshes
	// score, signal and keyword on the stored one, backfilling source and
	// published time only when previously absent. Reports whether a new
	// record was created.
	UpsertArticle(ctx context.Context, a Article) (inserted bool, err error)
	ListArticles(ctx context.Context, f ArticleFilter) ([]Article, int, error)
	MarkAllSeen(ctx context.Context) error
	ToggleSaved(ctx context.Context, id int64) (saved bool, err error)

	RecordScanStart(ctx context.Context, startedAt time.Time) (int64, error)
	RecordScanEnd(ctx context.Context, id int64, finishedAt time.Time, newArticles, totalArticles int, success bool, errMsg string) error
	ListScans(ctx context.Context, limit int) ([]Scan, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Counts(ctx context.Context) (Counts, error)
}
