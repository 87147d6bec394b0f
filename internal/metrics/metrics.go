package metrics

import (
	"sync"
	"time"
)

// Metrics aggregates scan-cycle counters for the /metrics and /health
// endpoints. Process-local; restarts reset it, the audit trail in storage is
// the durable record.
type Metrics struct {
	mu sync.RWMutex

	ScansRun          int64
	ScansFailed       int64
	ScansRejected     int64
	ArticlesProcessed int64
	NewArticles       int64
	TrendHits         int64

	LastScanDuration time.Duration
	LastScanTime     time.Time
	LastErrorTime    time.Time
	LastError        string
	IsHealthy        bool
}

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

// RecordScan accounts one completed scan cycle.
func (m *Metrics) RecordScan(duration time.Duration, processed, created, trendHits int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ScansRun++
	m.ArticlesProcessed += int64(processed)
	m.NewArticles += int64(created)
	m.TrendHits += int64(trendHits)
	m.LastScanDuration = duration
	m.LastScanTime = time.Now()
	m.IsHealthy = true
}

// RecordFailure accounts a scan that aborted.
func (m *Metrics) RecordFailure(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ScansFailed++
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// RecordRejected accounts an attempt refused by the single-flight guard.
func (m *Metrics) RecordRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScansRejected++
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"scans_run":             m.ScansRun,
		"scans_failed":          m.ScansFailed,
		"scans_rejected":        m.ScansRejected,
		"articles_processed":    m.ArticlesProcessed,
		"new_articles":          m.NewArticles,
		"trend_hits":            m.TrendHits,
		"last_scan_duration_ms": m.LastScanDuration.Milliseconds(),
		"last_scan_time":        m.LastScanTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"is_healthy":            m.IsHealthy,
	}
}
