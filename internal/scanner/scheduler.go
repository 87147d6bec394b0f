package scanner

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/deusflow/trendhunter/internal/logger"
	"github.com/deusflow/trendhunter/internal/storage"
)

const (
	// pollInterval is how often the scheduler re-reads its settings. It
	// bounds how quickly toggling auto-scan takes effect, not how often
	// scans run.
	pollInterval = 8 * time.Second

	MinIntervalMinutes = 2
	MaxIntervalMinutes = 180
)

// ClampInterval parses an interval-minutes setting and clamps it to the
// allowed range. Unparsable input falls back to the default of 10 minutes.
func ClampInterval(value string) int {
	minutes, err := strconv.Atoi(value)
	if err != nil {
		minutes = 10
	}
	if minutes < MinIntervalMinutes {
		minutes = MinIntervalMinutes
	}
	if minutes > MaxIntervalMinutes {
		minutes = MaxIntervalMinutes
	}
	return minutes
}

// Scheduler is the perpetual auto-scan loop. Each tick it reads the enable
// flag and interval from settings and triggers the orchestrator when the
// configured interval has elapsed since the last successful scan, manual or
// automatic. Tick failures are logged and swallowed; the loop only stops
// with its context.
type Scheduler struct {
	store        storage.Store
	orchestrator *Orchestrator
	coordinator  *Coordinator
	now          func() time.Time
}

func NewScheduler(store storage.Store, orchestrator *Orchestrator, coordinator *Coordinator) *Scheduler {
	return &Scheduler{
		store:        store,
		orchestrator: orchestrator,
		coordinator:  coordinator,
		now:          time.Now,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("auto-scan scheduler started", "poll", pollInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("auto-scan scheduler stopped")
			return
		case <-time.After(pollInterval):
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	enabled, err := s.store.GetSetting(ctx, storage.SettingAutoScan)
	if err != nil {
		logger.Warn("scheduler: read auto-scan flag", "error", err)
		return
	}
	if enabled != "1" {
		return
	}

	intervalSetting, err := s.store.GetSetting(ctx, storage.SettingIntervalMinutes)
	if err != nil {
		logger.Warn("scheduler: read interval", "error", err)
		return
	}
	interval := time.Duration(ClampInterval(intervalSetting)) * time.Minute

	if !s.due(interval) {
		return
	}

	if _, err := s.orchestrator.Scan(ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
		logger.Warn("scheduled scan failed", "error", err)
	}
}

// due reports whether enough time has passed since the last successful scan.
// A never-scanned process is always due.
func (s *Scheduler) due(interval time.Duration) bool {
	last := s.coordinator.LastScan()
	if last.IsZero() {
		return true
	}
	return s.now().Sub(last) >= interval
}
