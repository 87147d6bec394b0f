package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/trendhunter/internal/storage"
)

func TestClampInterval(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"10", 10},
		{"2", 2},
		{"180", 180},
		{"1", 2},
		{"0", 2},
		{"-5", 2},
		{"181", 180},
		{"100000", 180},
		{"", 10},
		{"abc", 10},
		{"7.5", 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampInterval(tt.in), "input %q", tt.in)
	}
}

func TestDue(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	coordinator := NewCoordinator()
	s := NewScheduler(storage.NewMemory(), nil, coordinator)
	s.now = func() time.Time { return now }

	assert.True(t, s.due(10*time.Minute), "never scanned means due")

	coordinator.MarkScanned(now.Add(-5 * time.Minute))
	assert.False(t, s.due(10*time.Minute))

	coordinator.MarkScanned(now.Add(-10 * time.Minute))
	assert.True(t, s.due(10*time.Minute), "exactly one interval elapsed is due")
}

func TestTickRespectsAutoScanFlag(t *testing.T) {
	f := newFixture(t, newsFeed("Earthquake hits the region"), trendingFeed)
	ctx := context.Background()
	require.NoError(t, f.store.AddKeyword(ctx, "earthquake", time.Now()))

	s := NewScheduler(f.store, f.orchestrator, f.coordinator)

	// Disabled: no scan happens.
	s.tick(ctx)
	scans, err := f.store.ListScans(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, scans)

	// Enabled: the tick triggers a scan.
	require.NoError(t, f.store.SetSetting(ctx, storage.SettingAutoScan, "1"))
	s.tick(ctx)
	scans, err = f.store.ListScans(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, scans, 1)
}

func TestTickHonorsInterval(t *testing.T) {
	f := newFixture(t, newsFeed("Earthquake hits the region"), trendingFeed)
	ctx := context.Background()
	require.NoError(t, f.store.AddKeyword(ctx, "earthquake", time.Now()))
	require.NoError(t, f.store.SetSetting(ctx, storage.SettingAutoScan, "1"))

	s := NewScheduler(f.store, f.orchestrator, f.coordinator)
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.tick(ctx)
	scans, err := f.store.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, scans, 1)

	// Within the interval nothing new runs; the scan above marked the
	// shared timestamp.
	f.coordinator.MarkScanned(now.Add(-time.Minute))
	s.tick(ctx)
	scans, err = f.store.ListScans(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, scans, 1)

	// Once the interval elapses the next tick scans again.
	f.coordinator.MarkScanned(now.Add(-10 * time.Minute))
	s.tick(ctx)
	scans, err = f.store.ListScans(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, scans, 2)
}

func TestCoordinatorSingleFlight(t *testing.T) {
	c := NewCoordinator()

	require.True(t, c.TryBegin())
	assert.True(t, c.Scanning())
	assert.False(t, c.TryBegin(), "second claim fails while held")

	c.End()
	assert.False(t, c.Scanning())
	assert.True(t, c.TryBegin(), "slot is reusable after release")
	c.End()
}
