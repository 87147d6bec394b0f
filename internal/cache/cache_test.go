package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissAndHit(t *testing.T) {
	c := New[string]()

	_, ok := c.Get("k", time.Minute)
	assert.False(t, ok)

	c.Set("k", "v")
	got, ok := c.Get("k", time.Minute)
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestGetExpires(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	c := New[int]()
	c.SetClock(func() time.Time { return now })

	c.Set("k", 7)

	now = now.Add(59 * time.Second)
	_, ok := c.Get("k", time.Minute)
	assert.True(t, ok, "still within TTL")

	now = now.Add(time.Second)
	_, ok = c.Get("k", time.Minute)
	assert.False(t, ok, "entry at exactly TTL age is stale")
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c := New[int]()
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrCompute("k", time.Minute, false, compute)
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	}
	assert.Equal(t, 1, calls, "fresh entries must not recompute")
}

func TestGetOrComputeForceRefresh(t *testing.T) {
	c := New[int]()
	calls := 0
	compute := func() (int, error) {
		calls++
		return calls, nil
	}

	got, err := c.GetOrCompute("k", time.Minute, false, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = c.GetOrCompute("k", time.Minute, true, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, got, "forceRefresh bypasses a fresh entry")
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New[int]()
	boom := errors.New("upstream down")
	calls := 0

	_, err := c.GetOrCompute("k", time.Minute, false, func() (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := c.GetOrCompute("k", time.Minute, false, func() (int, error) {
		calls++
		return 9, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, got)
	assert.Equal(t, 2, calls, "a failed compute must not poison the key")
}
