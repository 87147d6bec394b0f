package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeExhaustsBudget(t *testing.T) {
	l := New(2, time.Hour)

	require.NoError(t, l.Take())
	require.NoError(t, l.Take())
	assert.Error(t, l.Take())
	assert.Equal(t, 0, l.Remaining())
}

func TestWindowReset(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	l := New(1, time.Hour)
	l.SetClock(func() time.Time { return now })

	require.NoError(t, l.Take())
	assert.Error(t, l.Take())

	now = now.Add(2 * time.Hour)
	assert.NoError(t, l.Take(), "budget resets after the window")
}

func TestZeroMaxIsUnlimited(t *testing.T) {
	l := New(0, time.Hour)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Take())
	}
	assert.Equal(t, -1, l.Remaining())
}
