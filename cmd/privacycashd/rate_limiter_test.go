package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewKeyRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("alice"))
	require.True(t, l.Allow("alice"))
	require.False(t, l.Allow("alice"))
	require.True(t, l.Allow("bob"))

	now = now.Add(time.Second)
	require.True(t, l.Allow("alice"))
	require.False(t, l.Allow("alice"))
}

func TestKeyRateLimiterSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewKeyRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	l.Allow("alice")
	now = now.Add(6 * time.Minute)
	l.Allow("bob")
	require.Equal(t, 2, l.Sweep())

	now = now.Add(5 * time.Minute)
	require.Equal(t, 1, l.Sweep())

	now = now.Add(time.Hour)
	require.Zero(t, l.Sweep())
}
