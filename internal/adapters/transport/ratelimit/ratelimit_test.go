package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPerKey_Burst(t *testing.T) {
	l := NewPerKey(1, 1, 100, time.Hour)

	require.True(t, l.Allow("1.2.3.4"))
	require.False(t, l.Allow("1.2.3.4"))
	// другой ключ не делит квоту
	require.True(t, l.Allow("5.6.7.8"))
}

func TestPerKey_IdleKeyStartsFresh(t *testing.T) {
	l := NewPerKey(1, 1, 100, 10*time.Millisecond)
	now := time.Now()
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	now = now.Add(20 * time.Millisecond)
	require.True(t, l.Allow("a"))
}

func TestPerKey_SweepEvictsIdle(t *testing.T) {
	l := NewPerKey(1, 1, 100, 10*time.Millisecond)
	require.True(t, l.Allow("a"))
	require.Equal(t, 1, l.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Sweep(ctx)

	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPerKey_CacheBound(t *testing.T) {
	l := NewPerKey(1, 1, 2, time.Hour)
	for _, k := range []string{"a", "b", "c"} {
		require.True(t, l.Allow(k))
	}
	require.Equal(t, 2, l.Len())
}
