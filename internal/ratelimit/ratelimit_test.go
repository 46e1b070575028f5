package ratelimit_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/ratelimit"
)

func newLimiter(t *testing.T, policies map[string]ratelimit.Policy) *ratelimit.Limiter {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)
	return ratelimit.New(handle, policies)
}

func TestAllow_UnderCapPasses(t *testing.T) {
	l := newLimiter(t, map[string]ratelimit.Policy{
		"heartbeat": {Window: time.Hour, Cap: 100},
	})
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow("dev-1", "heartbeat"))
	}
}

func TestAllow_OverCapRejectsWithRetryHint(t *testing.T) {
	l := newLimiter(t, map[string]ratelimit.Policy{
		"heartbeat": {Window: time.Hour, Cap: 2},
	})
	require.NoError(t, l.Allow("dev-1", "heartbeat"))
	require.NoError(t, l.Allow("dev-1", "heartbeat"))

	err := l.Allow("dev-1", "heartbeat")
	require.Error(t, err)

	var rl *ratelimit.ErrRateLimited
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfter, time.Duration(0))
}

func TestAllow_IndependentPerDevice(t *testing.T) {
	l := newLimiter(t, map[string]ratelimit.Policy{
		"heartbeat": {Window: time.Hour, Cap: 1},
	})
	require.NoError(t, l.Allow("dev-1", "heartbeat"))
	require.NoError(t, l.Allow("dev-2", "heartbeat"))
}

func TestAllow_UnconfiguredEndpointUnrestricted(t *testing.T) {
	l := newLimiter(t, map[string]ratelimit.Policy{})
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Allow("dev-1", "logs"))
	}
}

func TestEvictExpiredWindows_RemovesOldCounters(t *testing.T) {
	l := newLimiter(t, map[string]ratelimit.Policy{
		"heartbeat": {Window: time.Millisecond, Cap: 1},
	})
	require.NoError(t, l.Allow("dev-1", "heartbeat"))

	time.Sleep(5 * time.Millisecond)
	deleted, err := l.EvictExpiredWindows(time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))
}
