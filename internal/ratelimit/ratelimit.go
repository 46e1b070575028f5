// Package ratelimit implements the fixed-window request cap per
// (device_id, endpoint). Counters are persisted so a server restart never
// grants a free window. An in-memory map remembers windows already known to
// be saturated; a single process-wide golang.org/x/time/rate limiter
// throttles the DB round-trip, and a request it throttles is allowed
// without being counted.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/babur-hussain/toon-fleet-server/internal/db"
)

// ErrRateLimited is returned once an endpoint's window cap is exceeded for a
// device; RetryAfter names the caller-facing RTO hint.
type ErrRateLimited struct {
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate_limit: retry after %s", e.RetryAfter)
}

// Policy is the endpoint-dependent window size and cap, e.g. 100/hour for
// heartbeats.
type Policy struct {
	Window time.Duration
	Cap    int64
}

// Limiter enforces one Policy per endpoint name across all devices.
type Limiter struct {
	db       *db.DB
	policies map[string]Policy

	mu         sync.Mutex
	saturated  map[string]time.Time // "endpoint|device_id" -> window's exclusive end
	accelerate *rate.Limiter        // caps how often any key falls through to the DB
}

// New constructs a Limiter. policies maps endpoint name to its window/cap;
// an endpoint absent from policies is unrestricted.
func New(handle *db.DB, policies map[string]Policy) *Limiter {
	return &Limiter{
		db:         handle,
		policies:   policies,
		saturated:  make(map[string]time.Time),
		accelerate: rate.NewLimiter(rate.Every(time.Millisecond), 1000),
	}
}

// Allow increments the counter for (deviceID, endpoint)'s current window and
// returns ErrRateLimited if the increment pushes it past the policy cap.
// Endpoints with no configured policy always pass.
func (l *Limiter) Allow(deviceID, endpoint string) error {
	policy, ok := l.policies[endpoint]
	if !ok {
		return nil
	}

	now := time.Now().UTC()
	windowStart := now.Truncate(policy.Window)
	key := endpoint + "|" + deviceID

	if until, cached := l.cachedSaturation(key); cached && now.Before(until) {
		return &ErrRateLimited{RetryAfter: until.Sub(now)}
	}

	// Global throttle on the DB round-trip itself. Under a burst against
	// many distinct (device, endpoint) keys at once, this fails open rather
	// than queuing every request behind the same transaction.
	if !l.accelerate.Allow() {
		return nil
	}

	var count int64
	err := l.db.Conn.Transaction(func(tx *gorm.DB) error {
		var row db.RateLimitCounterRow
		lookupErr := tx.Where("device_id = ? AND endpoint = ? AND window_start = ?", deviceID, endpoint, windowStart).
			First(&row).Error

		switch {
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			row = db.RateLimitCounterRow{DeviceID: deviceID, Endpoint: endpoint, WindowStart: windowStart, Count: 1}
			count = 1
			return tx.Create(&row).Error
		case lookupErr != nil:
			return lookupErr
		default:
			count = row.Count + 1
			return tx.Model(&row).
				Where("device_id = ? AND endpoint = ? AND window_start = ?", deviceID, endpoint, windowStart).
				Update("count", count).Error
		}
	})
	if err != nil {
		return err
	}

	if count > policy.Cap {
		until := windowStart.Add(policy.Window)
		l.markSaturated(key, until)
		return &ErrRateLimited{RetryAfter: until.Sub(now)}
	}
	return nil
}

func (l *Limiter) cachedSaturation(key string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.saturated[key]
	return until, ok
}

func (l *Limiter) markSaturated(key string, until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saturated[key] = until
}

// EvictExpiredWindows drops any cached saturation markers whose window has
// since closed, and deletes persisted counters for windows that can no
// longer be queried (operational hygiene; correctness does not depend on
// this running).
func (l *Limiter) EvictExpiredWindows(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	l.mu.Lock()
	for key, until := range l.saturated {
		if until.Before(time.Now().UTC()) {
			delete(l.saturated, key)
		}
	}
	l.mu.Unlock()

	result := l.db.Conn.Where("window_start < ?", cutoff).Delete(&db.RateLimitCounterRow{})
	return result.RowsAffected, result.Error
}
