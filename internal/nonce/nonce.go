// Package nonce implements the at-most-once replay guard every attested
// device request passes through: check_and_mark(device_id, nonce) ->
// accepted | reused.
package nonce

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"

	"github.com/babur-hussain/toon-fleet-server/internal/db"
)

// TTL is how long an accepted nonce remains reserved for its device.
const TTL = 24 * time.Hour

// cacheSize bounds the per-process LRU accelerator; it is a negative cache
// only — a miss here still checks the database before deciding "reused".
const cacheSize = 1000

// ErrReused is returned by CheckAndMark when the (device_id, nonce) pair was
// already accepted and has not yet expired.
var ErrReused = errors.New("nonce_reuse")

// Store is the persistent, accelerated nonce guard.
type Store struct {
	db    *db.DB
	cache *lru.Cache[string, struct{}]
}

// New constructs a Store backed by handle. The in-memory cache is sized
// independently of any device count; it is purely a per-process hint, never
// authoritative, so every replica can run its own.
func New(handle *db.DB) (*Store, error) {
	cache, err := lru.New[string, struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{db: handle, cache: cache}, nil
}

// hashKey computes the storage key: sha256(nonce + device_id), hex encoded.
// Binding the device ID into the hash means two devices may independently
// reuse the same nonce value without colliding.
func hashKey(deviceID, nonceValue string) string {
	sum := sha256.Sum256([]byte(nonceValue + deviceID))
	return hex.EncodeToString(sum[:])
}

// CheckAndMark attempts to atomically reserve nonceValue for deviceID. A
// nonce this process has already accepted is found in the cache and
// rejected without a database round-trip; cache entries are evicted by size
// only, not by TTL. Every cache miss is decided by a lookup-then-insert
// inside one database transaction.
func (s *Store) CheckAndMark(deviceID, nonceValue string) error {
	key := hashKey(deviceID, nonceValue)

	if _, hit := s.cache.Get(key); hit {
		return ErrReused
	}

	now := time.Now().UTC()
	row := db.NonceRow{
		NonceHash: key,
		DeviceID:  deviceID,
		ExpiresAt: now.Add(TTL),
	}

	err := s.db.Conn.Transaction(func(tx *gorm.DB) error {
		var existing db.NonceRow
		lookupErr := tx.Where("nonce_hash = ?", key).First(&existing).Error
		switch {
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			return tx.Create(&row).Error
		case lookupErr != nil:
			return lookupErr
		case existing.ExpiresAt.After(now):
			return ErrReused
		default:
			// Expired row left behind by a slow purge sweep: this device_id
			// may reuse the nonce value again.
			return tx.Model(&existing).Updates(map[string]any{"expires_at": row.ExpiresAt}).Error
		}
	})
	if err != nil {
		return err
	}

	s.cache.Add(key, struct{}{})
	return nil
}

// Purge deletes every nonce row past its TTL. Interval is an operational
// knob owned by the caller (see internal/scheduler); correctness of
// CheckAndMark does not depend on how often Purge runs.
func (s *Store) Purge() (int64, error) {
	result := s.db.Conn.Where("expires_at < ?", time.Now().UTC()).Delete(&db.NonceRow{})
	return result.RowsAffected, result.Error
}
