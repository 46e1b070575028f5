// Package audit implements the append-only log of inbound device payloads:
// one row per request, storing the verbatim bytes, the emitted response,
// and the terminal status, independent of whether the request ultimately
// succeeded.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/babur-hussain/toon-fleet-server/internal/db"
)

// Recorder writes audit rows. Record returns the insert error to its
// caller, which decides whether an audit failure affects the request.
type Recorder struct {
	db *db.DB
}

// New constructs a Recorder backed by handle.
func New(handle *db.DB) *Recorder {
	return &Recorder{db: handle}
}

// Entry is one append-only audit row.
type Entry struct {
	TenantID   string
	DeviceID   string
	Endpoint   string
	RawPayload string
	Response   string
	Status     string
	ReceivedAt time.Time
}

// Record writes entry and returns the generated audit_id, or an error if
// the insert itself failed.
func (r *Recorder) Record(entry Entry) (string, error) {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}

	row := db.AuditRow{
		AuditID:    uuid.NewString(),
		TenantID:   entry.TenantID,
		DeviceID:   entry.DeviceID,
		Endpoint:   entry.Endpoint,
		RawPayload: entry.RawPayload,
		Response:   entry.Response,
		Status:     entry.Status,
		ReceivedAt: entry.ReceivedAt,
	}

	if err := r.db.Conn.Create(&row).Error; err != nil {
		return "", err
	}
	return row.AuditID, nil
}
