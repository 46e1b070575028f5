// Package ingestion implements the batch attendance-event pipeline: schema
// check, dedupe by event id, insert, device last-seen bump, hook emission,
// and audit — per event, never aborting the batch on one event's failure.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/babur-hussain/toon-fleet-server/internal/audit"
	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/hooks"
	"github.com/babur-hussain/toon-fleet-server/internal/toon"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

// requiredTokens is the schema-check floor for every event in a batch.
var requiredTokens = []string{"E1", "A1", "A2", "A3", "D1"}

// maxWorkers bounds the fan-out used to process one batch's events
// concurrently; results are reassembled in input order regardless of
// completion order.
const maxWorkers = 8

// Engine processes ingestion batches.
type Engine struct {
	db    *db.DB
	bus   *hooks.Bus
	audit *audit.Recorder
}

// New constructs an Engine.
func New(handle *db.DB, bus *hooks.Bus, recorder *audit.Recorder) *Engine {
	return &Engine{db: handle, bus: bus, audit: recorder}
}

// EventResult is the per-event outcome reported back on the wire.
type EventResult struct {
	EventID string
	Status  types.EventStatus
	Reason  string
}

// ProcessBatch decodes body as a batch of payloads (each fragment in its
// detected dialect, legacy or typed) and processes each
// event independently, preserving input order in the returned slice.
func (e *Engine) ProcessBatch(ctx context.Context, tenantID string, body string) ([]EventResult, error) {
	payloads, err := toon.DecodeBatch(body)
	if err != nil {
		return nil, err
	}

	chunks := lo.Chunk(payloads, maxWorkers)
	results := make([]EventResult, 0, len(payloads))

	offset := 0
	for _, chunk := range chunks {
		chunkResults := make([]EventResult, len(chunk))
		done := make(chan struct{}, len(chunk))
		for i, p := range chunk {
			go func(i int, p toon.Payload) {
				defer func() { done <- struct{}{} }()
				chunkResults[i] = e.processOne(ctx, tenantID, p)
			}(i, p)
		}
		for range chunk {
			<-done
		}
		results = append(results, chunkResults...)
		offset += len(chunk)
	}
	_ = offset
	return results, nil
}

func (e *Engine) processOne(ctx context.Context, tenantID string, p toon.Payload) EventResult {
	rawToon := toon.EncodeLegacy(p)

	if missing := p.MissingRequired(requiredTokens...); len(missing) > 0 {
		result := EventResult{EventID: p.GetString("A1"), Status: types.EventRejected, Reason: fmt.Sprintf("missing_token:%s", missing[0])}
		e.recordInvalid(ctx, tenantID, p, rawToon, result, "missing required token")
		return result
	}

	eventType := types.EventType(p.GetString("A2"))
	if !eventType.Valid() {
		result := EventResult{EventID: p.GetString("A1"), Status: types.EventRejected, Reason: "invalid_event_type"}
		e.recordInvalid(ctx, tenantID, p, rawToon, result, "invalid event type")
		return result
	}

	ts, err := time.Parse(time.RFC3339, p.GetString("A3"))
	if err != nil {
		result := EventResult{EventID: p.GetString("A1"), Status: types.EventRejected, Reason: "invalid_timestamp_format"}
		e.recordInvalid(ctx, tenantID, p, rawToon, result, "invalid timestamp")
		return result
	}

	var location *types.Geolocation
	if loc, ok := p.GetObject("L1"); ok {
		lat, latOK := loc["lat"].(float64)
		lng, lngOK := loc["lng"].(float64)
		if !latOK || !lngOK {
			result := EventResult{EventID: p.GetString("A1"), Status: types.EventRejected, Reason: "invalid_location_format"}
			e.recordInvalid(ctx, tenantID, p, rawToon, result, "location missing lat/lng")
			return result
		}
		accuracy, _ := loc["accuracy"].(float64)
		location = &types.Geolocation{Lat: lat, Lng: lng, Accuracy: accuracy}
	}

	eventID := p.GetString("A1")
	deviceID := p.GetString("D1")

	var existing db.EventRow
	err = e.db.Conn.Where("event_id = ?", eventID).First(&existing).Error
	if err == nil {
		result := EventResult{EventID: eventID, Status: types.EventDuplicate}
		e.audit.Record(audit.Entry{TenantID: tenantID, DeviceID: deviceID, Endpoint: "/devices/events", RawPayload: rawToon, Response: resultToken(result), Status: string(types.EventDuplicate)})
		if e.bus != nil {
			e.bus.Emit(ctx, &types.DuplicateEvent{EventID: eventID, DeviceID: deviceID, TenantID: tenantID, OccurredAt: time.Now().UTC()})
		}
		return result
	}
	if err != gorm.ErrRecordNotFound {
		result := EventResult{EventID: eventID, Status: types.EventRejected, Reason: "internal_error"}
		e.audit.Record(audit.Entry{TenantID: tenantID, DeviceID: deviceID, Endpoint: "/devices/events", RawPayload: rawToon, Response: resultToken(result), Status: "internal_error"})
		return result
	}

	event := types.AttendanceEvent{
		EventID:      eventID,
		TenantID:     tenantID,
		EmployeeID:   p.GetString("E1"),
		EventType:    eventType,
		Timestamp:    ts,
		DeviceID:     deviceID,
		Location:     location,
		Scores:       scoresFromPayload(p),
		Break:        breakFromPayload(p),
		ConsentToken: p.GetString("CT1"),
		Signature:    p.GetString("SIG1"),
		RawPayload:   rawToon,
		Status:       types.EventProcessed,
		ReceivedAt:   time.Now().UTC(),
	}

	row := eventRowFromDomain(event)
	if err := e.db.Conn.Create(&row).Error; err != nil {
		if e.isDuplicateInsert(err, eventID) {
			result := EventResult{EventID: eventID, Status: types.EventDuplicate}
			e.audit.Record(audit.Entry{TenantID: tenantID, DeviceID: deviceID, Endpoint: "/devices/events", RawPayload: rawToon, Response: resultToken(result), Status: string(types.EventDuplicate)})
			if e.bus != nil {
				e.bus.Emit(ctx, &types.DuplicateEvent{EventID: eventID, DeviceID: deviceID, TenantID: tenantID, OccurredAt: time.Now().UTC()})
			}
			return result
		}
		result := EventResult{EventID: eventID, Status: types.EventRejected, Reason: "internal_error"}
		e.audit.Record(audit.Entry{TenantID: tenantID, DeviceID: deviceID, Endpoint: "/devices/events", RawPayload: rawToon, Response: resultToken(result), Status: "internal_error"})
		return result
	}

	e.db.Conn.Model(&db.DeviceRow{}).Where("device_id = ?", deviceID).Update("last_seen_at", time.Now().UTC())

	result := EventResult{EventID: eventID, Status: types.EventProcessed}
	e.audit.Record(audit.Entry{TenantID: tenantID, DeviceID: deviceID, Endpoint: "/devices/events", RawPayload: rawToon, Response: resultToken(result), Status: string(types.EventProcessed)})

	if e.bus != nil {
		e.bus.Emit(ctx, &types.EventIngested{EventID: eventID, DeviceID: deviceID, TenantID: tenantID, OccurredAt: time.Now().UTC()})
	}
	return result
}

// isDuplicateInsert tells a genuine unique-constraint violation on
// event_id — the losing side of a concurrent double-submit race — apart
// from a real storage error. gorm's TranslateError maps the former to
// gorm.ErrDuplicatedKey on both drivers this package runs against; the
// re-query is a belt-and-suspenders check for any driver error shape that
// translation misses.
func (e *Engine) isDuplicateInsert(err error, eventID string) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var existing db.EventRow
	return e.db.Conn.Where("event_id = ?", eventID).First(&existing).Error == nil
}

func (e *Engine) recordInvalid(ctx context.Context, tenantID string, p toon.Payload, rawToon string, result EventResult, reason string) {
	deviceID := p.GetString("D1")
	e.audit.Record(audit.Entry{TenantID: tenantID, DeviceID: deviceID, Endpoint: "/devices/events", RawPayload: rawToon, Response: resultToken(result), Status: "rejected"})
	if e.bus != nil {
		e.bus.Emit(ctx, &types.InvalidEvent{DeviceID: deviceID, TenantID: tenantID, Reason: reason, OccurredAt: time.Now().UTC()})
	}
}

func resultToken(r EventResult) string {
	out := "A1:" + r.EventID + "|S1:" + string(r.Status)
	if r.Reason != "" {
		out += "|R1:" + r.Reason
	}
	return out
}

func scoresFromPayload(p toon.Payload) *types.Scores {
	obj, ok := p.GetObject("SC1")
	if !ok {
		return nil
	}
	scores := &types.Scores{}
	if v, ok := obj["face"].(float64); ok {
		scores.Face = &v
	}
	if v, ok := obj["fingerprint"].(float64); ok {
		scores.Fingerprint = &v
	}
	if v, ok := obj["liveness"].(float64); ok {
		scores.Liveness = &v
	}
	if v, ok := obj["quality"].(float64); ok {
		scores.Quality = &v
	}
	return scores
}

func breakFromPayload(p toon.Payload) *types.BreakInfo {
	obj, ok := p.GetObject("BR1")
	if !ok {
		return nil
	}
	info := &types.BreakInfo{}
	if v, ok := obj["type"].(string); ok {
		info.Type = v
	}
	if v, ok := obj["duration_seconds"].(float64); ok {
		info.DurationS = int64(v)
	}
	if v, ok := obj["over_break"].(bool); ok {
		info.OverBreak = v
	}
	return info
}

func eventRowFromDomain(e types.AttendanceEvent) db.EventRow {
	locationJSON, scoresJSON, breakJSON := "", "", ""
	if e.Location != nil {
		locationJSON = fmt.Sprintf("lat=%v,lng=%v,accuracy=%v", e.Location.Lat, e.Location.Lng, e.Location.Accuracy)
	}
	if e.Scores != nil {
		scoresJSON = fmt.Sprintf("%+v", *e.Scores)
	}
	if e.Break != nil {
		breakJSON = fmt.Sprintf("%+v", *e.Break)
	}
	return db.EventRow{
		EventID:      e.EventID,
		TenantID:     e.TenantID,
		EmployeeID:   e.EmployeeID,
		EventType:    string(e.EventType),
		Timestamp:    e.Timestamp,
		DeviceID:     e.DeviceID,
		LocationJSON: locationJSON,
		ScoresJSON:   scoresJSON,
		BreakJSON:    breakJSON,
		ConsentToken: e.ConsentToken,
		Signature:    e.Signature,
		RawPayload:   e.RawPayload,
		Status:       string(e.Status),
		Reason:       e.Reason,
		ReceivedAt:   e.ReceivedAt,
	}
}
