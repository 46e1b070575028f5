// Package devicemanagement owns the fleet-of-devices lifecycle:
// registration, heartbeat, revocation, and tenant-scoped lookup/listing. It
// is the system of record the attestation middleware and command/firmware
// loop both read from.
package devicemanagement

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/babur-hussain/toon-fleet-server/internal/commandqueue"
	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/hooks"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

var tracer = otel.Tracer("toon-fleet-server/devicemanagement")

var ErrDeviceNotFound = fmt.Errorf("device not found")
var ErrDeviceAlreadyExists = fmt.Errorf("device already exists")
var ErrDeviceRevoked = fmt.Errorf("device revoked")

// Service is the device fleet store. Get and List filter by tenant;
// Register, Heartbeat, Revoke and BulkRevoke address a device by device_id
// alone and do not check its tenant.
type Service struct {
	db       *db.DB
	bus      *hooks.Bus
	commands *commandqueue.Service
}

// New constructs a Service. commands may be nil if the command queue is
// wired in later (e.g. during staged startup); Revoke only expires pending
// commands when it is set.
func New(handle *db.DB, bus *hooks.Bus, commands *commandqueue.Service) *Service {
	return &Service{db: handle, bus: bus, commands: commands}
}

// Register creates a device, or re-registers an existing one (same
// device_id) with updated type/key/capabilities — re-registration is
// idempotent and does not reset LastSeenAt.
func (s *Service) Register(ctx context.Context, d types.Device) (types.Device, error) {
	_, span := tracer.Start(ctx, "Register")
	defer span.End()

	now := time.Now().UTC()
	row := db.DeviceFromDomain(d)

	var existing db.DeviceRow
	err := s.db.Conn.Where("device_id = ?", d.DeviceID).First(&existing).Error
	switch {
	case err == nil:
		row.CreatedAt = existing.CreatedAt
		row.LastSeenAt = existing.LastSeenAt
		row.UpdatedAt = now
		if row.Status == "" {
			row.Status = existing.Status
		}
		if err := s.db.Conn.Save(&row).Error; err != nil {
			return types.Device{}, err
		}
	case gorm.ErrRecordNotFound == err:
		row.Status = string(types.DeviceActive)
		row.CreatedAt = now
		row.UpdatedAt = now
		row.LastSeenAt = now
		if err := s.db.Conn.Create(&row).Error; err != nil {
			return types.Device{}, err
		}
	default:
		return types.Device{}, err
	}

	result := row.ToDomain()
	if s.bus != nil {
		s.bus.Emit(ctx, &types.DeviceRegistered{
			DeviceID:   result.DeviceID,
			TenantID:   result.TenantID,
			DeviceType: result.DeviceType,
			OccurredAt: now,
		})
	}
	return result, nil
}

// Get returns a device scoped to tenantID ("" to skip tenant scoping, for
// internal callers that have already authorized the request otherwise).
func (s *Service) Get(ctx context.Context, deviceID, tenantID string) (types.Device, error) {
	var row db.DeviceRow
	q := s.db.Conn.Where("device_id = ?", deviceID)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if err := q.First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.Device{}, ErrDeviceNotFound
		}
		return types.Device{}, err
	}
	return row.ToDomain(), nil
}

// Heartbeat updates last_seen_at and optionally the reported firmware
// version, returning the refreshed device.
func (s *Service) Heartbeat(ctx context.Context, deviceID string, firmwareVersion string) (types.Device, error) {
	device, err := s.Get(ctx, deviceID, "")
	if err != nil {
		return types.Device{}, err
	}
	if device.Status == types.DeviceRevoked {
		return types.Device{}, ErrDeviceRevoked
	}

	now := time.Now().UTC()
	updates := map[string]any{"last_seen_at": now, "updated_at": now}
	if firmwareVersion != "" {
		updates["firmware_version"] = firmwareVersion
	}
	if err := s.db.Conn.Model(&db.DeviceRow{}).Where("device_id = ?", deviceID).Updates(updates).Error; err != nil {
		return types.Device{}, err
	}

	device.LastSeenAt = now
	if firmwareVersion != "" {
		device.FirmwareVersion = firmwareVersion
	}

	if s.bus != nil {
		s.bus.Emit(ctx, &types.DeviceHeartbeat{DeviceID: deviceID, TenantID: device.TenantID, OccurredAt: now})
	}
	return device, nil
}

// Revoke marks a device revoked, terminal. Any of its still-pending
// commands are expired in the same pass — a revoked device will never poll
// again to complete them (Open Question (a), resolved this way).
func (s *Service) Revoke(ctx context.Context, deviceID string) error {
	device, err := s.Get(ctx, deviceID, "")
	if err != nil {
		return err
	}

	err = s.db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.DeviceRow{}).
			Where("device_id = ?", deviceID).
			Updates(map[string]any{"status": string(types.DeviceRevoked), "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}
		if s.commands != nil {
			return s.commands.ExpireAllPendingForDeviceTx(tx, deviceID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Emit(ctx, &types.DeviceRevokedEvent{DeviceID: deviceID, TenantID: device.TenantID, OccurredAt: time.Now().UTC()})
	}
	return nil
}

// ListParams narrows List to one tenant and a page window.
type ListParams struct {
	TenantID string
	Offset   uint64
	Limit    uint64
}

// List returns a tenant-scoped page of devices.
func (s *Service) List(ctx context.Context, params ListParams) (types.Collection[types.Device], error) {
	limit := params.Limit
	if limit == 0 {
		limit = 50
	}

	var rows []db.DeviceRow
	q := s.db.Conn.Where("tenant_id = ?", params.TenantID)

	var total int64
	if err := q.Model(&db.DeviceRow{}).Count(&total).Error; err != nil {
		return types.Collection[types.Device]{}, err
	}

	if err := q.Offset(int(params.Offset)).Limit(int(limit)).Find(&rows).Error; err != nil {
		return types.Collection[types.Device]{}, err
	}

	devices := make([]types.Device, len(rows))
	for i, r := range rows {
		devices[i] = r.ToDomain()
	}

	return types.Collection[types.Device]{
		Data:       devices,
		Count:      uint64(len(devices)),
		Offset:     params.Offset,
		Limit:      limit,
		TotalCount: uint64(total),
	}, nil
}

// BulkRevoke revokes every device whose ID is in deviceIDs, continuing past
// individual failures and reporting them by device ID.
func (s *Service) BulkRevoke(ctx context.Context, deviceIDs []string) map[string]error {
	results := make(map[string]error, len(deviceIDs))
	for _, id := range deviceIDs {
		results[id] = s.Revoke(ctx, id)
	}
	return results
}
