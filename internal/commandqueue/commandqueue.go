// Package commandqueue implements the server-authored command loop (issue,
// poll, acknowledge) and the firmware rollout loop (check, acknowledge),
// each a small state machine over a per-device queue.
package commandqueue

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/babur-hussain/toon-fleet-server/internal/canon"
	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/hooks"
	"github.com/babur-hussain/toon-fleet-server/internal/signing"
	"github.com/babur-hussain/toon-fleet-server/internal/toon"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

var ErrCommandNotFound = errors.New("command not found")
var ErrFirmwareNotFound = errors.New("firmware release not found")

// DefaultExpiry is used when a command is issued without an explicit
// expires_at.
const DefaultExpiry = 24 * time.Hour

// Service implements both halves of the loop; it holds the server's
// signing key so SIG_SERV can be computed at issue time.
type Service struct {
	db         *db.DB
	bus        *hooks.Bus
	serverKey  ed25519.PrivateKey
}

// New constructs a Service. serverPrivateKey signs outgoing commands,
// firmware releases, and download tokens.
func New(handle *db.DB, bus *hooks.Bus, serverPrivateKey ed25519.PrivateKey) *Service {
	return &Service{db: handle, bus: bus, serverKey: serverPrivateKey}
}

func (s *Service) sign(canonical string) string {
	return signing.Sign(s.serverKey, canonical)
}

// Issue creates a pending command for deviceID, computing SIG_SERV over its
// canonical fields before storing it. The command becomes visible on the
// device's next poll.
func (s *Service) Issue(ctx context.Context, tenantID, deviceID, name, payload string, priority int, expiresAt time.Time) (types.Command, error) {
	if expiresAt.IsZero() {
		expiresAt = time.Now().UTC().Add(DefaultExpiry)
	}

	cmd := types.Command{
		CommandID: uuid.NewString(),
		TenantID:  tenantID,
		DeviceID:  deviceID,
		Name:      name,
		Payload:   payload,
		Priority:  priority,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: expiresAt,
		Status:    types.CommandPending,
	}
	cmd.ServerSignature = s.sign(commandCanonical(cmd))

	row := db.CommandFromDomain(cmd)
	if err := s.db.Conn.Create(&row).Error; err != nil {
		return types.Command{}, err
	}

	if s.bus != nil {
		s.bus.Emit(ctx, &types.DeviceCommand{
			DeviceID:   deviceID,
			TenantID:   tenantID,
			CommandID:  cmd.CommandID,
			Name:       name,
			OccurredAt: cmd.IssuedAt,
		})
	}
	return cmd, nil
}

// commandCanonical renders a command's signable fields through the same
// canonicalizer used for device-originated payloads, so devices can verify
// SIG_SERV with the identical algorithm they use for SIG1.
func commandCanonical(c types.Command) string {
	return canon.String([]toon.Token{
		{Key: "CMD1", Value: c.CommandID},
		{Key: "CMDN", Value: c.Name},
		{Key: "CMDP", Value: c.Payload},
		{Key: "CMDPRI", Value: float64(c.Priority)},
		{Key: "D1", Value: c.DeviceID},
		{Key: "EXP", Value: c.ExpiresAt.UTC().Format(time.RFC3339)},
	})
}

// expireDue transitions any pending command past its expiry to expired.
// Called opportunistically from Poll; the scheduled sweep uses ExpireOverdue.
func (s *Service) expireDue(tx *gorm.DB, deviceID string) error {
	return tx.Model(&db.CommandRow{}).
		Where("device_id = ? AND status = ? AND expires_at < ?", deviceID, string(types.CommandPending), time.Now().UTC()).
		Update("status", string(types.CommandExpired)).Error
}

// Poll returns the device's pending commands ordered by (priority desc,
// issued_at asc), first expiring anything past its deadline.
func (s *Service) Poll(ctx context.Context, deviceID string) ([]types.Command, error) {
	var commands []types.Command
	err := s.db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := s.expireDue(tx, deviceID); err != nil {
			return err
		}

		var rows []db.CommandRow
		if err := tx.Where("device_id = ? AND status = ?", deviceID, string(types.CommandPending)).Find(&rows).Error; err != nil {
			return err
		}

		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Priority != rows[j].Priority {
				return rows[i].Priority > rows[j].Priority
			}
			return rows[i].IssuedAt.Before(rows[j].IssuedAt)
		})

		commands = make([]types.Command, len(rows))
		for i, r := range rows {
			commands[i] = r.ToDomain()
		}
		return nil
	})
	return commands, err
}

// Acknowledge transitions commandID to completed on its first verified ack;
// subsequent acks for the same command are idempotent no-ops that still
// return success.
func (s *Service) Acknowledge(ctx context.Context, commandID, ackStatus, ackMessage string, executionTimeMs int64, rawAck string) (types.Command, error) {
	var result types.Command
	err := s.db.Conn.Transaction(func(tx *gorm.DB) error {
		var row db.CommandRow
		if err := tx.Where("command_id = ?", commandID).First(&row).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrCommandNotFound
			}
			return err
		}

		if row.Status == string(types.CommandCompleted) {
			result = row.ToDomain()
			return nil
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":            string(types.CommandCompleted),
			"completed_at":      now,
			"ack_status":        ackStatus,
			"ack_message":       ackMessage,
			"execution_time_ms": executionTimeMs,
			"raw_ack":           rawAck,
		}
		// Conditioned on status = pending so only the first of two
		// concurrently-committing acks actually lands; the loser falls
		// through to the re-fetch below instead of clobbering completed_at.
		tx2 := tx.Model(&row).
			Where("command_id = ? AND status = ?", commandID, string(types.CommandPending)).
			Updates(updates)
		if tx2.Error != nil {
			return tx2.Error
		}
		if tx2.RowsAffected == 0 {
			if err := tx.Where("command_id = ?", commandID).First(&row).Error; err != nil {
				return err
			}
			result = row.ToDomain()
			return nil
		}

		row.Status = string(types.CommandCompleted)
		row.CompletedAt = &now
		row.AckStatus = ackStatus
		row.AckMessage = ackMessage
		row.ExecutionTimeMs = executionTimeMs
		row.RawAck = rawAck
		result = row.ToDomain()
		return nil
	})
	if err != nil {
		return types.Command{}, err
	}

	if s.bus != nil {
		s.bus.Emit(ctx, &types.CommandAcknowledged{
			DeviceID:   result.DeviceID,
			TenantID:   result.TenantID,
			CommandID:  result.CommandID,
			AckStatus:  ackStatus,
			OccurredAt: time.Now().UTC(),
		})
	}
	return result, nil
}

// ExpireAllPendingForDeviceTx expires every pending command for deviceID
// within an already-open transaction (used by devicemanagement.Revoke so
// device revocation and command expiry commit atomically).
func (s *Service) ExpireAllPendingForDeviceTx(tx *gorm.DB, deviceID string) error {
	return tx.Model(&db.CommandRow{}).
		Where("device_id = ? AND status = ?", deviceID, string(types.CommandPending)).
		Update("status", string(types.CommandExpired)).Error
}

// ExpireOverdue is the periodic sweep: expires every pending command, across
// all devices, past its expires_at. Correctness does not depend on this
// running promptly; Poll already expires opportunistically per device.
func (s *Service) ExpireOverdue() (int64, error) {
	result := s.db.Conn.Model(&db.CommandRow{}).
		Where("status = ? AND expires_at < ?", string(types.CommandPending), time.Now().UTC()).
		Update("status", string(types.CommandExpired))
	return result.RowsAffected, result.Error
}

// DeprecateSupersededReleases marks a release deprecated once a newer,
// still-live release exists for the same (device_type, policy_id) pair —
// the periodic counterpart to LatestFirmwareFor always preferring the
// newest row.
func (s *Service) DeprecateSupersededReleases() (int64, error) {
	var releases []db.FirmwareReleaseRow
	if err := s.db.Conn.Where("deprecated_at IS NULL").Order("created_at asc").Find(&releases).Error; err != nil {
		return 0, err
	}

	latestByGroup := map[string]db.FirmwareReleaseRow{}
	for _, r := range releases {
		key := r.DeviceType + "|" + r.PolicyID
		if current, ok := latestByGroup[key]; !ok || r.CreatedAt.After(current.CreatedAt) {
			latestByGroup[key] = r
		}
	}

	var deprecated int64
	now := time.Now().UTC()
	for _, r := range releases {
		key := r.DeviceType + "|" + r.PolicyID
		if r.FirmwareID == latestByGroup[key].FirmwareID {
			continue
		}
		if err := s.db.Conn.Model(&db.FirmwareReleaseRow{}).
			Where("firmware_id = ?", r.FirmwareID).
			Update("deprecated_at", now).Error; err != nil {
			return deprecated, err
		}
		deprecated++
	}
	return deprecated, nil
}

// LatestFirmwareFor returns the most recent non-deprecated release for
// (deviceType, policyID), or ErrFirmwareNotFound if none applies.
func (s *Service) LatestFirmwareFor(deviceType types.DeviceType, policyID string) (types.FirmwareRelease, error) {
	var row db.FirmwareReleaseRow
	q := s.db.Conn.Where("device_type = ? AND deprecated_at IS NULL", string(deviceType))
	if policyID != "" {
		q = q.Where("policy_id = ?", policyID)
	}
	err := q.Order("created_at desc").First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.FirmwareRelease{}, ErrFirmwareNotFound
		}
		return types.FirmwareRelease{}, err
	}
	return row.ToDomain(), nil
}

// DownloadToken is a signed, short-lived claim binding a firmware download
// to one device and release. VerifyDownloadToken checks one; this server
// registers no firmware download route, so no request path calls it.
type DownloadToken struct {
	DeviceID   string
	FirmwareID string
	ExpiresAt  time.Time
}

// DownloadTokenTTL bounds how long a firmware download URL stays valid
// after a firmware/check response.
const DownloadTokenTTL = 15 * time.Minute

type downloadClaims struct {
	DeviceID   string `json:"device_id"`
	FirmwareID string `json:"firmware_id"`
	jwt.RegisteredClaims
}

// SignDownloadToken renders tok as a compact EdDSA-signed JWT suitable for a
// URL query parameter, using the server's Ed25519 key directly.
func (s *Service) SignDownloadToken(tok DownloadToken) string {
	claims := downloadClaims{
		DeviceID:   tok.DeviceID,
		FirmwareID: tok.FirmwareID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.serverKey)
	if err != nil {
		return ""
	}
	return signed
}

// VerifyDownloadToken checks a token string produced by SignDownloadToken
// against the expected device/firmware pair, the server's public key, and
// expiry.
func VerifyDownloadToken(token string, pub ed25519.PublicKey, wantDeviceID, wantFirmwareID string) error {
	var claims downloadClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return pub, nil
	})
	if err != nil {
		return err
	}

	if claims.DeviceID != wantDeviceID || claims.FirmwareID != wantFirmwareID {
		return fmt.Errorf("download token does not match request")
	}
	return nil
}

// AckFirmware updates a device's firmware rollout state; on success it also
// bumps devices.firmware_version, on failure it emits onFirmwareFailure.
func (s *Service) AckFirmware(ctx context.Context, deviceID, firmwareID, ackStatus, detail string) error {
	state := types.FirmwareApplied
	if ackStatus != "ok" {
		state = types.FirmwareFailed
	}

	row := db.DeviceFirmwareStatusRow{
		DeviceID:   deviceID,
		FirmwareID: firmwareID,
		State:      string(state),
		Detail:     detail,
		UpdatedAt:  time.Now().UTC(),
	}

	err := s.db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		if state == types.FirmwareApplied {
			var release db.FirmwareReleaseRow
			if err := tx.Where("firmware_id = ?", firmwareID).First(&release).Error; err != nil {
				return err
			}
			return tx.Model(&db.DeviceRow{}).Where("device_id = ?", deviceID).
				Update("firmware_version", release.Version).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	if state == types.FirmwareFailed && s.bus != nil {
		var tenantID string
		var deviceRow db.DeviceRow
		if err := s.db.Conn.Where("device_id = ?", deviceID).First(&deviceRow).Error; err == nil {
			tenantID = deviceRow.TenantID
		}
		s.bus.Emit(ctx, &types.FirmwareFailure{
			DeviceID:   deviceID,
			TenantID:   tenantID,
			FirmwareID: firmwareID,
			Detail:     detail,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}
