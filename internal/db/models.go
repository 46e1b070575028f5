package db

import (
	"strings"
	"time"

	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

// The row types below are the gorm-tagged persistence shape for every entity
// in the system. They deliberately stay separate from pkg/types so wire
// concerns (capability lists as comma strings, nullable timestamps) never
// leak into the domain model the rest of the server works with.

// Tenant is the top-level scoping boundary; every other row carries a
// TenantID foreign key.
type Tenant struct {
	TenantID  string `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
}

type DeviceRow struct {
	DeviceID        string `gorm:"primaryKey"`
	TenantID        string `gorm:"index"`
	DeviceType      string
	PublicKeyPEM    string
	Capabilities    string // comma-joined types.Capability values
	FirmwareVersion string
	Status          string
	PolicyID        string
	LastSeenAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r DeviceRow) ToDomain() types.Device {
	return types.Device{
		DeviceID:        r.DeviceID,
		TenantID:        r.TenantID,
		DeviceType:      types.DeviceType(r.DeviceType),
		PublicKeyPEM:    r.PublicKeyPEM,
		Capabilities:    splitCapabilities(r.Capabilities),
		FirmwareVersion: r.FirmwareVersion,
		Status:          types.DeviceStatus(r.Status),
		PolicyID:        r.PolicyID,
		LastSeenAt:      r.LastSeenAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func DeviceFromDomain(d types.Device) DeviceRow {
	return DeviceRow{
		DeviceID:        d.DeviceID,
		TenantID:        d.TenantID,
		DeviceType:      string(d.DeviceType),
		PublicKeyPEM:    d.PublicKeyPEM,
		Capabilities:    joinCapabilities(d.Capabilities),
		FirmwareVersion: d.FirmwareVersion,
		Status:          string(d.Status),
		PolicyID:        d.PolicyID,
		LastSeenAt:      d.LastSeenAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func splitCapabilities(s string) []types.Capability {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]types.Capability, len(parts))
	for i, p := range parts {
		out[i] = types.Capability(p)
	}
	return out
}

func joinCapabilities(caps []types.Capability) string {
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

type EventRow struct {
	EventID      string `gorm:"primaryKey"`
	TenantID     string `gorm:"index"`
	EmployeeID   string `gorm:"index"`
	EventType    string
	Timestamp    time.Time
	DeviceID     string `gorm:"index"`
	LocationJSON string
	ScoresJSON   string
	BreakJSON    string
	ConsentToken string
	Signature    string
	RawPayload   string
	Status       string
	Reason       string
	ReceivedAt   time.Time `gorm:"index"`
}

type CommandRow struct {
	CommandID       string `gorm:"primaryKey"`
	TenantID        string `gorm:"index"`
	DeviceID        string `gorm:"index"`
	Name            string
	Payload         string
	Priority        int
	IssuedAt        time.Time
	ExpiresAt       time.Time
	ServerSignature string
	Status          string
	CompletedAt     *time.Time
	AckStatus       string
	AckMessage      string
	ExecutionTimeMs int64
	RawAck          string
}

func (r CommandRow) ToDomain() types.Command {
	return types.Command{
		CommandID:       r.CommandID,
		TenantID:        r.TenantID,
		DeviceID:        r.DeviceID,
		Name:            r.Name,
		Payload:         r.Payload,
		Priority:        r.Priority,
		IssuedAt:        r.IssuedAt,
		ExpiresAt:       r.ExpiresAt,
		ServerSignature: r.ServerSignature,
		Status:          types.CommandStatus(r.Status),
		CompletedAt:     r.CompletedAt,
		AckStatus:       r.AckStatus,
		AckMessage:      r.AckMessage,
		ExecutionTimeMs: r.ExecutionTimeMs,
		RawAck:          r.RawAck,
	}
}

func CommandFromDomain(c types.Command) CommandRow {
	return CommandRow{
		CommandID:       c.CommandID,
		TenantID:        c.TenantID,
		DeviceID:        c.DeviceID,
		Name:            c.Name,
		Payload:         c.Payload,
		Priority:        c.Priority,
		IssuedAt:        c.IssuedAt,
		ExpiresAt:       c.ExpiresAt,
		ServerSignature: c.ServerSignature,
		Status:          string(c.Status),
		CompletedAt:     c.CompletedAt,
		AckStatus:       c.AckStatus,
		AckMessage:      c.AckMessage,
		ExecutionTimeMs: c.ExecutionTimeMs,
		RawAck:          c.RawAck,
	}
}

type FirmwareReleaseRow struct {
	FirmwareID        string `gorm:"primaryKey"`
	TenantID          string `gorm:"index"`
	Version           string
	DeviceType        string
	BundleURLTemplate string
	Checksum          string
	SizeBytes         int64
	PolicyID          string
	ServerSignature   string
	CreatedAt         time.Time
	DeprecatedAt      *time.Time
}

func (r FirmwareReleaseRow) ToDomain() types.FirmwareRelease {
	return types.FirmwareRelease{
		FirmwareID:        r.FirmwareID,
		TenantID:          r.TenantID,
		Version:           r.Version,
		DeviceType:        types.DeviceType(r.DeviceType),
		BundleURLTemplate: r.BundleURLTemplate,
		Checksum:          r.Checksum,
		SizeBytes:         r.SizeBytes,
		PolicyID:          r.PolicyID,
		ServerSignature:   r.ServerSignature,
		CreatedAt:         r.CreatedAt,
		DeprecatedAt:      r.DeprecatedAt,
	}
}

type DeviceFirmwareStatusRow struct {
	DeviceID   string `gorm:"primaryKey"`
	FirmwareID string `gorm:"primaryKey"`
	State      string
	Detail     string
	UpdatedAt  time.Time
}

func (r DeviceFirmwareStatusRow) ToDomain() types.DeviceFirmwareStatus {
	return types.DeviceFirmwareStatus{
		DeviceID:   r.DeviceID,
		FirmwareID: r.FirmwareID,
		State:      types.FirmwareState(r.State),
		Detail:     r.Detail,
		UpdatedAt:  r.UpdatedAt,
	}
}

type AuditRow struct {
	AuditID    string `gorm:"primaryKey"`
	TenantID   string `gorm:"index"`
	DeviceID   string `gorm:"index"`
	Endpoint   string
	RawPayload string
	Response   string
	Status     string
	ReceivedAt time.Time `gorm:"index"`
}

func (r AuditRow) ToDomain() types.AuditRecord {
	return types.AuditRecord{
		AuditID:    r.AuditID,
		TenantID:   r.TenantID,
		DeviceID:   r.DeviceID,
		Endpoint:   r.Endpoint,
		RawPayload: r.RawPayload,
		Response:   r.Response,
		Status:     r.Status,
		ReceivedAt: r.ReceivedAt,
	}
}

type EmployeeRow struct {
	EmployeeID  string `gorm:"primaryKey"`
	TenantID    string `gorm:"index"`
	FullName    string
	ExternalRef string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r EmployeeRow) ToDomain() types.Employee {
	return types.Employee{
		EmployeeID:  r.EmployeeID,
		TenantID:    r.TenantID,
		FullName:    r.FullName,
		ExternalRef: r.ExternalRef,
		Status:      types.EmployeeStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func EmployeeFromDomain(e types.Employee) EmployeeRow {
	return EmployeeRow{
		EmployeeID:  e.EmployeeID,
		TenantID:    e.TenantID,
		FullName:    e.FullName,
		ExternalRef: e.ExternalRef,
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

type ReportRow struct {
	ReportID    string `gorm:"primaryKey"`
	TenantID    string `gorm:"index"`
	Kind        string
	ParamsJSON  string
	Status      string
	Format      string
	RequestedBy string
	RequestedAt time.Time
	ReadyAt     *time.Time
	StorageRef  string
}

func (r ReportRow) ToDomain() types.Report {
	return types.Report{
		ReportID:    r.ReportID,
		TenantID:    r.TenantID,
		Kind:        types.ReportKind(r.Kind),
		ParamsJSON:  r.ParamsJSON,
		Status:      types.ReportStatus(r.Status),
		Format:      r.Format,
		RequestedBy: r.RequestedBy,
		RequestedAt: r.RequestedAt,
		ReadyAt:     r.ReadyAt,
		StorageRef:  r.StorageRef,
	}
}

// NonceRow backs the at-most-once nonce store. NonceHash is
// sha256(nonce+device_id); the unique index is the authoritative replay
// guard, independent of the in-memory LRU accelerator.
type NonceRow struct {
	NonceHash string `gorm:"primaryKey"`
	DeviceID  string `gorm:"index"`
	ExpiresAt time.Time `gorm:"index"`
}

// RateLimitCounterRow is one fixed-window counter for (device_id, endpoint).
type RateLimitCounterRow struct {
	DeviceID    string `gorm:"primaryKey"`
	Endpoint    string `gorm:"primaryKey"`
	WindowStart time.Time `gorm:"primaryKey"`
	Count       int64
}
