// Package types holds the wire-adjacent domain model shared between the
// attestation pipeline, the ingestion engine, the command/firmware loop and
// the HTTP surface. Everything here is a plain value type; persistence and
// protocol concerns live in internal/db and internal/toon respectively.
package types

import "time"

// DeviceType is the closed set of fleet device kinds.
type DeviceType string

const (
	DeviceMobile             DeviceType = "MOBILE"
	DeviceKiosk              DeviceType = "KIOSK"
	DeviceRPi                DeviceType = "RPI"
	DeviceFingerprintTerm    DeviceType = "FINGERPRINT_TERMINAL"
)

func (t DeviceType) Valid() bool {
	switch t {
	case DeviceMobile, DeviceKiosk, DeviceRPi, DeviceFingerprintTerm:
		return true
	}
	return false
}

// Capability is one biometric modality a device can submit scores for.
type Capability string

const (
	CapabilityFace        Capability = "FACE"
	CapabilityFingerprint Capability = "FINGERPRINT"
	CapabilityLiveness    Capability = "LIVENESS"
)

func (c Capability) Valid() bool {
	switch c {
	case CapabilityFace, CapabilityFingerprint, CapabilityLiveness:
		return true
	}
	return false
}

// DeviceStatus is the device lifecycle state. Revoked is terminal.
type DeviceStatus string

const (
	DeviceActive  DeviceStatus = "active"
	DeviceRevoked DeviceStatus = "revoked"
)

// Device is a registered fleet member.
type Device struct {
	DeviceID        string       `json:"device_id"`
	TenantID        string       `json:"tenant_id"`
	DeviceType      DeviceType   `json:"device_type"`
	PublicKeyPEM    string       `json:"public_key_pem"`
	Capabilities    []Capability `json:"capabilities"`
	FirmwareVersion string       `json:"firmware_version"`
	Status          DeviceStatus `json:"status"`
	PolicyID        string       `json:"policy_id,omitempty"`
	LastSeenAt      time.Time    `json:"last_seen_at"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// EventType is the closed set of attendance event kinds.
type EventType string

const (
	EventIn          EventType = "IN"
	EventOut         EventType = "OUT"
	EventBreakStart  EventType = "BREAK_START"
	EventBreakEnd    EventType = "BREAK_END"
	EventOvertimeIn  EventType = "OVERTIME_IN"
	EventOvertimeOut EventType = "OVERTIME_OUT"
)

func (e EventType) Valid() bool {
	switch e {
	case EventIn, EventOut, EventBreakStart, EventBreakEnd, EventOvertimeIn, EventOvertimeOut:
		return true
	}
	return false
}

// EventStatus is the terminal classification of an ingested event.
type EventStatus string

const (
	EventProcessed EventStatus = "processed"
	EventDuplicate EventStatus = "duplicate"
	EventRejected  EventStatus = "rejected"
)

// Geolocation is the optional triple a device may attach to an event.
type Geolocation struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// Scores are the optional biometric confidence values a device self-reports.
// The server never recomputes them; it only records and, where a policy
// threshold applies, rejects for structural reasons.
type Scores struct {
	Face        *float64 `json:"face,omitempty"`
	Fingerprint *float64 `json:"fingerprint,omitempty"`
	Liveness    *float64 `json:"liveness,omitempty"`
	Quality     *float64 `json:"quality,omitempty"`
}

// BreakInfo carries the optional break-specific fields on an event.
type BreakInfo struct {
	Type       string `json:"type,omitempty"`
	DurationS  int64  `json:"duration_seconds,omitempty"`
	OverBreak  bool   `json:"over_break,omitempty"`
}

// AttendanceEvent is one immutable, globally-unique attendance record.
type AttendanceEvent struct {
	EventID      string       `json:"event_id"`
	TenantID     string       `json:"tenant_id"`
	EmployeeID   string       `json:"employee_id"`
	EventType    EventType    `json:"event_type"`
	Timestamp    time.Time    `json:"timestamp"`
	DeviceID     string       `json:"device_id"`
	Location     *Geolocation `json:"location,omitempty"`
	Scores       *Scores      `json:"scores,omitempty"`
	Break        *BreakInfo   `json:"break,omitempty"`
	ConsentToken string       `json:"consent_token,omitempty"`
	Signature    string       `json:"signature,omitempty"`
	RawPayload   string       `json:"raw_payload"`
	Status       EventStatus  `json:"status"`
	Reason       string       `json:"reason,omitempty"`
	ReceivedAt   time.Time    `json:"received_at"`
}

// CommandStatus is the lifecycle state of a queued command.
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandCompleted CommandStatus = "completed"
	CommandExpired   CommandStatus = "expired"
)

// Command is a server-authored instruction queued for one device.
type Command struct {
	CommandID        string        `json:"command_id"`
	TenantID         string        `json:"tenant_id"`
	DeviceID         string        `json:"device_id"`
	Name             string        `json:"name"`
	Payload          string        `json:"payload"`
	Priority         int           `json:"priority"`
	IssuedAt         time.Time     `json:"issued_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	ServerSignature  string        `json:"server_signature"`
	Status           CommandStatus `json:"status"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	AckStatus        string        `json:"ack_status,omitempty"`
	AckMessage       string        `json:"ack_message,omitempty"`
	ExecutionTimeMs  int64         `json:"execution_time_ms,omitempty"`
	RawAck           string        `json:"raw_ack,omitempty"`
}

// FirmwareRelease is a distributable bundle offered to a matching device.
type FirmwareRelease struct {
	FirmwareID        string     `json:"firmware_id"`
	TenantID          string     `json:"tenant_id"`
	Version           string     `json:"version"`
	DeviceType        DeviceType `json:"device_type"`
	BundleURLTemplate string     `json:"bundle_url_template"`
	Checksum          string     `json:"checksum"`
	SizeBytes         int64      `json:"size_bytes"`
	PolicyID          string     `json:"policy_id,omitempty"`
	ServerSignature   string     `json:"server_signature"`
	CreatedAt         time.Time  `json:"created_at"`
	DeprecatedAt      *time.Time `json:"deprecated_at,omitempty"`
}

// FirmwareState is the per-device firmware rollout state machine.
type FirmwareState string

const (
	FirmwareChecking    FirmwareState = "checking"
	FirmwareDownloading FirmwareState = "downloading"
	FirmwareApplied     FirmwareState = "applied"
	FirmwareFailed      FirmwareState = "failed"
)

// DeviceFirmwareStatus tracks one device's progress through a firmware
// rollout.
type DeviceFirmwareStatus struct {
	DeviceID   string        `json:"device_id"`
	FirmwareID string        `json:"firmware_id"`
	State      FirmwareState `json:"state"`
	Detail     string        `json:"detail,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// AuditRecord is one append-only row per inbound device payload.
type AuditRecord struct {
	AuditID      string    `json:"audit_id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
	Endpoint     string    `json:"endpoint"`
	RawPayload   string    `json:"raw_payload"`
	Response     string    `json:"response"`
	Status       string    `json:"status"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Employee is the minimal record an attendance event references.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

type Employee struct {
	EmployeeID  string         `json:"employee_id"`
	TenantID    string         `json:"tenant_id"`
	FullName    string         `json:"full_name"`
	ExternalRef string         `json:"external_ref,omitempty"`
	Status      EmployeeStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ReportKind and ReportStatus describe persisted report metadata; the server
// never renders the underlying spreadsheet/CSV bytes itself.
type ReportKind string

const (
	ReportAttendance ReportKind = "attendance"
	ReportSummary    ReportKind = "summary"
)

type ReportStatus string

const (
	ReportPending ReportStatus = "pending"
	ReportReady   ReportStatus = "ready"
	ReportFailed  ReportStatus = "failed"
)

type Report struct {
	ReportID    string       `json:"report_id"`
	TenantID    string       `json:"tenant_id"`
	Kind        ReportKind   `json:"kind"`
	ParamsJSON  string       `json:"params_json"`
	Status      ReportStatus `json:"status"`
	Format      string       `json:"format"`
	RequestedBy string       `json:"requested_by"`
	RequestedAt time.Time    `json:"requested_at"`
	ReadyAt     *time.Time   `json:"ready_at,omitempty"`
	StorageRef  string       `json:"storage_ref,omitempty"`
}

// Collection is the paginated list envelope used by every operator list
// endpoint, mirrored from the corpus's Collection[T] convention.
type Collection[T any] struct {
	Data       []T    `json:"data"`
	Count      uint64 `json:"count"`
	Offset     uint64 `json:"offset"`
	Limit      uint64 `json:"limit"`
	TotalCount uint64 `json:"totalCount"`
}
