package types

import "time"

// HookEvent is implemented by every payload published on the hook bus. It
// mirrors the corpus's messaging envelope shape (ContentType/TopicName) so
// the same values can be mirrored onto an external topic unmodified.
type HookEvent interface {
	ContentType() string
	TopicName() string
}

type EventIngested struct {
	EventID    string    `json:"event_id"`
	DeviceID   string    `json:"device_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *EventIngested) ContentType() string { return "application/json" }
func (e *EventIngested) TopicName() string   { return "onEventIngested" }

type DuplicateEvent struct {
	EventID    string    `json:"event_id"`
	DeviceID   string    `json:"device_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *DuplicateEvent) ContentType() string { return "application/json" }
func (e *DuplicateEvent) TopicName() string   { return "onDuplicateEvent" }

type InvalidEvent struct {
	DeviceID   string    `json:"device_id"`
	TenantID   string    `json:"tenant_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *InvalidEvent) ContentType() string { return "application/json" }
func (e *InvalidEvent) TopicName() string   { return "onInvalidEvent" }

type DeviceRegistered struct {
	DeviceID   string     `json:"device_id"`
	TenantID   string     `json:"tenant_id"`
	DeviceType DeviceType `json:"device_type"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func (e *DeviceRegistered) ContentType() string { return "application/json" }
func (e *DeviceRegistered) TopicName() string   { return "onDeviceRegistered" }

type DeviceHeartbeat struct {
	DeviceID   string    `json:"device_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *DeviceHeartbeat) ContentType() string { return "application/json" }
func (e *DeviceHeartbeat) TopicName() string   { return "onDeviceHeartbeat" }

type DeviceRevokedEvent struct {
	DeviceID   string    `json:"device_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *DeviceRevokedEvent) ContentType() string { return "application/json" }
func (e *DeviceRevokedEvent) TopicName() string   { return "onDeviceRevoked" }

type DeviceCommand struct {
	DeviceID   string    `json:"device_id"`
	TenantID   string    `json:"tenant_id"`
	CommandID  string    `json:"command_id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *DeviceCommand) ContentType() string { return "application/json" }
func (e *DeviceCommand) TopicName() string   { return "onDeviceCommand" }

type CommandAcknowledged struct {
	DeviceID   string    `json:"device_id"`
	TenantID   string    `json:"tenant_id"`
	CommandID  string    `json:"command_id"`
	AckStatus  string    `json:"ack_status"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *CommandAcknowledged) ContentType() string { return "application/json" }
func (e *CommandAcknowledged) TopicName() string   { return "onCommandAcknowledged" }

type FirmwareFailure struct {
	DeviceID   string    `json:"device_id"`
	TenantID   string    `json:"tenant_id"`
	FirmwareID string    `json:"firmware_id"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *FirmwareFailure) ContentType() string { return "application/json" }
func (e *FirmwareFailure) TopicName() string   { return "onFirmwareFailure" }

type ReportGenerated struct {
	ReportID   string    `json:"report_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *ReportGenerated) ContentType() string { return "application/json" }
func (e *ReportGenerated) TopicName() string   { return "onReportGenerated" }
