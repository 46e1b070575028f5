// Package wire builds the small set of response shapes every endpoint in
// the external interface shares: S1:ok on success, ERR1/ERR2/RTO on
// failure, always in the legacy dialect devices speak.
package wire

import (
	"strconv"
	"time"

	"github.com/babur-hussain/toon-fleet-server/internal/toon"
)

// ErrorKind is the closed set of ERR1 values named in the error handling
// design.
type ErrorKind string

const (
	ErrEmptyPayload           ErrorKind = "empty_payload"
	ErrPayloadCorrupted       ErrorKind = "payload_corrupted"
	ErrMissingTokens          ErrorKind = "missing_tokens"
	ErrInvalidEventType       ErrorKind = "invalid_event_type"
	ErrInvalidTimestampFormat ErrorKind = "invalid_timestamp_format"
	ErrInvalidLocationFormat  ErrorKind = "invalid_location_format"
	ErrInvalidDeviceType      ErrorKind = "invalid_device_type"
	ErrDeviceNotFound         ErrorKind = "device_not_found"
	ErrDeviceRevoked          ErrorKind = "device_revoked"
	ErrTimestampInvalid       ErrorKind = "timestamp_invalid"
	ErrNonceReuse             ErrorKind = "NONCE_REUSE"
	ErrSignatureInvalid       ErrorKind = "SIG_INVALID"
	ErrRateLimit              ErrorKind = "RATE_LIMIT"
	ErrDuplicate              ErrorKind = "duplicate"
	ErrInternal               ErrorKind = "internal_error"
	ErrReportNotFound         ErrorKind = "report_not_found"
	ErrReportNotReady         ErrorKind = "report_not_ready"
	ErrUnauthorized           ErrorKind = "unauthorized"
)

// Ok builds a bare success payload: S1:ok.
func Ok() toon.Payload {
	return toon.Payload{Tokens: []toon.Token{{Key: "S1", Value: "ok"}}}
}

// OkWith builds a success payload with S1:ok plus the given extra tokens.
func OkWith(extra ...toon.Token) toon.Payload {
	tokens := append([]toon.Token{{Key: "S1", Value: "ok"}}, extra...)
	return toon.Payload{Tokens: tokens}
}

// Error builds an error payload: ERR1:<kind>, optional ERR2 detail and RTO
// retry hint.
func Error(kind ErrorKind, detail string, retryAfter time.Duration) toon.Payload {
	tokens := []toon.Token{{Key: "ERR1", Value: string(kind)}}
	if detail != "" {
		tokens = append(tokens, toon.Token{Key: "ERR2", Value: detail})
	}
	if retryAfter > 0 {
		tokens = append(tokens, toon.Token{Key: "RTO", Value: strconv.Itoa(int(retryAfter.Seconds()))})
	}
	return toon.Payload{Tokens: tokens}
}

// WithTimestamp appends a TS token carrying t in RFC3339 form, matching the
// server-timestamp convention on every error and heartbeat-style response.
func WithTimestamp(p toon.Payload, t time.Time) toon.Payload {
	p.Tokens = append(p.Tokens, toon.Token{Key: "TS", Value: t.UTC().Format(time.RFC3339)})
	return p
}

// Encode renders p in the legacy dialect, the wire format for every
// device-facing endpoint.
func Encode(p toon.Payload) string {
	return toon.EncodeLegacy(p)
}
