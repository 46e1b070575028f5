// Package attestation implements the gate every device-facing endpoint sits
// behind: parse the legacy TOON body, check clock skew, look up the device,
// reject replayed nonces, and verify the Ed25519 signature over the
// canonical form — in that order, short-circuiting on the first failure.
// Every rejection is still audited before the response is written.
package attestation

import (
	"context"
	"time"

	"github.com/babur-hussain/toon-fleet-server/internal/audit"
	"github.com/babur-hussain/toon-fleet-server/internal/canon"
	"github.com/babur-hussain/toon-fleet-server/internal/nonce"
	"github.com/babur-hussain/toon-fleet-server/internal/signing"
	"github.com/babur-hussain/toon-fleet-server/internal/toon"
	"github.com/babur-hussain/toon-fleet-server/internal/wire"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

// MaxClockSkew is the tolerance around the server's clock a device's TS
// token may drift by before a request is rejected.
const MaxClockSkew = 5 * time.Minute

// DeviceLookup resolves a device by D1, independent of devicemanagement so
// this package never needs to import it.
type DeviceLookup interface {
	Get(ctx context.Context, deviceID, tenantID string) (types.Device, error)
}

// Gate runs the attestation pipeline over one raw request body.
type Gate struct {
	devices DeviceLookup
	nonces  *nonce.Store
	audit   *audit.Recorder
}

// New constructs a Gate.
func New(devices DeviceLookup, nonces *nonce.Store, recorder *audit.Recorder) *Gate {
	return &Gate{devices: devices, nonces: nonces, audit: recorder}
}

// Result is the outcome of a successful attestation: the decoded payload
// and the device it was attributed to.
type Result struct {
	Payload toon.Payload
	Device  types.Device
}

// Rejection carries the wire error kind, detail and retry hint to send
// back; Encode renders it in the legacy dialect.
type Rejection struct {
	Kind       wire.ErrorKind
	Detail     string
	RetryAfter time.Duration
}

func (r *Rejection) Error() string { return string(r.Kind) }

// Encode renders the rejection as the response body devices expect.
func (r *Rejection) Encode() string {
	return wire.Encode(wire.WithTimestamp(wire.Error(r.Kind, r.Detail, r.RetryAfter), time.Now().UTC()))
}

func reject(kind wire.ErrorKind, detail string, retryAfter time.Duration) *Rejection {
	return &Rejection{Kind: kind, Detail: detail, RetryAfter: retryAfter}
}

// Attest runs body through the full pipeline, auditing the outcome under
// endpoint regardless of whether it succeeds. tenantID scopes the device
// lookup; pass "" when the endpoint is not tenant-scoped.
func (g *Gate) Attest(ctx context.Context, endpoint, tenantID, body string) (Result, error) {
	result, rejection := g.attest(ctx, tenantID, body)

	status := "accepted"
	response := ""
	var deviceID string
	if rejection != nil {
		status = string(rejection.Kind)
		response = rejection.Encode()
	} else {
		deviceID = result.Device.DeviceID
		tenantID = result.Device.TenantID
	}

	if g.audit != nil {
		_, _ = g.audit.Record(audit.Entry{
			TenantID:   tenantID,
			DeviceID:   deviceID,
			Endpoint:   endpoint,
			RawPayload: body,
			Response:   response,
			Status:     status,
		})
	}

	if rejection != nil {
		return Result{}, rejection
	}
	return result, nil
}

func (g *Gate) attest(ctx context.Context, tenantID, body string) (Result, *Rejection) {
	if body == "" {
		return Result{}, reject(wire.ErrEmptyPayload, "", 0)
	}

	payload, err := toon.DecodeLegacy(body)
	if err != nil {
		return Result{}, reject(wire.ErrPayloadCorrupted, err.Error(), 0)
	}

	if missing := payload.MissingRequired("D1", "TS", "NONCE", "SIG1"); len(missing) > 0 {
		return Result{}, reject(wire.ErrMissingTokens, joinMissing(missing), 0)
	}

	tsRaw := payload.GetString("TS")
	ts, err := time.Parse(time.RFC3339, tsRaw)
	if err != nil {
		return Result{}, reject(wire.ErrInvalidTimestampFormat, "TS must be ISO-8601", 0)
	}
	if skew := time.Since(ts); skew > MaxClockSkew || skew < -MaxClockSkew {
		return Result{}, reject(wire.ErrTimestampInvalid, "clock skew exceeds tolerance", 60*time.Second)
	}

	deviceID := payload.GetString("D1")
	device, err := g.devices.Get(ctx, deviceID, tenantID)
	if err != nil {
		return Result{}, reject(wire.ErrDeviceNotFound, "", 0)
	}
	if device.Status == types.DeviceRevoked {
		return Result{}, reject(wire.ErrDeviceRevoked, "", 0)
	}

	nonceValue := payload.GetString("NONCE")
	if err := g.nonces.CheckAndMark(deviceID, nonceValue); err != nil {
		return Result{}, reject(wire.ErrNonceReuse, "", 0)
	}

	pub, err := signing.PublicKeyFromPEM([]byte(device.PublicKeyPEM))
	if err != nil {
		return Result{}, reject(wire.ErrSignatureInvalid, "malformed device public key", 0)
	}

	signature := payload.GetString("SIG1")
	canonical := canon.Of(payload)
	if err := signing.Verify(pub, canonical, signature); err != nil {
		return Result{}, reject(wire.ErrSignatureInvalid, "", 0)
	}

	return Result{Payload: payload, Device: device}, nil
}

func joinMissing(missing []string) string {
	out := missing[0]
	for _, m := range missing[1:] {
		out += "," + m
	}
	return out
}
