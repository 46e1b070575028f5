package api

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/babur-hussain/toon-fleet-server/internal/attestation"
	"github.com/babur-hussain/toon-fleet-server/internal/audit"
	"github.com/babur-hussain/toon-fleet-server/internal/canon"
	"github.com/babur-hussain/toon-fleet-server/internal/commandqueue"
	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/devicemanagement"
	"github.com/babur-hussain/toon-fleet-server/internal/ingestion"
	"github.com/babur-hussain/toon-fleet-server/internal/logging"
	"github.com/babur-hussain/toon-fleet-server/internal/nonce"
	"github.com/babur-hussain/toon-fleet-server/internal/ratelimit"
	"github.com/babur-hussain/toon-fleet-server/internal/signing"
	"github.com/babur-hussain/toon-fleet-server/internal/toon"
	"github.com/babur-hussain/toon-fleet-server/internal/wire"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

// heartbeatInterval is the RTO hint given on every successful heartbeat:
// how long the device should wait before its next one.
const heartbeatInterval = 5 * time.Minute

// firmwareRecheckInterval is the RTO hint given when a device already runs
// the latest firmware.
const firmwareRecheckInterval = time.Hour

// RegisterDeviceRoutes mounts the device-facing legacy TOON surface. Every
// route but /devices/register and /devices/events sits behind gate, the
// shared attestation pipeline; those two have their own reasons not to:
// registration has no device row yet to attest against, and a batch of
// events carries no attestation envelope at all, only per-event tokens.
func RegisterDeviceRoutes(
	r chi.Router,
	log zerolog.Logger,
	gate *attestation.Gate,
	devices *devicemanagement.Service,
	ingest *ingestion.Engine,
	commands *commandqueue.Service,
	nonces *nonce.Store,
	limiter *ratelimit.Limiter,
	auditRec *audit.Recorder,
	handle *db.DB,
) {
	r.Post("/devices/register", registerDeviceHandler(log, devices, nonces, auditRec))
	r.Post("/devices/events", ingestEventsHandler(log, ingest))
	r.Post("/devices/heartbeat", heartbeatHandler(log, gate, devices, commands, limiter))
	r.Get("/devices/commands", pollCommandsHandler(log, gate, commands))
	r.Post("/devices/command-ack", commandAckHandler(log, gate, commands))
	r.Post("/devices/firmware/check", firmwareCheckHandler(log, gate, commands))
	r.Post("/devices/firmware/ack", firmwareAckHandler(log, gate, commands))
	r.Post("/devices/logs", deviceLogsHandler(log, gate))
	r.Get("/health", healthHandler(handle))
}

// readBody returns the request body as a string, transparently undoing
// Content-Transfer-Encoding: base64 when a device tags its body that way.
func readBody(r *http.Request) (string, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(r.Header.Get("Content-Transfer-Encoding"), "base64") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}
	return string(raw), nil
}

func writeWire(w http.ResponseWriter, status int, payload toon.Payload) {
	w.Header().Set("Content-Type", "application/toon")
	w.WriteHeader(status)
	w.Write([]byte(wire.Encode(payload)))
}

// rejectionStatus maps an attestation rejection's error kind onto the HTTP
// status the propagation policy names for it: structural failures at 400,
// device/signature/replay failures at 401/403, rate limiting at 429.
func rejectionStatus(kind wire.ErrorKind) int {
	switch kind {
	case wire.ErrEmptyPayload, wire.ErrPayloadCorrupted, wire.ErrMissingTokens,
		wire.ErrInvalidEventType, wire.ErrInvalidTimestampFormat,
		wire.ErrInvalidLocationFormat, wire.ErrInvalidDeviceType:
		return http.StatusBadRequest
	case wire.ErrDeviceNotFound, wire.ErrTimestampInvalid:
		return http.StatusUnauthorized
	case wire.ErrDeviceRevoked, wire.ErrNonceReuse, wire.ErrSignatureInvalid:
		return http.StatusForbidden
	case wire.ErrRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeRejection(w http.ResponseWriter, rej *attestation.Rejection) {
	w.Header().Set("Content-Type", "application/toon")
	w.WriteHeader(rejectionStatus(rej.Kind))
	w.Write([]byte(rej.Encode()))
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	writeWire(w, http.StatusTooManyRequests, wire.WithTimestamp(wire.Error(wire.ErrRateLimit, "", retryAfter), time.Now().UTC()))
}

// registerDeviceHandler implements trust-on-first-registration: a brand new
// device proves ownership of the public key it is enrolling with (D4, the
// key itself), while a re-registering device proves it still holds the key
// already on file. Either way it never goes through attestation.Gate, which
// requires a device row to already exist.
func registerDeviceHandler(log zerolog.Logger, devices *devicemanagement.Service, nonces *nonce.Store, auditRec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "register-device")
		defer span.End()

		body, err := readBody(r)
		if err != nil || body == "" {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrEmptyPayload, "", 0))
			return
		}

		payload, err := toon.DecodeLegacy(body)
		if err != nil {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrPayloadCorrupted, err.Error(), 0))
			return
		}

		if missing := payload.MissingRequired("D1", "D2", "D4", "TS", "NONCE", "SIG1"); len(missing) > 0 {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrMissingTokens, strings.Join(missing, ","), 0))
			return
		}

		deviceID := payload.GetString("D1")
		deviceType := types.DeviceType(payload.GetString("D2"))
		if !deviceType.Valid() {
			writeRegisterRejection(w, auditRec, deviceID, "invalid_device_type", wire.ErrInvalidDeviceType, "")
			return
		}

		tsRaw := payload.GetString("TS")
		ts, err := time.Parse(time.RFC3339, tsRaw)
		if err != nil {
			writeRegisterRejection(w, auditRec, deviceID, "invalid_timestamp_format", wire.ErrInvalidTimestampFormat, "TS must be ISO-8601")
			return
		}
		if skew := time.Since(ts); skew > attestation.MaxClockSkew || skew < -attestation.MaxClockSkew {
			writeRegisterRejection(w, auditRec, deviceID, "timestamp_invalid", wire.ErrTimestampInvalid, "clock skew exceeds tolerance")
			return
		}

		existing, err := devices.Get(ctx, deviceID, "")
		var verifyPub ed25519.PublicKey
		reRegistering := false
		switch {
		case err == nil:
			reRegistering = true
			verifyPub, err = signing.PublicKeyFromPEM([]byte(existing.PublicKeyPEM))
			if err != nil {
				writeRegisterRejection(w, auditRec, deviceID, "internal_error", wire.ErrSignatureInvalid, "stored device key is malformed")
				return
			}
		case errors.Is(err, devicemanagement.ErrDeviceNotFound):
			verifyPub, err = signing.PublicKeyFromBase64(payload.GetString("D4"))
			if err != nil {
				writeRegisterRejection(w, auditRec, deviceID, "bad_key", wire.ErrSignatureInvalid, "D4 is not a valid public key")
				return
			}
		default:
			writeRegisterRejection(w, auditRec, deviceID, "internal_error", wire.ErrInternal, "")
			return
		}

		if err := nonces.CheckAndMark(deviceID, payload.GetString("NONCE")); err != nil {
			writeRegisterRejection(w, auditRec, deviceID, "nonce_reuse", wire.ErrNonceReuse, "")
			return
		}

		canonical := canon.Of(payload)
		if err := signing.Verify(verifyPub, canonical, payload.GetString("SIG1")); err != nil {
			writeRegisterRejection(w, auditRec, deviceID, "sig_invalid", wire.ErrSignatureInvalid, "")
			return
		}

		newPub, err := signing.PublicKeyFromBase64(payload.GetString("D4"))
		if err != nil {
			writeRegisterRejection(w, auditRec, deviceID, "bad_key", wire.ErrSignatureInvalid, "D4 is not a valid public key")
			return
		}

		tenantID := ""
		if reRegistering {
			tenantID = existing.TenantID
		}

		device := types.Device{
			DeviceID:        deviceID,
			TenantID:        tenantID,
			DeviceType:      deviceType,
			PublicKeyPEM:    string(signing.PublicKeyToPEM(newPub)),
			Capabilities:    capabilitiesFromValue(payload.Get("D3")),
			FirmwareVersion: existing.FirmwareVersion,
			PolicyID:        existing.PolicyID,
		}

		registered, err := devices.Register(ctx, device)
		if err != nil {
			logging.WithDeviceID(log, deviceID).Error().Err(err).Msg("unable to register device")
			writeRegisterRejection(w, auditRec, deviceID, "internal_error", wire.ErrInternal, "")
			return
		}

		status := "registered"
		extra := []toon.Token{
			{Key: "D1", Value: registered.DeviceID},
			{Key: "D2", Value: string(registered.DeviceType)},
			{Key: "D4", Value: signing.PublicKeyToBase64(newPub)},
			{Key: "REG", Value: status},
		}
		if reRegistering {
			extra[3] = toon.Token{Key: "REG", Value: "reregistered"}
			extra = append(extra, toon.Token{Key: "LAST", Value: existing.LastSeenAt.UTC().Format(time.RFC3339)})
			status = "reregistered"
		}

		response := wire.WithTimestamp(wire.OkWith(extra...), time.Now().UTC())
		if auditRec != nil {
			auditRec.Record(audit.Entry{TenantID: registered.TenantID, DeviceID: deviceID, Endpoint: "/devices/register", RawPayload: body, Response: wire.Encode(response), Status: status})
		}
		writeWire(w, http.StatusOK, response)
	}
}

func writeRegisterRejection(w http.ResponseWriter, auditRec *audit.Recorder, deviceID, status string, kind wire.ErrorKind, detail string) {
	response := wire.WithTimestamp(wire.Error(kind, detail, 0), time.Now().UTC())
	if auditRec != nil {
		auditRec.Record(audit.Entry{DeviceID: deviceID, Endpoint: "/devices/register", Status: status, Response: wire.Encode(response)})
	}
	writeWire(w, rejectionStatus(kind), response)
}

func capabilitiesFromValue(v any, ok bool) []types.Capability {
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []any:
		caps := make([]types.Capability, 0, len(val))
		for _, e := range val {
			if s, ok := e.(string); ok {
				caps = append(caps, types.Capability(s))
			}
		}
		return caps
	case string:
		return []types.Capability{types.Capability(val)}
	default:
		return nil
	}
}

// ingestEventsHandler has no attestation envelope of its own: the body is
// directly a batch of per-event tokens (E1,A1,A2,A3,D1 each), validated and
// persisted independently by the ingestion engine.
func ingestEventsHandler(log zerolog.Logger, ingest *ingestion.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "ingest-events")
		defer span.End()

		body, err := readBody(r)
		if err != nil || body == "" {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrEmptyPayload, "", 0))
			return
		}

		results, err := ingest.ProcessBatch(ctx, "", body)
		if err != nil {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrPayloadCorrupted, err.Error(), 0))
			return
		}

		w.Header().Set("Content-Type", "application/toon")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(encodeEventResults(results)))
	}
}

func encodeEventResults(results []ingestion.EventResult) string {
	parts := make([]string, len(results))
	for i, res := range results {
		tok := "A1:" + res.EventID + "|S1:" + string(res.Status)
		if res.Reason != "" {
			tok += "|R1:" + res.Reason
		}
		parts[i] = tok
	}
	return strings.Join(parts, "||")
}

func heartbeatHandler(log zerolog.Logger, gate *attestation.Gate, devices *devicemanagement.Service, commands *commandqueue.Service, limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "heartbeat")
		defer span.End()

		body, err := readBody(r)
		if err != nil {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrEmptyPayload, "", 0))
			return
		}

		result, err := gate.Attest(ctx, "/devices/heartbeat", "", body)
		if err != nil {
			var rej *attestation.Rejection
			if errors.As(err, &rej) {
				writeRejection(w, rej)
				return
			}
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		if limiter != nil {
			if err := limiter.Allow(result.Device.DeviceID, "/devices/heartbeat"); err != nil {
				var rl *ratelimit.ErrRateLimited
				if errors.As(err, &rl) {
					writeRateLimited(w, rl.RetryAfter)
					return
				}
			}
		}

		firmwareVersion := result.Payload.GetString("FW2")
		if firmwareVersion == "" {
			firmwareVersion = result.Payload.GetString("HB2")
		}

		device, err := devices.Heartbeat(ctx, result.Device.DeviceID, firmwareVersion)
		if err != nil {
			logging.WithDeviceID(log, result.Device.DeviceID).Error().Err(err).Msg("heartbeat update failed")
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		pending, err := commands.Poll(ctx, device.DeviceID)
		if err != nil {
			log.Error().Err(err).Msg("unable to poll pending commands")
		}

		extra := []toon.Token{
			{Key: "RTO", Value: strconv.Itoa(int(heartbeatInterval.Seconds()))},
			{Key: "PENDING_CMDS", Value: float64(len(pending))},
		}
		if len(pending) > 0 {
			ids := make([]string, len(pending))
			for i, c := range pending {
				ids[i] = c.CommandID
			}
			extra = append(extra, toon.Token{Key: "CMD_IDS", Value: strings.Join(ids, ";")})
		}

		if release, err := commands.LatestFirmwareFor(device.DeviceType, device.PolicyID); err == nil {
			if release.Version != device.FirmwareVersion {
				extra = append(extra, toon.Token{Key: "FW_AVAILABLE", Value: true}, toon.Token{Key: "FW2", Value: release.Version})
			}
		}

		writeWire(w, http.StatusOK, wire.WithTimestamp(wire.OkWith(extra...), time.Now().UTC()))
	}
}

// pollCommandsHandler re-assembles the attestation envelope from the query
// string (GET carries no body) and feeds it through the same gate every
// other device-facing endpoint uses.
func pollCommandsHandler(log zerolog.Logger, gate *attestation.Gate, commands *commandqueue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "poll-commands")
		defer span.End()

		q := r.URL.Query()
		synthetic := fmt.Sprintf("D1:%s|TS:%s|NONCE:%s|SIG1:%s", q.Get("D1"), q.Get("TS"), q.Get("NONCE"), q.Get("SIG1"))

		result, err := gate.Attest(ctx, "/devices/commands", "", synthetic)
		if err != nil {
			var rej *attestation.Rejection
			if errors.As(err, &rej) {
				writeRejection(w, rej)
				return
			}
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		pending, err := commands.Poll(ctx, result.Device.DeviceID)
		if err != nil {
			log.Error().Err(err).Msg("unable to poll commands")
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		if len(pending) == 0 {
			writeWire(w, http.StatusOK, wire.WithTimestamp(wire.OkWith(toon.Token{Key: "S1", Value: "no_commands"}), time.Now().UTC()))
			return
		}

		tokens := []toon.Token{{Key: "CMD_COUNT", Value: float64(len(pending))}}
		for i, c := range pending {
			prefix := fmt.Sprintf("CMD%d", i)
			tokens = append(tokens,
				toon.Token{Key: prefix + ".ID", Value: c.CommandID},
				toon.Token{Key: prefix + ".NAME", Value: c.Name},
				toon.Token{Key: prefix + ".PAYLOAD", Value: c.Payload},
				toon.Token{Key: prefix + ".PRIORITY", Value: float64(c.Priority)},
				toon.Token{Key: prefix + ".EXP", Value: c.ExpiresAt.UTC().Format(time.RFC3339)},
				toon.Token{Key: prefix + ".SIG", Value: c.ServerSignature},
			)
		}
		writeWire(w, http.StatusOK, wire.WithTimestamp(wire.OkWith(tokens...), time.Now().UTC()))
	}
}

func commandAckHandler(log zerolog.Logger, gate *attestation.Gate, commands *commandqueue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "command-ack")
		defer span.End()

		body, err := readBody(r)
		if err != nil {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrEmptyPayload, "", 0))
			return
		}

		result, err := gate.Attest(ctx, "/devices/command-ack", "", body)
		if err != nil {
			var rej *attestation.Rejection
			if errors.As(err, &rej) {
				writeRejection(w, rej)
				return
			}
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		if missing := result.Payload.MissingRequired("CMD1", "ACK1"); len(missing) > 0 {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrMissingTokens, strings.Join(missing, ","), 0))
			return
		}

		execMs, _ := strconv.ParseInt(result.Payload.GetString("ACK3"), 10, 64)
		_, err = commands.Acknowledge(ctx, result.Payload.GetString("CMD1"), result.Payload.GetString("ACK1"), result.Payload.GetString("ACK2"), execMs, body)
		if err != nil {
			if errors.Is(err, commandqueue.ErrCommandNotFound) {
				writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrMissingTokens, "command not found", 0))
				return
			}
			log.Error().Err(err).Msg("unable to acknowledge command")
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		writeWire(w, http.StatusOK, wire.WithTimestamp(wire.Ok(), time.Now().UTC()))
	}
}

func firmwareCheckHandler(log zerolog.Logger, gate *attestation.Gate, commands *commandqueue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "firmware-check")
		defer span.End()

		body, err := readBody(r)
		if err != nil {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrEmptyPayload, "", 0))
			return
		}

		result, err := gate.Attest(ctx, "/devices/firmware/check", "", body)
		if err != nil {
			var rej *attestation.Rejection
			if errors.As(err, &rej) {
				writeRejection(w, rej)
				return
			}
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		device := result.Device
		release, err := commands.LatestFirmwareFor(device.DeviceType, device.PolicyID)
		currentVersion := result.Payload.GetString("FW2")
		if errors.Is(err, commandqueue.ErrFirmwareNotFound) || (err == nil && release.Version == currentVersion) {
			writeWire(w, http.StatusOK, wire.WithTimestamp(wire.OkWith(toon.Token{Key: "S1", Value: "no_update"}, toon.Token{Key: "RTO", Value: strconv.Itoa(int(firmwareRecheckInterval.Seconds()))}), time.Now().UTC()))
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("unable to look up firmware release")
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		token := commands.SignDownloadToken(commandqueue.DownloadToken{
			DeviceID:   device.DeviceID,
			FirmwareID: release.FirmwareID,
			ExpiresAt:  time.Now().UTC().Add(commandqueue.DownloadTokenTTL),
		})

		extra := []toon.Token{
			{Key: "FW1", Value: release.FirmwareID},
			{Key: "FW2", Value: release.Version},
			{Key: "FW3", Value: release.BundleURLTemplate},
			{Key: "FW4", Value: release.Checksum},
			{Key: "FW5", Value: float64(release.SizeBytes)},
			{Key: "FW_SIG", Value: release.ServerSignature},
			{Key: "O1", Value: token},
		}
		writeWire(w, http.StatusOK, wire.WithTimestamp(wire.OkWith(extra...), time.Now().UTC()))
	}
}

func firmwareAckHandler(log zerolog.Logger, gate *attestation.Gate, commands *commandqueue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "firmware-ack")
		defer span.End()

		body, err := readBody(r)
		if err != nil {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrEmptyPayload, "", 0))
			return
		}

		result, err := gate.Attest(ctx, "/devices/firmware/ack", "", body)
		if err != nil {
			var rej *attestation.Rejection
			if errors.As(err, &rej) {
				writeRejection(w, rej)
				return
			}
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		if missing := result.Payload.MissingRequired("FW1", "ACK1"); len(missing) > 0 {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrMissingTokens, strings.Join(missing, ","), 0))
			return
		}

		detail := result.Payload.GetString("ACK2")
		if detail == "" {
			detail = result.Payload.GetString("LOG1")
		}
		if err := commands.AckFirmware(ctx, result.Device.DeviceID, result.Payload.GetString("FW1"), result.Payload.GetString("ACK1"), detail); err != nil {
			log.Error().Err(err).Msg("unable to record firmware ack")
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		writeWire(w, http.StatusOK, wire.WithTimestamp(wire.Ok(), time.Now().UTC()))
	}
}

// deviceLogsHandler accepts a device's diagnostic log bundle. Attestation
// already audits the full raw payload, arrays included; there is nothing
// further to persist beyond acknowledging receipt.
func deviceLogsHandler(log zerolog.Logger, gate *attestation.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "device-logs")
		defer span.End()

		body, err := readBody(r)
		if err != nil {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrEmptyPayload, "", 0))
			return
		}

		result, err := gate.Attest(ctx, "/devices/logs", "", body)
		if err != nil {
			var rej *attestation.Rejection
			if errors.As(err, &rej) {
				writeRejection(w, rej)
				return
			}
			writeWire(w, http.StatusInternalServerError, wire.Error(wire.ErrInternal, "", 0))
			return
		}

		if missing := result.Payload.MissingRequired("LOG1", "LOG2"); len(missing) > 0 {
			writeWire(w, http.StatusBadRequest, wire.Error(wire.ErrMissingTokens, strings.Join(missing, ","), 0))
			return
		}

		writeWire(w, http.StatusOK, wire.WithTimestamp(wire.OkWith(toon.Token{Key: "LOG1", Value: result.Payload.GetString("LOG1")}), time.Now().UTC()))
	}
}

func healthHandler(handle *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := handle.Conn.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			writeWire(w, http.StatusServiceUnavailable, wire.WithTimestamp(wire.Error(wire.ErrInternal, "database unreachable", 0), time.Now().UTC()))
			return
		}

		writeWire(w, http.StatusOK, wire.WithTimestamp(wire.OkWith(toon.Token{Key: "SYS", Value: "healthy"}), time.Now().UTC()))
	}
}
