package main

import (
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/babur-hussain/toon-fleet-server/internal/api"
	"github.com/babur-hussain/toon-fleet-server/internal/attestation"
	"github.com/babur-hussain/toon-fleet-server/internal/audit"
	"github.com/babur-hussain/toon-fleet-server/internal/canon"
	"github.com/babur-hussain/toon-fleet-server/internal/commandqueue"
	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/devicemanagement"
	"github.com/babur-hussain/toon-fleet-server/internal/hooks"
	"github.com/babur-hussain/toon-fleet-server/internal/ingestion"
	"github.com/babur-hussain/toon-fleet-server/internal/nonce"
	"github.com/babur-hussain/toon-fleet-server/internal/ratelimit"
	"github.com/babur-hussain/toon-fleet-server/internal/signing"
	"github.com/babur-hussain/toon-fleet-server/internal/toon"
)

// testServer wires the full device-facing surface against an isolated
// sqlite database, mirroring how main() composes the same packages.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)

	_, serverKey, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	bus := hooks.New(zerolog.Nop())
	nonces, err := nonce.New(handle)
	require.NoError(t, err)
	auditRec := audit.New(handle)
	commands := commandqueue.New(handle, bus, serverKey)
	devices := devicemanagement.New(handle, bus, commands)
	ingest := ingestion.New(handle, bus, auditRec)
	gate := attestation.New(devices, nonces, auditRec)
	limiter := ratelimit.New(handle, map[string]ratelimit.Policy{"/devices/heartbeat": {Window: time.Hour, Cap: 100}})

	r := chi.NewRouter()
	api.RegisterDeviceRoutes(r, zerolog.Nop(), gate, devices, ingest, commands, nonces, limiter, auditRec, handle)

	return httptest.NewServer(r)
}

// signedBody renders tokens as a legacy payload and appends a SIG1 computed
// over its canonical form with priv, matching exactly what a real device
// does before it sends a request.
func signedBody(priv ed25519.PrivateKey, tokens []toon.Token) string {
	payload := toon.Payload{Tokens: tokens}
	canonical := canon.Of(payload)
	sig := signing.Sign(priv, canonical)
	tokens = append(tokens, toon.Token{Key: "SIG1", Value: sig})
	return toon.EncodeLegacy(toon.Payload{Tokens: tokens})
}

func registerDevice(t *testing.T, server *httptest.Server, deviceID string, pub ed25519.PublicKey, priv ed25519.PrivateKey) {
	t.Helper()
	body := signedBody(priv, []toon.Token{
		{Key: "D1", Value: deviceID},
		{Key: "D2", Value: "KIOSK"},
		{Key: "D3", Value: "FACE;FINGERPRINT"},
		{Key: "D4", Value: signing.PublicKeyToBase64(pub)},
		{Key: "TS", Value: time.Now().UTC().Format(time.RFC3339)},
		{Key: "NONCE", Value: uuid.NewString()},
	})

	resp, respBody := doRequest(t, server, http.MethodPost, "/devices/register", body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, respBody, "S1:ok")
}

func doRequest(t *testing.T, server *httptest.Server, method, path, body, contentTransferEncoding string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/toon")
	if contentTransferEncoding != "" {
		req.Header.Set("Content-Transfer-Encoding", contentTransferEncoding)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if rerr != nil {
			break
		}
	}
	return resp, string(buf)
}

func TestDeviceLifecycle_RegisterAndHeartbeat(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	pub, priv, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	deviceID := "dev_" + uuid.NewString()
	registerDevice(t, server, deviceID, pub, priv)

	heartbeatBody := signedBody(priv, []toon.Token{
		{Key: "D1", Value: deviceID},
		{Key: "HB1", Value: "ok"},
		{Key: "HB2", Value: "1.0.0"},
		{Key: "TS", Value: time.Now().UTC().Format(time.RFC3339)},
		{Key: "NONCE", Value: uuid.NewString()},
	})
	resp, body := doRequest(t, server, http.MethodPost, "/devices/heartbeat", heartbeatBody, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "PENDING_CMDS:0")
}

func TestDeviceLifecycle_EventsBatchIngested(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	pub, priv, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	deviceID := "dev_" + uuid.NewString()
	registerDevice(t, server, deviceID, pub, priv)

	body := "E1:emp_1|A1:evt_a|A2:IN|A3:" + time.Now().UTC().Format(time.RFC3339) + "|D1:" + deviceID +
		"||E1:emp_1|A1:evt_b|A2:OUT|A3:" + time.Now().UTC().Format(time.RFC3339) + "|D1:" + deviceID

	resp, respBody := doRequest(t, server, http.MethodPost, "/devices/events", body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, respBody, "A1:evt_a|S1:processed")
	require.Contains(t, respBody, "A1:evt_b|S1:processed")
}

func TestDeviceRegister_RejectsBadSignature(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	_, priv, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	pub, _, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	body := signedBody(priv, []toon.Token{
		{Key: "D1", Value: "dev_tampered"},
		{Key: "D2", Value: "KIOSK"},
		{Key: "D4", Value: signing.PublicKeyToBase64(pub)},
		{Key: "TS", Value: time.Now().UTC().Format(time.RFC3339)},
		{Key: "NONCE", Value: uuid.NewString()},
	})
	// Tamper the body after signing so the signature no longer matches.
	tampered := strings.Replace(body, "D2:KIOSK", "D2:RPI", 1)

	resp, respBody := doRequest(t, server, http.MethodPost, "/devices/register", tampered, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Contains(t, respBody, "ERR1:SIG_INVALID")
}

func TestHealth_ReportsHealthyWithLiveDatabase(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	resp, body := doRequest(t, server, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "SYS:healthy")
}
