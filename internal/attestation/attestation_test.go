package attestation_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babur-hussain/toon-fleet-server/internal/attestation"
	"github.com/babur-hussain/toon-fleet-server/internal/audit"
	"github.com/babur-hussain/toon-fleet-server/internal/canon"
	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/nonce"
	"github.com/babur-hussain/toon-fleet-server/internal/signing"
	"github.com/babur-hussain/toon-fleet-server/internal/toon"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

type stubDevices struct {
	device types.Device
}

func (s stubDevices) Get(ctx context.Context, deviceID, tenantID string) (types.Device, error) {
	if deviceID != s.device.DeviceID {
		return types.Device{}, fmt.Errorf("not found")
	}
	return s.device, nil
}

func setup(t *testing.T) (*attestation.Gate, types.Device, func() string) {
	t.Helper()
	pub, priv, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	device := types.Device{
		DeviceID:     "dev-1",
		TenantID:     "tenant-1",
		DeviceType:   types.DeviceKiosk,
		PublicKeyPEM: string(signing.PublicKeyToPEM(pub)),
		Status:       types.DeviceActive,
	}

	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)
	nonces, err := nonce.New(handle)
	require.NoError(t, err)

	gate := attestation.New(stubDevices{device: device}, nonces, audit.New(handle))

	seq := 0
	sign := func() string {
		seq++
		tokens := []toon.Token{
			{Key: "D1", Value: device.DeviceID},
			{Key: "TS", Value: time.Now().UTC().Format(time.RFC3339)},
			{Key: "NONCE", Value: fmt.Sprintf("nonce-%d", seq)},
			{Key: "HB1", Value: "ok"},
		}
		canonical := canon.String(tokens)
		sig := signing.Sign(priv, canonical)

		body := ""
		for _, tok := range tokens {
			if body != "" {
				body += "|"
			}
			body += fmt.Sprintf("%s:%v", tok.Key, tok.Value)
		}
		body += "|SIG1:" + sig
		return body
	}

	return gate, device, sign
}

func TestAttest_ValidRequestSucceeds(t *testing.T) {
	gate, device, sign := setup(t)
	result, err := gate.Attest(context.Background(), "/devices/heartbeat", device.TenantID, sign())
	require.NoError(t, err)
	assert.Equal(t, device.DeviceID, result.Device.DeviceID)
}

func TestAttest_ReplayedNonceRejected(t *testing.T) {
	gate, device, sign := setup(t)
	body := sign()

	_, err := gate.Attest(context.Background(), "/devices/heartbeat", device.TenantID, body)
	require.NoError(t, err)

	_, err = gate.Attest(context.Background(), "/devices/heartbeat", device.TenantID, body)
	require.Error(t, err)
	rej, ok := err.(*attestation.Rejection)
	require.True(t, ok)
	assert.Equal(t, "NONCE_REUSE", string(rej.Kind))
}

func TestAttest_ClockSkewBeyondToleranceRejected(t *testing.T) {
	pub, priv, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	device := types.Device{
		DeviceID:     "dev-1",
		TenantID:     "tenant-1",
		PublicKeyPEM: string(signing.PublicKeyToPEM(pub)),
		Status:       types.DeviceActive,
	}

	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)
	nonces, err := nonce.New(handle)
	require.NoError(t, err)
	gate := attestation.New(stubDevices{device: device}, nonces, audit.New(handle))

	staleTime := time.Now().UTC().Add(-time.Hour)
	tokens := []toon.Token{
		{Key: "D1", Value: device.DeviceID},
		{Key: "TS", Value: staleTime.Format(time.RFC3339)},
		{Key: "NONCE", Value: "nonce-1"},
	}
	canonical := canon.String(tokens)
	sig := signing.Sign(priv, canonical)
	body := fmt.Sprintf("D1:%s|TS:%s|NONCE:nonce-1|SIG1:%s", device.DeviceID, staleTime.Format(time.RFC3339), sig)

	_, err = gate.Attest(context.Background(), "/devices/heartbeat", device.TenantID, body)
	require.Error(t, err)
	rej, ok := err.(*attestation.Rejection)
	require.True(t, ok)
	assert.Equal(t, "timestamp_invalid", string(rej.Kind))
	assert.Equal(t, 60*time.Second, rej.RetryAfter)
}

func TestAttest_RevokedDeviceRejected(t *testing.T) {
	pub, priv, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	device := types.Device{
		DeviceID:     "dev-1",
		TenantID:     "tenant-1",
		PublicKeyPEM: string(signing.PublicKeyToPEM(pub)),
		Status:       types.DeviceRevoked,
	}

	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)
	nonces, err := nonce.New(handle)
	require.NoError(t, err)
	gate := attestation.New(stubDevices{device: device}, nonces, audit.New(handle))

	tokens := []toon.Token{
		{Key: "D1", Value: device.DeviceID},
		{Key: "TS", Value: time.Now().UTC().Format(time.RFC3339)},
		{Key: "NONCE", Value: "nonce-1"},
	}
	sig := signing.Sign(priv, canon.String(tokens))
	body := fmt.Sprintf("D1:%s|TS:%s|NONCE:nonce-1|SIG1:%s", device.DeviceID, tokens[1].Value, sig)

	_, err = gate.Attest(context.Background(), "/devices/heartbeat", device.TenantID, body)
	require.Error(t, err)
	rej := err.(*attestation.Rejection)
	assert.Equal(t, "device_revoked", string(rej.Kind))
}

func TestAttest_TamperedSignatureRejected(t *testing.T) {
	gate, device, sign := setup(t)
	body := sign()
	tampered := body[:len(body)-4] + "xxxx"

	_, err := gate.Attest(context.Background(), "/devices/heartbeat", device.TenantID, tampered)
	require.Error(t, err)
	rej := err.(*attestation.Rejection)
	assert.Equal(t, "SIG_INVALID", string(rej.Kind))
}

func TestAttest_EmptyBodyRejected(t *testing.T) {
	gate, device, _ := setup(t)
	_, err := gate.Attest(context.Background(), "/devices/heartbeat", device.TenantID, "")
	require.Error(t, err)
	rej := err.(*attestation.Rejection)
	assert.Equal(t, "empty_payload", string(rej.Kind))
}
