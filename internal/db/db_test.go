package db_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)
	return handle
}

func TestOpen_AutoMigratesSchema(t *testing.T) {
	handle := openTestDB(t)

	row := db.DeviceFromDomain(types.Device{
		DeviceID:   "dev-1",
		TenantID:   "tenant-1",
		DeviceType: types.DeviceKiosk,
		Status:     types.DeviceActive,
		LastSeenAt: time.Now(),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	})
	require.NoError(t, handle.Conn.Create(&row).Error)

	var got db.DeviceRow
	require.NoError(t, handle.Conn.First(&got, "device_id = ?", "dev-1").Error)
	require.Equal(t, "tenant-1", got.TenantID)
}

func TestDeviceRow_CapabilitiesRoundTrip(t *testing.T) {
	d := types.Device{
		DeviceID:     "dev-2",
		Capabilities: []types.Capability{types.CapabilityFace, types.CapabilityLiveness},
	}
	row := db.DeviceFromDomain(d)
	require.Equal(t, "FACE,LIVENESS", row.Capabilities)

	back := row.ToDomain()
	require.Equal(t, []types.Capability{types.CapabilityFace, types.CapabilityLiveness}, back.Capabilities)
}
