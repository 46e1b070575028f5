package audit_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babur-hussain/toon-fleet-server/internal/audit"
	"github.com/babur-hussain/toon-fleet-server/internal/db"
)

func TestRecord_WritesRetrievableRow(t *testing.T) {
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)

	recorder := audit.New(handle)
	id, err := recorder.Record(audit.Entry{
		TenantID:   "tenant-1",
		DeviceID:   "dev-1",
		Endpoint:   "/devices/events",
		RawPayload: "A1:evt-1",
		Response:   "S1:accepted",
		Status:     "processed",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var row db.AuditRow
	require.NoError(t, handle.Conn.First(&row, "audit_id = ?", id).Error)
	assert.Equal(t, "/devices/events", row.Endpoint)
	assert.Equal(t, "processed", row.Status)
}
