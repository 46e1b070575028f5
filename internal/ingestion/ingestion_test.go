package ingestion_test

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babur-hussain/toon-fleet-server/internal/audit"
	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/hooks"
	"github.com/babur-hussain/toon-fleet-server/internal/ingestion"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

func newEngine(t *testing.T) (*ingestion.Engine, *db.DB) {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)
	require.NoError(t, handle.Conn.Create(&db.DeviceRow{
		DeviceID: "dev_1", TenantID: "tenant-1", Status: string(types.DeviceActive),
	}).Error)

	bus := hooks.New(zerolog.Nop())
	return ingestion.New(handle, bus, audit.New(handle)), handle
}

func TestProcessBatch_ValidBatchOfTwoEvents(t *testing.T) {
	engine, handle := newEngine(t)
	body := "E1:emp_1|A1:evt_a|A2:IN|A3:2025-01-01T09:00:00Z|D1:dev_1||" +
		"E1:emp_1|A1:evt_b|A2:OUT|A3:2025-01-01T17:00:00Z|D1:dev_1"

	results, err := engine.ProcessBatch(context.Background(), "tenant-1", body)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "evt_a", results[0].EventID)
	assert.Equal(t, types.EventProcessed, results[0].Status)
	assert.Equal(t, "evt_b", results[1].EventID)
	assert.Equal(t, types.EventProcessed, results[1].Status)

	var count int64
	handle.Conn.Model(&db.EventRow{}).Count(&count)
	assert.Equal(t, int64(2), count)

	var device db.DeviceRow
	require.NoError(t, handle.Conn.Where("device_id = ?", "dev_1").First(&device).Error)
	assert.False(t, device.LastSeenAt.IsZero())
}

func TestProcessBatch_DuplicateEventRejectedWithoutNewRow(t *testing.T) {
	engine, handle := newEngine(t)
	first := "E1:emp_1|A1:evt_a|A2:IN|A3:2025-01-01T09:00:00Z|D1:dev_1"
	_, err := engine.ProcessBatch(context.Background(), "tenant-1", first)
	require.NoError(t, err)

	results, err := engine.ProcessBatch(context.Background(), "tenant-1", first)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.EventDuplicate, results[0].Status)

	var count int64
	handle.Conn.Model(&db.EventRow{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestProcessBatch_ConcurrentDuplicateInsertRaceYieldsOneRowAndOneDuplicate(t *testing.T) {
	engine, handle := newEngine(t)
	body := "E1:emp_1|A1:evt_race|A2:IN|A3:2025-01-01T09:00:00Z|D1:dev_1"

	const racers = 8
	results := make([]types.EventStatus, racers)
	errs := make([]error, racers)
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := engine.ProcessBatch(context.Background(), "tenant-1", body)
			errs[i] = err
			if err == nil && len(res) == 1 {
				results[i] = res[0].Status
			}
		}(i)
	}
	wg.Wait()

	processed, duplicate := 0, 0
	for i, err := range errs {
		require.NoError(t, err)
		switch results[i] {
		case types.EventProcessed:
			processed++
		case types.EventDuplicate:
			duplicate++
		default:
			t.Fatalf("unexpected status on racer %d: %q", i, results[i])
		}
	}
	assert.Equal(t, 1, processed, "exactly one concurrent submission wins and inserts the row")
	assert.Equal(t, racers-1, duplicate, "every other concurrent submission sees duplicate, never internal_error")

	var count int64
	handle.Conn.Model(&db.EventRow{}).Where("event_id = ?", "evt_race").Count(&count)
	assert.Equal(t, int64(1), count, "the race must never produce more than one row for the same event_id")
}

func TestProcessBatch_MissingTokenRejectsOnlyThatEvent(t *testing.T) {
	engine, handle := newEngine(t)
	body := "E1:emp_1|A1:evt_c|A2:IN|D1:dev_1"

	results, err := engine.ProcessBatch(context.Background(), "tenant-1", body)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.EventRejected, results[0].Status)
	assert.Equal(t, "missing_token:A3", results[0].Reason)

	var count int64
	handle.Conn.Model(&db.EventRow{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestProcessBatch_OneBadEventDoesNotBlockOthers(t *testing.T) {
	engine, _ := newEngine(t)
	body := "E1:emp_1|A1:evt_bad|A2:NOT_A_TYPE|A3:2025-01-01T09:00:00Z|D1:dev_1||" +
		"E1:emp_1|A1:evt_ok|A2:IN|A3:2025-01-01T09:05:00Z|D1:dev_1"

	results, err := engine.ProcessBatch(context.Background(), "tenant-1", body)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, types.EventRejected, results[0].Status)
	assert.Equal(t, "invalid_event_type", results[0].Reason)
	assert.Equal(t, types.EventProcessed, results[1].Status)
}

func TestProcessBatch_ResultsPreserveInputOrder(t *testing.T) {
	engine, _ := newEngine(t)
	body := "E1:emp_1|A1:evt_1|A2:IN|A3:2025-01-01T09:00:00Z|D1:dev_1||" +
		"E1:emp_1|A1:evt_2|A2:OUT|A3:2025-01-01T10:00:00Z|D1:dev_1||" +
		"E1:emp_1|A1:evt_3|A2:BREAK_START|A3:2025-01-01T11:00:00Z|D1:dev_1"

	results, err := engine.ProcessBatch(context.Background(), "tenant-1", body)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"evt_1", "evt_2", "evt_3"}, []string{results[0].EventID, results[1].EventID, results[2].EventID})
}

func TestProcessBatch_ReingestingSameEventIDNeverDuplicatesRows(t *testing.T) {
	engine, handle := newEngine(t)
	body := "E1:emp_1|A1:evt_idem|A2:IN|A3:2025-01-01T09:00:00Z|D1:dev_1"

	for i := 0; i < 5; i++ {
		_, err := engine.ProcessBatch(context.Background(), "tenant-1", body)
		require.NoError(t, err)
	}

	var count int64
	handle.Conn.Model(&db.EventRow{}).Where("event_id = ?", "evt_idem").Count(&count)
	assert.Equal(t, int64(1), count)
}
