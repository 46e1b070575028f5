package reports_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/hooks"
	"github.com/babur-hussain/toon-fleet-server/internal/reports"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

func newService(t *testing.T) *reports.Service {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)
	return reports.New(handle, hooks.New(zerolog.Nop()))
}

func TestRequest_StartsPending(t *testing.T) {
	svc := newService(t)
	report, err := svc.Request(context.Background(), reports.Request{TenantID: "tenant-1", Kind: types.ReportAttendance, Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, types.ReportPending, report.Status)
}

func TestDownload_NotReadyBeforeMarkReady(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	report, err := svc.Request(ctx, reports.Request{TenantID: "tenant-1", Kind: types.ReportSummary, Format: "xlsx"})
	require.NoError(t, err)

	_, err = svc.Download(ctx, report.ReportID, "tenant-1")
	assert.ErrorIs(t, err, reports.ErrNotReady)
}

func TestDownload_ReturnsStorageRefOnceReady(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	report, err := svc.Request(ctx, reports.Request{TenantID: "tenant-1", Kind: types.ReportSummary, Format: "xlsx"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkReady(ctx, report.ReportID, "s3://bucket/report.xlsx"))

	ref, err := svc.Download(ctx, report.ReportID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/report.xlsx", ref)
}

func TestDelete_RemovesMetadataRow(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	report, err := svc.Request(ctx, reports.Request{TenantID: "tenant-1", Kind: types.ReportAttendance, Format: "csv"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, report.ReportID, "tenant-1"))

	_, err = svc.Get(ctx, report.ReportID, "tenant-1")
	assert.ErrorIs(t, err, reports.ErrNotFound)
}

func TestGet_WrongTenantNotFound(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	report, err := svc.Request(ctx, reports.Request{TenantID: "tenant-1", Kind: types.ReportAttendance, Format: "csv"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, report.ReportID, "tenant-2")
	assert.ErrorIs(t, err, reports.ErrNotFound)
}
