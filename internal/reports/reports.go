// Package reports owns report request contracts and persisted metadata
// only — it never renders the underlying XLSX/CSV bytes. A report starts
// pending, transitions to ready once the (external) rendering step deposits
// a storage reference, or failed.
package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/hooks"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

var ErrNotFound = errors.New("report not found")
var ErrNotReady = errors.New("report not ready")

// Service is the report metadata store.
type Service struct {
	db  *db.DB
	bus *hooks.Bus
}

// New constructs a Service.
func New(handle *db.DB, bus *hooks.Bus) *Service {
	return &Service{db: handle, bus: bus}
}

// Request describes a new report generation request.
type Request struct {
	TenantID    string
	Kind        types.ReportKind
	ParamsJSON  string
	Format      string
	RequestedBy string
}

// Request persists a new pending report and returns its id.
func (s *Service) Request(ctx context.Context, req Request) (types.Report, error) {
	report := types.Report{
		ReportID:    uuid.NewString(),
		TenantID:    req.TenantID,
		Kind:        req.Kind,
		ParamsJSON:  req.ParamsJSON,
		Status:      types.ReportPending,
		Format:      req.Format,
		RequestedBy: req.RequestedBy,
		RequestedAt: time.Now().UTC(),
	}

	row := db.ReportRow{
		ReportID:    report.ReportID,
		TenantID:    report.TenantID,
		Kind:        string(report.Kind),
		ParamsJSON:  report.ParamsJSON,
		Status:      string(report.Status),
		Format:      report.Format,
		RequestedBy: report.RequestedBy,
		RequestedAt: report.RequestedAt,
	}
	if err := s.db.Conn.Create(&row).Error; err != nil {
		return types.Report{}, err
	}
	return report, nil
}

// Get returns a tenant-scoped report by id.
func (s *Service) Get(ctx context.Context, reportID, tenantID string) (types.Report, error) {
	var row db.ReportRow
	err := s.db.Conn.Where("report_id = ? AND tenant_id = ?", reportID, tenantID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.Report{}, ErrNotFound
		}
		return types.Report{}, err
	}
	return row.ToDomain(), nil
}

// MarkReady transitions a report to ready with its storage reference,
// emitting onReportGenerated.
func (s *Service) MarkReady(ctx context.Context, reportID, storageRef string) error {
	now := time.Now().UTC()
	result := s.db.Conn.Model(&db.ReportRow{}).Where("report_id = ?", reportID).
		Updates(map[string]any{"status": string(types.ReportReady), "ready_at": now, "storage_ref": storageRef})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	if s.bus != nil {
		var row db.ReportRow
		if err := s.db.Conn.Where("report_id = ?", reportID).First(&row).Error; err == nil {
			s.bus.Emit(ctx, &types.ReportGenerated{ReportID: reportID, TenantID: row.TenantID, OccurredAt: now})
		}
	}
	return nil
}

// MarkFailed transitions a report to failed.
func (s *Service) MarkFailed(ctx context.Context, reportID string) error {
	result := s.db.Conn.Model(&db.ReportRow{}).Where("report_id = ?", reportID).
		Update("status", string(types.ReportFailed))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Download returns the storage reference for a ready report, or
// ErrNotReady if it hasn't finished rendering.
func (s *Service) Download(ctx context.Context, reportID, tenantID string) (string, error) {
	report, err := s.Get(ctx, reportID, tenantID)
	if err != nil {
		return "", err
	}
	if report.Status != types.ReportReady {
		return "", ErrNotReady
	}
	return report.StorageRef, nil
}

// Delete removes a report's metadata row. The rendered artifact, if any, is
// the caller's responsibility to reap from storage.
func (s *Service) Delete(ctx context.Context, reportID, tenantID string) error {
	result := s.db.Conn.Where("report_id = ? AND tenant_id = ?", reportID, tenantID).Delete(&db.ReportRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
