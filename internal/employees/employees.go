// Package employees implements tenant-scoped CRUD over the employee
// directory that attendance events reference. Deletion is soft: a deleted
// employee is marked inactive, never removed, so historical events keep a
// resolvable employee_id.
package employees

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

var ErrNotFound = errors.New("employee not found")
var ErrAlreadyExists = errors.New("employee already exists")

// Service is the employee directory store.
type Service struct {
	db *db.DB
}

// New constructs a Service.
func New(handle *db.DB) *Service {
	return &Service{db: handle}
}

// Enroll creates a new employee record, scoped to tenantID.
func (s *Service) Enroll(ctx context.Context, e types.Employee) (types.Employee, error) {
	var existing db.EmployeeRow
	err := s.db.Conn.Where("employee_id = ?", e.EmployeeID).First(&existing).Error
	if err == nil {
		return types.Employee{}, ErrAlreadyExists
	}
	if err != gorm.ErrRecordNotFound {
		return types.Employee{}, err
	}

	now := time.Now().UTC()
	e.Status = types.EmployeeActive
	e.CreatedAt = now
	e.UpdatedAt = now

	row := db.EmployeeFromDomain(e)
	if err := s.db.Conn.Create(&row).Error; err != nil {
		return types.Employee{}, err
	}
	return row.ToDomain(), nil
}

// Get returns one employee scoped to tenantID.
func (s *Service) Get(ctx context.Context, employeeID, tenantID string) (types.Employee, error) {
	var row db.EmployeeRow
	err := s.db.Conn.Where("employee_id = ? AND tenant_id = ?", employeeID, tenantID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.Employee{}, ErrNotFound
		}
		return types.Employee{}, err
	}
	return row.ToDomain(), nil
}

// ListParams narrows List to one tenant and a page window.
type ListParams struct {
	TenantID string
	Offset   uint64
	Limit    uint64
}

// List returns a tenant-scoped page of employees.
func (s *Service) List(ctx context.Context, params ListParams) (types.Collection[types.Employee], error) {
	limit := params.Limit
	if limit == 0 {
		limit = 50
	}

	q := s.db.Conn.Model(&db.EmployeeRow{}).Where("tenant_id = ?", params.TenantID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return types.Collection[types.Employee]{}, err
	}

	var rows []db.EmployeeRow
	if err := s.db.Conn.Where("tenant_id = ?", params.TenantID).
		Offset(int(params.Offset)).Limit(int(limit)).Find(&rows).Error; err != nil {
		return types.Collection[types.Employee]{}, err
	}

	out := make([]types.Employee, len(rows))
	for i, r := range rows {
		out[i] = r.ToDomain()
	}

	return types.Collection[types.Employee]{
		Data:       out,
		Count:      uint64(len(out)),
		Offset:     params.Offset,
		Limit:      limit,
		TotalCount: uint64(total),
	}, nil
}

// Update applies a partial update to an existing, tenant-scoped employee.
func (s *Service) Update(ctx context.Context, employeeID, tenantID string, fullName, externalRef string) (types.Employee, error) {
	existing, err := s.Get(ctx, employeeID, tenantID)
	if err != nil {
		return types.Employee{}, err
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if fullName != "" {
		updates["full_name"] = fullName
		existing.FullName = fullName
	}
	if externalRef != "" {
		updates["external_ref"] = externalRef
		existing.ExternalRef = externalRef
	}

	if err := s.db.Conn.Model(&db.EmployeeRow{}).
		Where("employee_id = ? AND tenant_id = ?", employeeID, tenantID).
		Updates(updates).Error; err != nil {
		return types.Employee{}, err
	}
	return existing, nil
}

// Delete soft-deletes a tenant-scoped employee by marking it inactive.
func (s *Service) Delete(ctx context.Context, employeeID, tenantID string) error {
	result := s.db.Conn.Model(&db.EmployeeRow{}).
		Where("employee_id = ? AND tenant_id = ?", employeeID, tenantID).
		Updates(map[string]any{"status": string(types.EmployeeInactive), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
