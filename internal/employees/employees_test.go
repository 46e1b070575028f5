package employees_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/employees"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

func newService(t *testing.T) *employees.Service {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	handle, err := db.Open(db.NewSQLiteConnector(zerolog.Nop(), dsn))
	require.NoError(t, err)
	return employees.New(handle)
}

func TestEnroll_CreatesActiveEmployee(t *testing.T) {
	svc := newService(t)
	e, err := svc.Enroll(context.Background(), types.Employee{EmployeeID: "emp-1", TenantID: "tenant-1", FullName: "Ada Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, types.EmployeeActive, e.Status)
}

func TestEnroll_DuplicateIDRejected(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Enroll(ctx, types.Employee{EmployeeID: "emp-1", TenantID: "tenant-1", FullName: "Ada"})
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, types.Employee{EmployeeID: "emp-1", TenantID: "tenant-1", FullName: "Ada Again"})
	assert.ErrorIs(t, err, employees.ErrAlreadyExists)
}

func TestList_ScopesToTenant(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Enroll(ctx, types.Employee{EmployeeID: "emp-1", TenantID: "tenant-1", FullName: "Ada"})
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, types.Employee{EmployeeID: "emp-2", TenantID: "tenant-2", FullName: "Grace"})
	require.NoError(t, err)

	page, err := svc.List(ctx, employees.ListParams{TenantID: "tenant-1"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "emp-1", page.Data[0].EmployeeID)
}

func TestUpdate_ChangesOnlyProvidedFields(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Enroll(ctx, types.Employee{EmployeeID: "emp-1", TenantID: "tenant-1", FullName: "Ada", ExternalRef: "ext-1"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "emp-1", "tenant-1", "Ada Lovelace", "")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.FullName)
	assert.Equal(t, "ext-1", updated.ExternalRef)
}

func TestDelete_SoftDeletesRatherThanRemoving(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Enroll(ctx, types.Employee{EmployeeID: "emp-1", TenantID: "tenant-1", FullName: "Ada"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "emp-1", "tenant-1"))

	e, err := svc.Get(ctx, "emp-1", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, types.EmployeeInactive, e.Status)
}

func TestDelete_UnknownEmployeeErrors(t *testing.T) {
	svc := newService(t)
	err := svc.Delete(context.Background(), "no-such-employee", "tenant-1")
	assert.ErrorIs(t, err, employees.ErrNotFound)
}
