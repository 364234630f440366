package directory

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/staging"
	"github.com/wardenhq/warden/pkg/status"
)

func newMockDeviceService(t *testing.T) (*DeviceService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	ledger := staging.NewStore(t.TempDir(), logger, nil, nil)
	return NewDeviceService(NewCoordinator(db), ledger, logger), mock
}

func deviceRow(id uint64, name string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "address", "model", "enabled", "created_at", "updated_at"}).
		AddRow(id, name, "10.0.0.1", "vx-9", true, now, now)
}

func TestDeviceAdd_Persisted(t *testing.T) {
	svc, mock := newMockDeviceService(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM devices WHERE name = \$1\)`).
		WithArgs("router-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO devices`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

	result, err := svc.Add(context.Background(), map[string]interface{}{
		"name":    "router-1",
		"address": "10.0.0.1",
		"model":   "vx-9",
		"enabled": true,
	}, true)

	require.NoError(t, err)
	assert.Equal(t, status.Success, result.Status)
	device, ok := result.Entity.(*Device)
	require.True(t, ok)
	assert.Equal(t, uint64(4), device.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceAdd_NameRequired(t *testing.T) {
	svc, _ := newMockDeviceService(t)

	result, err := svc.Add(context.Background(), map[string]interface{}{"address": "10.0.0.1"}, true)

	require.NoError(t, err)
	assert.Equal(t, status.BadRequest, result.Status)
	assert.Equal(t, "device name is required", result.Message)
}

func TestDeviceAdd_DuplicateName(t *testing.T) {
	svc, mock := newMockDeviceService(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("router-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	result, err := svc.Add(context.Background(), map[string]interface{}{"name": "router-1"}, true)

	require.NoError(t, err)
	assert.Equal(t, status.Conflict, result.Status)
	assert.Equal(t, "device already exists", result.Message)
}

func TestDeviceUpdate_StagedRecordsDiff(t *testing.T) {
	svc, mock := newMockDeviceService(t)
	ctx := sessionContext("s1")

	mock.ExpectQuery(`SELECT id, name, address, model`).
		WithArgs(uint64(4)).
		WillReturnRows(deviceRow(4, "router-1"))

	result, err := svc.Update(ctx, 4, map[string]interface{}{"enabled": false}, false)

	require.NoError(t, err)
	assert.True(t, result.Status.OK())

	doc, err := svc.ledger.ReadDocument("s1")
	require.NoError(t, err)
	require.Len(t, doc.Devices.Update, 1)
	assert.Equal(t, "router-1", doc.Devices.Update[0].Name)
}

func TestDeviceDelete_Persisted(t *testing.T) {
	svc, mock := newMockDeviceService(t)

	mock.ExpectExec(`DELETE FROM devices WHERE id = \$1`).
		WithArgs(uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.Delete(context.Background(), 4, true)

	require.NoError(t, err)
	assert.True(t, result.Status.OK())
}

func TestDeviceDelete_PersistedNotFound(t *testing.T) {
	svc, mock := newMockDeviceService(t)

	mock.ExpectExec(`DELETE FROM devices`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	result, err := svc.Delete(context.Background(), 404, true)

	require.NoError(t, err)
	assert.Equal(t, status.NotFound, result.Status)
}
