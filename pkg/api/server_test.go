package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/directory"
	"github.com/wardenhq/warden/pkg/middleware"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/review"
	"github.com/wardenhq/warden/pkg/staging"
	"github.com/wardenhq/warden/pkg/status"
)

type testServer struct {
	handler http.Handler
	ledger  *staging.Store
	mock    sqlmock.Sqlmock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	ledger := staging.NewStore(t.TempDir(), logger, nil, nil)
	txn := directory.NewCoordinator(db)
	users := directory.NewUserService(txn, ledger, logger)
	roles := directory.NewRoleService(txn, ledger, logger)
	devices := directory.NewDeviceService(txn, ledger, logger)
	settings := directory.NewSettingService(txn, ledger, logger)
	committer := review.NewCommitter(ledger, review.Mutators{
		Users:    users,
		Roles:    roles,
		Devices:  devices,
		Settings: settings,
	}, txn, logger, nil, nil)

	server := NewServer(committer, users, roles, devices, settings, logger, nil)
	return &testServer{handler: server.Handler(), ledger: ledger, mock: mock}
}

func (ts *testServer) do(t *testing.T, method, path, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if sessionID != "" {
		req.Header.Set(middleware.SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestStageUserCreate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/users", "s1",
		`{"username":"jdoe","password":"s3cret-enough","email":"jdoe@example.com"}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	doc, err := ts.ledger.ReadDocument("s1")
	require.NoError(t, err)
	require.NotNil(t, doc.Users)
	require.Len(t, doc.Users.Create, 1)
	assert.Equal(t, "jdoe", doc.Users.Create[0]["username"])
}

func TestStageUserCreate_MissingSessionHeader(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/users", "",
		`{"username":"jdoe","password":"s3cret-enough"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStageUserCreate_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/users", "s1", `{broken`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStageUserCreate_DuplicateStagedUsername(t *testing.T) {
	ts := newTestServer(t)
	payload := `{"username":"jdoe","password":"s3cret-enough"}`

	first := ts.do(t, http.MethodPost, "/api/v1/users", "s1", payload)
	require.Equal(t, http.StatusOK, first.Code)

	second := ts.do(t, http.MethodPost, "/api/v1/users", "s1", payload)
	assert.Equal(t, http.StatusConflict, second.Code)

	var result status.Result
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &result))
	assert.Equal(t, status.Conflict, result.Status)
	assert.Equal(t, "user already exists", result.Message)
}

func TestStageUserCreate_ValidationFailure(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/users", "s1", `{"username":"jdoe","password":"short"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStageDeviceDelete(t *testing.T) {
	ts := newTestServer(t)

	now := time.Now().UTC()
	ts.mock.ExpectQuery(`SELECT id, name, address, model`).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "model", "enabled", "created_at", "updated_at"}).
			AddRow(4, "router-1", "10.0.0.1", "vx-9", true, now, now))

	rec := ts.do(t, http.MethodDelete, "/api/v1/devices/4", "s1", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	doc, err := ts.ledger.ReadDocument("s1")
	require.NoError(t, err)
	require.NotNil(t, doc.Devices)
	assert.Equal(t, []staging.IdentityRecord{{ID: 4, Name: "router-1"}}, doc.Devices.Delete)
}

func TestStageUserUpdate_BadID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/v1/users/not-a-number", "s1", `{"email":"x@example.com"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadPendingChanges(t *testing.T) {
	ts := newTestServer(t)

	create := ts.do(t, http.MethodPost, "/api/v1/roles", "s1", `{"name":"auditor"}`)
	require.Equal(t, http.StatusOK, create.Code)

	rec := ts.do(t, http.MethodGet, "/api/v1/pending-changes", "s1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var doc staging.SessionDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.NotNil(t, doc.Roles)
	assert.Len(t, doc.Roles.Create, 1)
}

func TestReadPendingChanges_MissingSessionHeader(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/pending-changes", "", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverwritePendingChanges(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/v1/pending-changes", "s1",
		`{"devices":{"delete":[{"id":2,"name":"router-1"}]}}`)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	doc, err := ts.ledger.ReadDocument("s1")
	require.NoError(t, err)
	require.NotNil(t, doc.Devices)
	assert.Len(t, doc.Devices.Delete, 1)
}

func TestReviewAndSave_CommitsStagedCreate(t *testing.T) {
	ts := newTestServer(t)

	create := ts.do(t, http.MethodPost, "/api/v1/users", "s1",
		`{"username":"jdoe","password":"s3cret-enough"}`)
	require.Equal(t, http.StatusOK, create.Code)

	ts.mock.ExpectBegin()
	ts.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("jdoe").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	ts.mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	ts.mock.ExpectCommit()

	rec := ts.do(t, http.MethodPost, "/api/v1/pending-changes/save", "s1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, ts.mock.ExpectationsWereMet())

	doc, err := ts.ledger.ReadDocument("s1")
	require.NoError(t, err)
	assert.Empty(t, doc.ActiveCategories())
}

func TestReviewAndSave_MultipleCategoriesRejected(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPost, "/api/v1/users", "s1", `{"username":"jdoe","password":"s3cret-enough"}`).Code)
	require.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPost, "/api/v1/roles", "s1", `{"name":"auditor"}`).Code)

	rec := ts.do(t, http.MethodPost, "/api/v1/pending-changes/save", "s1", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var result review.CommitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, status.InvalidOperation, result.Status)
	assert.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestReviewAndSave_RejectedStepRollsBack(t *testing.T) {
	ts := newTestServer(t)

	// A staged setting create always replays as Forbidden.
	overwrite := ts.do(t, http.MethodPut, "/api/v1/pending-changes", "s1",
		`{"settingAndPolicies":{"create":[{"name":"rogue"}]}}`)
	require.Equal(t, http.StatusNoContent, overwrite.Code)

	ts.mock.ExpectBegin()
	ts.mock.ExpectRollback()

	rec := ts.do(t, http.MethodPost, "/api/v1/pending-changes/save", "s1", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var result review.CommitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, status.InternalError, result.Status)
	assert.Equal(t, "settingAndPolicies/create[0]", result.FailedStep)
	assert.NoError(t, ts.mock.ExpectationsWereMet())

	// The ledger file is retained for correction.
	doc, err := ts.ledger.ReadDocument("s1")
	require.NoError(t, err)
	assert.Equal(t, []staging.Category{staging.CategorySettings}, doc.ActiveCategories())
}

func TestReviewAndSave_DuplicateNameSurfacesAsConflict(t *testing.T) {
	ts := newTestServer(t)

	overwrite := ts.do(t, http.MethodPut, "/api/v1/pending-changes", "s1",
		`{"users":{"update":[{"id":1,"name":"jdoe","newValue":{"username":"taken"}}]}}`)
	require.Equal(t, http.StatusNoContent, overwrite.Code)

	ts.mock.ExpectBegin()
	ts.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("taken", 1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ts.mock.ExpectRollback()

	rec := ts.do(t, http.MethodPost, "/api/v1/pending-changes/save", "s1", "")

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], `user "taken"`)
	assert.NoError(t, ts.mock.ExpectationsWereMet())

	// The ledger file is retained for correction.
	doc, err := ts.ledger.ReadDocument("s1")
	require.NoError(t, err)
	assert.Equal(t, []staging.Category{staging.CategoryUsers}, doc.ActiveCategories())
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/pending-changes", "s1", "")

	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}
