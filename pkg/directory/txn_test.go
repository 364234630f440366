package directory

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_BeginCommit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	c := NewCoordinator(db)
	ctx := context.Background()

	require.NoError(t, c.BeginTransaction(ctx))
	require.NoError(t, c.CommitTransaction(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoordinator_BeginRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	c := NewCoordinator(db)
	ctx := context.Background()

	require.NoError(t, c.BeginTransaction(ctx))
	require.NoError(t, c.RollbackTransaction(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoordinator_NestedBeginRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()

	c := NewCoordinator(db)
	ctx := context.Background()

	require.NoError(t, c.BeginTransaction(ctx))
	assert.Error(t, c.BeginTransaction(ctx))
}

func TestCoordinator_AbandonFreesCoordinatorForNextBegin(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	c := NewCoordinator(db)
	ctx := context.Background()

	require.NoError(t, c.BeginTransaction(ctx))
	c.AbandonTransaction(ctx)
	require.NoError(t, c.BeginTransaction(ctx))
	require.NoError(t, c.CommitTransaction(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoordinator_AbandonWithoutOpenTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := NewCoordinator(db)
	c.AbandonTransaction(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoordinator_CommitWithoutBegin(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := NewCoordinator(db)

	assert.Error(t, c.CommitTransaction(context.Background()))
	assert.Error(t, c.RollbackTransaction(context.Background()))
}

func TestCoordinator_QuerierRoutesThroughOpenTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c := NewCoordinator(db)
	ctx := context.Background()

	require.NoError(t, c.BeginTransaction(ctx))
	_, err = c.querier().ExecContext(ctx, "DELETE FROM users WHERE id = $1", 1)
	require.NoError(t, err)
	require.NoError(t, c.CommitTransaction(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
