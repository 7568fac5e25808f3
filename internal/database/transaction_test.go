package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestManager_WithTransaction_Commit(t *testing.T) {
	db, mock := setupMockDB(t)
	mgr := NewManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM summary").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := mgr.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM summary")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithTransaction_Rollback(t *testing.T) {
	db, mock := setupMockDB(t)
	mgr := NewManager(db)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := mgr.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithTransaction_Panic(t *testing.T) {
	db, mock := setupMockDB(t)
	mgr := NewManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = mgr.WithTransaction(context.Background(), func(tx *sql.Tx) error {
			panic("unexpected")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithRetry_RecoversFromDeadlock(t *testing.T) {
	db, mock := setupMockDB(t)
	mgr := NewManager(db)

	deadlock := &mysql.MySQLError{Number: ErrNumDeadlock, Message: "Deadlock found when trying to get lock"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO summary").WillReturnError(deadlock)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO summary").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := mgr.WithRetryConfig(context.Background(), &RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond},
		func(tx *sql.Tx) error {
			attempts++
			_, err := tx.Exec("INSERT INTO summary (entity_id) VALUES (1)")
			return err
		})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithRetry_GivesUp(t *testing.T) {
	db, mock := setupMockDB(t)
	mgr := NewManager(db)

	timeout := &mysql.MySQLError{Number: ErrNumLockWaitTimeout, Message: "Lock wait timeout exceeded"}
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err := mgr.WithRetryConfig(context.Background(), &RetryConfig{MaxRetries: 2, BaseBackoff: time.Millisecond},
		func(tx *sql.Tx) error { return timeout })

	assert.ErrorIs(t, err, ErrDeadlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithRetry_DoesNotRetryOtherErrors(t *testing.T) {
	db, mock := setupMockDB(t)
	mgr := NewManager(db)

	syntax := &mysql.MySQLError{Number: ErrNumSyntax}
	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := mgr.WithRetryConfig(context.Background(), DefaultRetryConfig(), func(tx *sql.Tx) error {
		attempts++
		return syntax
	})

	assert.ErrorIs(t, err, syntax)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithRetry_CancelledContext(t *testing.T) {
	db, _ := setupMockDB(t)
	mgr := NewManager(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mgr.WithRetryConfig(ctx, DefaultRetryConfig(), func(tx *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
