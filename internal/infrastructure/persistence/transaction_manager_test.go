package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTransactionCommits(t *testing.T) {
	conn, mock := newMockDB(t)
	tm := NewTransactionManager(conn)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE t SET a = 1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.WithTransaction(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		assert.Same(t, tx, ExtractTx(ctx))
		_, err := tm.Executor(ctx).ExecContext(ctx, "UPDATE t SET a = 1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	conn, mock := newMockDB(t)
	tm := NewTransactionManager(conn)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tm.WithTransaction(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionJoinsOuterTransaction(t *testing.T) {
	conn, mock := newMockDB(t)
	tm := NewTransactionManager(conn)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := tm.WithTransaction(context.Background(), func(ctx context.Context, outer *sql.Tx) error {
		return tm.WithTransaction(ctx, func(ctx context.Context, inner *sql.Tx) error {
			assert.Same(t, outer, inner)
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryRetriesDeadlocks(t *testing.T) {
	conn, mock := newMockDB(t)
	tm := NewTransactionManager(conn)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := tm.WithRetry(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		attempts++
		if attempts == 1 {
			return &mysql.MySQLError{Number: ErrDeadlock, Message: "Deadlock found"}
		}
		return nil
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	conn, mock := newMockDB(t)
	tm := NewTransactionManager(conn)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := tm.WithRetry(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		attempts++
		return &mysql.MySQLError{Number: ErrDuplicateEntry}
	}, 3)
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsDuplicateEntry(err))
}
