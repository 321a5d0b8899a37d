package persistence

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/kernel/internal/infrastructure/database"
)

func newMockDB(t *testing.T) (*database.TiDBConnection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.NewFromDB(db), mock
}

// q escapes a literal SQL fragment for the regexp query matcher.
func q(sql string) string {
	return regexp.QuoteMeta(sql)
}
