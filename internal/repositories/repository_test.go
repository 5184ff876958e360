package repositories

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/db"
	"chat-sync/internal/logging"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.Connect(db.DriverSQLite, filepath.Join(t.TempDir(), "chat.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func countRows(t *testing.T, database *sqlx.DB, query string, args ...interface{}) int {
	t.Helper()
	var count int
	require.NoError(t, database.GetContext(context.Background(), &count, query, args...))
	return count
}
