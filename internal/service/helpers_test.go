package service

import (
	"database/sql"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"creditflow/internal/database"
	"creditflow/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.New(logger.ErrorLevel, io.Discard)
}

// newTestDB, test başına izole bir in-memory sqlite açar ve şemayı kurar.
// Tek bağlantıya sabitlenir; aksi halde her yeni bağlantı boş bir in-memory
// veritabanı görür.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	migrations := database.NewMigrationService(db, "sqlite3", testLogger())
	require.NoError(t, migrations.RunMigrations())

	return db
}
