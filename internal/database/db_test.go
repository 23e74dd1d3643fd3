package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalogURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Target
		wantErr bool
	}{
		{"postgres", "postgres://u:p@localhost:5432/catalog?sslmode=disable",
			Target{Dialect: DialectPostgres, DSN: "postgres://u:p@localhost:5432/catalog?sslmode=disable"}, false},
		{"postgresql", "postgresql://localhost/catalog",
			Target{Dialect: DialectPostgres, DSN: "postgresql://localhost/catalog"}, false},
		{"sqlite scheme", "sqlite:///var/lib/pelotonexport/catalog.db",
			Target{Dialect: DialectSQLite, DSN: "/var/lib/pelotonexport/catalog.db"}, false},
		{"bare path", "catalog.db", Target{Dialect: DialectSQLite, DSN: "catalog.db"}, false},
		{"empty", "", Target{}, true},
		{"sqlite without path", "sqlite://", Target{}, true},
		{"unsupported", "mysql://localhost/catalog", Target{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCatalogURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTarget_Redacted(t *testing.T) {
	pg := Target{Dialect: DialectPostgres, DSN: "postgres://user:secret@db:5432/catalog"}
	assert.Equal(t, "postgres://***@db:5432/catalog", pg.Redacted())
	assert.NotContains(t, pg.Redacted(), "secret")

	lite := Target{Dialect: DialectSQLite, DSN: "/tmp/catalog.db"}
	assert.Equal(t, "sqlite:///tmp/catalog.db", lite.Redacted())
}

func TestOpen_SQLite(t *testing.T) {
	target := Target{Dialect: DialectSQLite, DSN: filepath.Join(t.TempDir(), "catalog.db")}

	db, err := Open(target)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping())
}

// TestOpen_PostgresDoesNotConnect はsql.Openが接続を試行しないことを検証する。
func TestOpen_PostgresDoesNotConnect(t *testing.T) {
	db, err := Open(Target{Dialect: DialectPostgres, DSN: "postgres://invalid"})
	require.NoError(t, err)
	require.NotNil(t, db)
	db.Close()
}

func TestRunMigrations_SQLite(t *testing.T) {
	target := Target{Dialect: DialectSQLite, DSN: filepath.Join(t.TempDir(), "catalog.db")}

	require.NoError(t, RunMigrations(target))

	db, err := Open(target)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"export_runs", "exported_workouts"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "テーブル %s が作成されていない", table)
	}

	v, err := Version(target)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	target := Target{Dialect: DialectSQLite, DSN: filepath.Join(t.TempDir(), "catalog.db")}

	require.NoError(t, RunMigrations(target))
	require.NoError(t, RunMigrations(target), "2回目の適用はErrNoChangeとして成功すべき")
}

func TestVersion_BeforeMigrations(t *testing.T) {
	target := Target{Dialect: DialectSQLite, DSN: filepath.Join(t.TempDir(), "catalog.db")}

	v, err := Version(target)
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
}
