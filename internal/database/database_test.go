package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-sync-service/internal/config"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.DatabaseConnection
		driver string
		dsn    string
	}{
		{
			name:   "mysql",
			cfg:    config.DatabaseConnection{Type: "mysql", Host: "db", Port: 3306, User: "mes", Password: "pw", Database: "mes"},
			driver: "mysql",
			dsn:    "mes:pw@tcp(db:3306)/mes?parseTime=true&loc=UTC&clientFoundRows=true&multiStatements=true",
		},
		{
			name:   "postgres",
			cfg:    config.DatabaseConnection{Type: "postgres", Host: "db", Port: 5432, User: "mes", Password: "p@ss", Database: "mes"},
			driver: "pgx",
			dsn:    "postgres://mes:p%40ss@db:5432/mes?sslmode=disable",
		},
		{
			name:   "sqlite",
			cfg:    config.DatabaseConnection{Type: "sqlite", FilePath: "/data/mes.db"},
			driver: "sqlite",
			dsn:    "/data/mes.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := DSN(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}

	_, _, err := DSN(config.DatabaseConnection{Type: "oracle"})
	assert.Error(t, err)
}

func TestFlavorFor(t *testing.T) {
	assert.Equal(t, sqlbuilder.PostgreSQL, FlavorFor("postgres"))
	assert.Equal(t, sqlbuilder.SQLite, FlavorFor("sqlite"))
	assert.Equal(t, sqlbuilder.MySQL, FlavorFor("mysql"))
}

func TestNewDatabaseSQLiteExecTx(t *testing.T) {
	ctx := context.Background()
	db, err := NewDatabase(ctx, config.DatabaseConnection{
		Type:     "sqlite",
		FilePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.DB.ExecContext(ctx, "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	err = db.ExecTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)")
		return err
	})
	require.NoError(t, err)

	err = db.ExecTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (2)"); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	var count int
	require.NoError(t, db.DB.GetContext(ctx, &count, "SELECT COUNT(*) FROM t"))
	assert.Equal(t, 1, count)
}
