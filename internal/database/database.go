package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/huandu/go-sqlbuilder"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/logger"
)

type Database struct {
	DB     *sqlx.DB
	Flavor sqlbuilder.Flavor
	Config config.DatabaseConnection
}

// pingAttempts bounds the startup wait for a networked database.
const pingAttempts = 30

// DSN returns the database/sql driver name and data source name for cfg.
func DSN(cfg config.DatabaseConnection) (string, string, error) {
	switch cfg.Type {
	case "mysql":
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&clientFoundRows=true&multiStatements=true",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database), nil
	case "postgres":
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Path:     cfg.Database,
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
		return "pgx", u.String(), nil
	case "sqlite":
		return "sqlite", cfg.FilePath, nil
	default:
		return "", "", fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// FlavorFor returns the SQL builder flavor for a database type.
func FlavorFor(dbType string) sqlbuilder.Flavor {
	switch dbType {
	case "postgres":
		return sqlbuilder.PostgreSQL
	case "sqlite":
		return sqlbuilder.SQLite
	default:
		return sqlbuilder.MySQL
	}
}

func NewDatabase(ctx context.Context, cfg config.DatabaseConnection) (*Database, error) {
	driver, dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	attempts := pingAttempts
	if cfg.Type == "sqlite" {
		attempts = 1
	}
	if err := ping(ctx, db, attempts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Connection pool settings
	if cfg.Type == "sqlite" {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(time.Hour)
	}

	logger.Log.Info("Connected to database",
		zap.String("type", cfg.Type),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return &Database{
		DB:     db,
		Flavor: FlavorFor(cfg.Type),
		Config: cfg,
	}, nil
}

func ping(ctx context.Context, db *sqlx.DB, attempts int) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if i+1 < attempts {
			logger.Log.Info("Waiting for database...", zap.Error(err), zap.Int("attempt", i+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
	return err
}

func applyPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}

// ExecTx executes a function within a transaction
func (d *Database) ExecTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}
