package testutil

import (
	"os"
	"sync"
	"testing"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	appdb "github.com/yungbote/roadmap-backend/internal/data/db"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// Logger is silent unless the test binary runs with -v.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	if !testing.Verbose() {
		return logger.Nop()
	}
	l, err := logger.New("development")
	if err != nil {
		tb.Fatalf("logger: %v", err)
	}
	return l.With("test", tb.Name())
}

var pg struct {
	once sync.Once
	db   *gorm.DB
	err  error
}

// DB returns the shared pgvector database named by TEST_POSTGRES_DSN, migrated once per process.
// Tests are skipped when the variable is unset.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("TEST_POSTGRES_DSN not set; skipping pgvector test")
	}
	pg.once.Do(func() {
		pg.db, pg.err = migrated(appdb.Config{Driver: appdb.DriverPostgres, DSN: dsn, MaxOpen: 4})
	})
	if pg.err != nil {
		tb.Fatalf("postgres test db: %v", pg.err)
	}
	return pg.db
}

// SQLite returns a private in-memory database, closed when the test ends.
func SQLite(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := migrated(appdb.Config{Driver: appdb.DriverSQLite, SQLitePath: ":memory:"})
	if err != nil {
		tb.Fatalf("sqlite test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func migrated(cfg appdb.Config) (*gorm.DB, error) {
	db, err := appdb.Open(logger.Nop(), cfg)
	if err != nil {
		return nil, err
	}
	db.Logger = gormLogger.Discard
	if err := appdb.AutoMigrateAll(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Tx scopes db to a transaction rolled back at cleanup, so shared-database tests leave no rows behind.
func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if err := tx.Error; err != nil {
		tb.Fatalf("begin: %v", err)
	}
	tb.Cleanup(func() { tx.Rollback() })
	return tx
}
