package db

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver     string
	DSN        string
	SQLitePath string
	MaxOpen    int
	MaxIdle    int
}

// ConfigFromEnv resolves DATABASE_URL, then POSTGRES_* parts, then DB_DRIVER=sqlite with SQLITE_PATH.
func ConfigFromEnv() Config {
	cfg := Config{
		Driver:     strings.ToLower(envutil.String("DB_DRIVER", DriverPostgres)),
		DSN:        envutil.String("DATABASE_URL", ""),
		SQLitePath: envutil.String("SQLITE_PATH", ""),
		MaxOpen:    envutil.Int("DB_MAX_OPEN_CONNS", 20),
		MaxIdle:    envutil.Int("DB_MAX_IDLE_CONNS", 5),
	}
	if cfg.Driver == DriverPostgres && cfg.DSN == "" {
		host := envutil.String("POSTGRES_HOST", "")
		if host != "" {
			u := url.URL{
				Scheme:   "postgres",
				User:     url.UserPassword(envutil.String("POSTGRES_USER", "postgres"), envutil.String("POSTGRES_PASSWORD", "")),
				Host:     host + ":" + envutil.String("POSTGRES_PORT", "5432"),
				Path:     "/" + envutil.String("POSTGRES_NAME", "roadmaps"),
				RawQuery: "sslmode=" + envutil.String("POSTGRES_SSLMODE", "disable"),
			}
			cfg.DSN = u.String()
		}
	}
	return cfg
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.DSN) == "" {
			return ragerr.Config("DATABASE_URL", "missing store connection string (set DATABASE_URL or POSTGRES_HOST)")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return ragerr.Config("SQLITE_PATH", "required when DB_DRIVER=sqlite")
		}
	default:
		return ragerr.Config("DB_DRIVER", fmt.Sprintf("unsupported driver %q", c.Driver))
	}
	return nil
}

// Open connects and prepares extensions. Schema migration is separate (AutoMigrateAll).
func Open(logg *logger.Logger, cfg Config) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	serviceLog := logg.With("service", "Database", "driver", cfg.Driver)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gcfg)
	default:
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverSQLite {
		// A single connection keeps ":memory:" databases shared across the pool.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpen > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpen)
		}
		if cfg.MaxIdle > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdle)
		}
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
			return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
		}
	}
	serviceLog.Info("database connected")
	return db, nil
}

// IsPostgres reports whether db is backed by the postgres dialect.
func IsPostgres(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && db.Dialector.Name() == DriverPostgres
}
