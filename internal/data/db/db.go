package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/platform/envutil"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver     string
	DSN        string
	SQLitePath string
}

// ConfigFromEnv reads DATABASE_DRIVER and the POSTGRES_* variables. DATABASE_URL
// wins over the individual parts when set.
func ConfigFromEnv() Config {
	cfg := Config{
		Driver:     strings.ToLower(envutil.String("DATABASE_DRIVER", DriverPostgres)),
		DSN:        envutil.String("DATABASE_URL", ""),
		SQLitePath: envutil.String("SQLITE_PATH", "convolab.db"),
	}
	if cfg.Driver == DriverPostgres && cfg.DSN == "" {
		cfg.DSN = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			envutil.String("POSTGRES_USER", "postgres"),
			envutil.String("POSTGRES_PASSWORD", ""),
			envutil.String("POSTGRES_HOST", "localhost"),
			envutil.String("POSTGRES_PORT", "5432"),
			envutil.String("POSTGRES_NAME", "convolab"),
		)
	}
	return cfg
}

type Service struct {
	db     *gorm.DB
	log    *logger.Logger
	driver string
}

func Open(baseLog *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := baseLog.With("service", "DBService", "driver", cfg.Driver)

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
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}

	var (
		gdb *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		gdb, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
	case DriverSQLite:
		gdb, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gcfg)
		if err == nil {
			// sqlite allows a single writer
			if sqlDB, dbErr := gdb.DB(); dbErr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	serviceLog.Info("database connected")
	return &Service{db: gdb, log: serviceLog, driver: cfg.Driver}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrate() error {
	if err := AutoMigrateAll(s.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	s.log.Info("database migrated")
	return nil
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(domain.Models()...)
}
