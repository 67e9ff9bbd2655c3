package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	dbpkg "github.com/yungbote/convolab-backend/internal/data/db"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	dbSeq int64
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a fresh, migrated in-memory SQLite database private to the test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	name := fmt.Sprintf("file:convolab_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("test db handle: %v", err)
	}
	// one connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := dbpkg.AutoMigrateAll(db); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	return db
}

// Tx opens a transaction that is rolled back when the test ends.
func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
