package database

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestOpenSQLiteRoutesStatementErrorsThroughLogger(testContext *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	database, err := OpenSQLite(filepath.Join(testContext.TempDir(), "logging.db"), zap.New(core))
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	defer sqlDB.Close()
	logs.TakeAll()

	gormEntries := func() []observer.LoggedEntry {
		return logs.Filter(func(entry observer.LoggedEntry) bool {
			return entry.LoggerName == "gorm"
		}).All()
	}

	var missing store.Tag
	if err := database.Where("name = ?", "absent").Take(&missing).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		testContext.Fatalf("expected record not found, got %v", err)
	}
	if entries := gormEntries(); len(entries) != 0 {
		testContext.Fatalf("not-found lookups must not be logged, got %v", entries)
	}

	if err := database.Exec("SELECT * FROM no_such_table").Error; err == nil {
		testContext.Fatalf("expected query against a missing table to fail")
	}
	entries := gormEntries()
	if len(entries) != 1 {
		testContext.Fatalf("expected one gorm entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || !strings.Contains(entries[0].Message, "no_such_table") {
		testContext.Fatalf("unexpected gorm entry %#v", entries[0])
	}
}
