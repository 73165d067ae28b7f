package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/outreach-agent/internal/conversation"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteBusyPragma = "_pragma=busy_timeout(5000)"

// IsSQLite reports whether dsn points at a sqlite database rather than MySQL.
func IsSQLite(dsn string) bool {
	d := strings.ToLower(dsn)
	if strings.HasPrefix(d, "file:") || strings.HasPrefix(d, "sqlite://") {
		return true
	}
	path, _, _ := strings.Cut(d, "?")
	return strings.HasSuffix(path, ".sqlite") || strings.HasSuffix(path, ".db") || path == ":memory:"
}

// Connect opens dsn with the sqlite driver for file DSNs and MySQL otherwise.
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: newGormLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn))}

	if !IsSQLite(dsn) {
		gdb, err := gorm.Open(mysql.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("db: open mysql: %w", err)
		}
		return gdb, nil
	}

	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if err := ensureDir(dsn); err != nil {
		return nil, err
	}
	if !strings.Contains(dsn, "busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + sqliteBusyPragma
	}

	gdb, err := gorm.Open(gormsqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: sqlite handle: %w", err)
	}
	// sqlite allows one writer; a single connection keeps upserts serialized
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

// newGormLogger reports slow queries and errors through w. Missing rows are
// the normal unseen-lead path and are not logged.
func newGormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	if path == "" || strings.HasPrefix(path, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("db: create %s: %w", dir, err)
	}
	return nil
}

// Migrate creates the conversation table plus any extra models, e.g. the
// reply job table.
func Migrate(gdb *gorm.DB, extra ...any) error {
	models := append([]any{&conversation.Record{}}, extra...)
	if err := gdb.AutoMigrate(models...); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// InMemoryDSN returns a shared-cache in-memory sqlite DSN private to name.
func InMemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", nonIdent.ReplaceAllString(name, "_"))
}
