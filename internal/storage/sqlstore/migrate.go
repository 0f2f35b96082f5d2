package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var migrations embed.FS

// goose keeps its dialect, base FS and logger in package globals.
var gooseMu sync.Mutex

// Migrate applies all pending schema migrations for the store's dialect.
func (db *DB) Migrate(ctx context.Context, logger *slog.Logger) error {
	sub, err := fs.Sub(migrations, "migrations/"+db.dialect.driver)
	if err != nil {
		return fmt.Errorf("sqlstore: migrations fs: %w", err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(sub)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect(db.dialect.goose); err != nil {
		return fmt.Errorf("sqlstore: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.conn.DB, "."); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Debug("migrate: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Error("migrate: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
	}
	panic(fmt.Sprintf(format, v...))
}
