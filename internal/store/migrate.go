package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// goose keeps dialect and base FS in package state.
var gooseMu sync.Mutex

// Migrate applies pending schema migrations for the DB's dialect. It is safe
// to run on every start; applied versions are tracked by goose.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if logger == nil {
		logger = slog.Default()
	}
	goose.SetLogger(gooseLogger{logger})
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect(db.gooseDialect()); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.Client, "migrations/"+string(db.Dialect)); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the latest applied migration version.
func SchemaVersion(ctx context.Context, db *DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(db.gooseDialect()); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db.Client)
}

func (d *DB) gooseDialect() string {
	if d.Dialect == SQLite {
		return "sqlite3"
	}
	return string(d.Dialect)
}

type gooseLogger struct{ l *slog.Logger }

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Info(fmt.Sprintf(format, v...), "source", "goose")
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Error(fmt.Sprintf(format, v...), "source", "goose")
}
