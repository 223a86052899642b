package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/relaybot/core/logger"
)

// RunMigrations waits for Postgres and applies every pending up migration
// under cfg.MigrationsPath.
func RunMigrations(ctx context.Context, cfg Config) error {
	if err := WaitForPostgres(ctx, cfg, 30*time.Second); err != nil {
		logger.Error(ctx, "db.migrate", "migrate.wait",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
		return fmt.Errorf("database not ready: %w", err)
	}

	dir, err := filepath.Abs(cfg.MigrationsPath)
	if err != nil {
		return fmt.Errorf("resolve migrations path: %w", err)
	}
	src, err := iofs.New(os.DirFS(dir), ".")
	if err != nil {
		logger.Error(ctx, "db.migrate", "migrate.source",
			slog.String("status", "fail"),
			slog.String("path", dir),
			slog.Any("err", err),
		)
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.URL())
	if err != nil {
		_ = src.Close()
		logger.Error(ctx, "db.migrate", "migrate.init",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
		return fmt.Errorf("initialize migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	m.Log = migrateLog{ctx: ctx}

	from := currentVersion(m)
	start := time.Now()
	err = m.Up()
	took := logger.RoundMS(time.Since(start))

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info(ctx, "db.migrate", "migrate.summary",
			slog.String("status", "skip"),
			slog.Uint64("from_ver", uint64(from)),
			slog.Uint64("to_ver", uint64(from)),
			slog.Int("files", 0),
			slog.Duration("duration", took),
		)
		return nil
	case err != nil:
		logger.Error(ctx, "db.migrate", "migrate.apply",
			slog.String("status", "fail"),
			slog.Duration("duration", took),
			slog.Any("err", err),
		)
		return fmt.Errorf("apply migrations: %w", err)
	}

	to := currentVersion(m)
	applied := migrationsBetween(src, from, to)
	preview, truncated := logger.SummarizeStrings(applied, 6)
	logger.Info(ctx, "db.migrate", "migrate.summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", truncated),
		slog.Duration("duration", took),
	)
	return nil
}

// currentVersion is 0 before the first migration.
func currentVersion(m *migrate.Migrate) uint {
	v, _, err := m.Version()
	if err != nil {
		return 0
	}
	return v
}

// migrationsBetween names the up migrations with versions in (from, to].
func migrationsBetween(src source.Driver, from, to uint) []string {
	var names []string
	v, err := src.First()
	for err == nil && v <= to {
		if v > from {
			name := fmt.Sprintf("%06d", v)
			if r, ident, rerr := src.ReadUp(v); rerr == nil {
				_ = r.Close()
				name += "_" + ident
			}
			names = append(names, name)
		}
		v, err = src.Next(v)
	}
	return names
}

// migrateLog forwards golang-migrate's progress lines as debug events.
type migrateLog struct {
	ctx context.Context
}

func (l migrateLog) Printf(format string, v ...any) {
	logger.Debug(l.ctx, "db.migrate", "migrate.step",
		slog.String("detail", strings.TrimSpace(fmt.Sprintf(format, v...))),
	)
}

func (l migrateLog) Verbose() bool { return false }
