package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

const sqlitePrefix = "sqlite://"

var ErrNotConfigured = errors.New("database url is not configured")

type Config struct {
	URL             string        `envconfig:"URL" split_words:"true"`
	MaxOpenConns    int           `split_words:"true" default:"10"`
	MaxIdleConns    int           `split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"30m"`
	SlowQuery       time.Duration `split_words:"true" default:"500ms"`
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.URL) != ""
}

// Open connects to Postgres, or to SQLite when the URL starts with sqlite://.
func Open(cfg Config) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.URL)
	if dsn == "" {
		return nil, ErrNotConfigured
	}

	var db *bun.DB
	if strings.HasPrefix(dsn, sqlitePrefix) {
		var err error
		db, err = OpenSQLite(strings.TrimPrefix(dsn, sqlitePrefix))
		if err != nil {
			return nil, err
		}
	} else {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	}

	db.AddQueryHook(queryLogger{slow: cfg.SlowQuery})
	return db, nil
}

// OpenSQLite opens a SQLite database through the pure-Go driver. In-memory
// databases are pinned to one connection so every query sees the same data.
func OpenSQLite(dsn string) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = ":memory:"
	}
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqldb.SetMaxOpenConns(1)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func Ping(ctx context.Context, db *bun.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

type queryLogger struct {
	slow time.Duration
}

func (q queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (q queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		log.Error().Err(event.Err).Dur("elapsed", elapsed).Str("query", truncate(event.Query, 300)).Msg("database query failed")
	case q.slow > 0 && elapsed > q.slow:
		log.Warn().Dur("elapsed", elapsed).Str("query", truncate(event.Query, 300)).Msg("slow database query")
	default:
		log.Debug().Dur("elapsed", elapsed).Str("query", truncate(event.Query, 300)).Msg("database query")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
