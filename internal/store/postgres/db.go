package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const pingTimeout = 5 * time.Second

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SlowQuery is the duration above which a query is logged at warn.
	// Zero disables slow query logging.
	SlowQuery time.Duration
}

// Open connects through the pgx stdlib driver and verifies the
// connection. A non-nil log attaches a query hook that reports slow and
// failed statements.
func Open(ctx context.Context, databaseURL string, pool PoolConfig, log *slog.Logger) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	if log != nil {
		db.AddQueryHook(newQueryLogger(log, pool.SlowQuery))
	}
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

type queryLogger struct {
	log  *slog.Logger
	slow time.Duration
}

func newQueryLogger(log *slog.Logger, slow time.Duration) *queryLogger {
	return &queryLogger{log: log.With(slog.String("component", "postgres")), slow: slow}
}

func (q *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (q *queryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	took := time.Since(event.StartTime)

	// Exclusion violations surface as booking conflicts; they are expected.
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		q.log.DebugContext(ctx, "query failed",
			slog.String("operation", event.Operation()),
			slog.Duration("took", took),
			slog.Any("err", event.Err),
		)
		return
	}
	if q.slow > 0 && took >= q.slow {
		q.log.WarnContext(ctx, "slow query",
			slog.String("operation", event.Operation()),
			slog.Duration("took", took),
			slog.String("query", truncate(event.Query, 512)),
		)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
