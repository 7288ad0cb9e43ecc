package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

type schemaMigration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version   string    `bun:"version,pk"`
	AppliedAt time.Time `bun:"applied_at,notnull"`
}

// Migrate applies every goose-formatted *.sql file in fsys that has not
// been recorded in schema_migrations yet, each in its own transaction.
// It returns the names of the files it applied.
func Migrate(ctx context.Context, db *bun.DB, fsys fs.FS) ([]string, error) {
	if _, err := db.NewCreateTable().Model((*schemaMigration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := migrationNames(fsys)
	if err != nil {
		return nil, err
	}

	var done []schemaMigration
	if err := db.NewSelect().Model(&done).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list schema_migrations: %w", err)
	}
	applied := make(map[string]struct{}, len(done))
	for _, m := range done {
		applied[m.Version] = struct{}{}
	}

	var out []string
	for _, name := range names {
		if _, ok := applied[name]; ok {
			continue
		}
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return out, err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}

		err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := applyStatements(ctx, tx, upSQL); err != nil {
				return err
			}
			_, err := tx.NewInsert().Model(&schemaMigration{Version: name, AppliedAt: time.Now().UTC()}).Exec(ctx)
			return err
		})
		if err != nil {
			return out, fmt.Errorf("apply %s: %w", name, err)
		}
		out = append(out, name)
	}
	return out, nil
}

func migrationNames(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func applyStatements(ctx context.Context, exec rawExecutor, upSQL string) error {
	for _, stmt := range splitSQLStatements(upSQL) {
		if normalized, ok := normalizeExtensionStatement(stmt); ok {
			stmt = normalized
		}
		if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

// btree_gist must live in public so the exclusion constraints resolve
// when migrations run under a non-default search_path.
func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") {
		return "", false
	}
	if !strings.Contains(upper, "BTREE_GIST") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
