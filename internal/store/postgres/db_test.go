package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/uptrace/bun"
)

func TestQueryLogger(t *testing.T) {
	cases := []struct {
		name  string
		slow  time.Duration
		event bun.QueryEvent
		want  string
	}{
		{
			name:  "slow query",
			slow:  100 * time.Millisecond,
			event: bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-time.Second)},
			want:  "slow query",
		},
		{
			name:  "fast query",
			slow:  time.Hour,
			event: bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()},
		},
		{
			name:  "slow logging disabled",
			event: bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-time.Hour)},
		},
		{
			name:  "failure",
			event: bun.QueryEvent{Query: "INSERT INTO bookings", StartTime: time.Now(), Err: errors.New("boom")},
			want:  "query failed",
		},
		{
			name:  "no rows is not a failure",
			event: bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now(), Err: sql.ErrNoRows},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			ev := tc.event

			newQueryLogger(log, tc.slow).AfterQuery(context.Background(), &ev)

			if tc.want == "" {
				if buf.Len() != 0 {
					t.Fatalf("expected no output, got %q", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, buf.String())
			}
			if !strings.Contains(buf.String(), "component=postgres") {
				t.Fatalf("missing component attr: %q", buf.String())
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abc", 5); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Fatalf("got %q", got)
	}
	// 'é' is two bytes; cutting inside it backs off to the rune start.
	if got := truncate("héllo", 2); got != "h..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("'Zoë Ñúñez'", 4); got != "'Zo..." || !utf8.ValidString(got) {
		t.Fatalf("got %q", got)
	}
}
