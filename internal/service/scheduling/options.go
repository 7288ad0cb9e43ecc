package scheduling

import (
	"log/slog"
	"time"

	"chairside/backend/internal/events"
	"chairside/backend/internal/metrics"
)

const (
	DefaultGranularity = 20 * time.Minute
	DefaultMaxDuration = 4 * time.Hour
)

type Config struct {
	// Granularity quantizes slots and booking durations.
	Granularity time.Duration
	MaxDuration time.Duration
	// Location is the clinic timezone used to resolve calendar days.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.Granularity <= 0 {
		c.Granularity = DefaultGranularity
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

type deps struct {
	logger    *slog.Logger
	publisher events.Publisher
	metrics   *metrics.Collector
	now       func() time.Time
}

type Option func(*deps)

func WithLogger(l *slog.Logger) Option {
	return func(d *deps) { d.logger = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(d *deps) { d.publisher = p }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(d *deps) { d.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

func newDeps(opts []Option) deps {
	d := deps{
		logger:    slog.Default(),
		publisher: events.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	d.logger = d.logger.With("component", "scheduling")
	return d
}
