package scheduling

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/events"
	"chairside/backend/internal/metrics"
	"chairside/backend/internal/store/memory"
)

var (
	drLee     = uuid.MustParse("0190a000-0000-7000-8000-00000000d001")
	drOkafor  = uuid.MustParse("0190a000-0000-7000-8000-00000000d002")
	roomOne   = uuid.MustParse("0190a000-0000-7000-8000-00000000a001")
	roomTwo   = uuid.MustParse("0190a000-0000-7000-8000-00000000a002")
	patientA  = uuid.MustParse("0190a000-0000-7000-8000-00000000b001")
	patientB  = uuid.MustParse("0190a000-0000-7000-8000-00000000b002")
	monday    = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	quietLogs = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func at(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fixture struct {
	store    *memory.Store
	engine   *Engine
	slots    *SlotGenerator
	events   *events.Recorder
	metrics  *metrics.Collector
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.New()
	rec := events.NewRecorder()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cfg := Config{Granularity: 20 * time.Minute, MaxDuration: 4 * time.Hour, Location: time.UTC}
	opts := []Option{WithLogger(quietLogs), WithPublisher(rec), WithMetrics(m)}

	return &fixture{
		store:    st,
		engine:   NewEngine(st, cfg, opts...),
		slots:    NewSlotGenerator(st, st, cfg, opts...),
		events:   rec,
		metrics:  m,
		registry: reg,
	}
}

func (f *fixture) workingHours(t *testing.T, ref domain.ResourceRef, day time.Weekday, from, to string) {
	t.Helper()
	start, err := domain.ParseClockTime(from)
	require.NoError(t, err)
	end, err := domain.ParseClockTime(to)
	require.NoError(t, err)

	_, err = NewTemplates(f.store, WithLogger(quietLogs)).Upsert(context.Background(), domain.AvailabilityTemplate{
		ResourceKind: ref.Kind,
		ResourceID:   ref.ID,
		DayOfWeek:    int16(day),
		WindowStart:  start,
		WindowEnd:    end,
		IsAvailable:  true,
	})
	require.NoError(t, err)
}

func (f *fixture) book(t *testing.T, practitioner, room uuid.UUID, start time.Time, minutes int) domain.Booking {
	t.Helper()
	b, err := f.engine.Create(context.Background(), CreateInput{
		PatientID:       patientA,
		PractitionerID:  practitioner,
		RoomID:          room,
		Start:           start,
		DurationMinutes: minutes,
		Type:            domain.BookingTypeCheckup,
	})
	require.NoError(t, err)
	return b
}

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, ReasonOf(err), "err = %v", err)
}

func (f *fixture) metricsCounter(op, outcome string) prometheus.Collector {
	return f.metrics.OperationCounter(op, outcome)
}
