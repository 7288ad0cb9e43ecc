package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/store"
)

const maxParallelSlotQueries = 8

type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type ResourceSlots struct {
	Resource domain.ResourceRef
	Slots    []Slot
}

type TemplateSource interface {
	FindTemplate(ctx context.Context, ref domain.ResourceRef, day time.Weekday) (domain.AvailabilityTemplate, error)
}

// SlotGenerator renders a resource's working window for one day as a
// grid of fixed-width slots. It holds no state between calls and takes
// no locks.
type SlotGenerator struct {
	templates TemplateSource
	conflicts ConflictIndex
	cfg       Config
	deps      deps
}

func NewSlotGenerator(templates TemplateSource, bookings store.BookingReader, cfg Config, opts ...Option) *SlotGenerator {
	return &SlotGenerator{
		templates: templates,
		conflicts: NewConflictIndex(bookings),
		cfg:       cfg.withDefaults(),
		deps:      newDeps(opts),
	}
}

func (g *SlotGenerator) Location() *time.Location {
	return g.cfg.Location
}

const maxGranularity = 24 * time.Hour

// GenerateSlots returns the slots of ref's working window on the clinic
// calendar day containing date. A day without a template, or with an
// unavailable one, yields an empty result. A granularity of zero uses
// the configured default. The last slot is shorter when the window is
// not a whole number of steps.
func (g *SlotGenerator) GenerateSlots(ctx context.Context, ref domain.ResourceRef, date time.Time, granularity time.Duration) ([]Slot, error) {
	if !ref.Kind.Valid() || ref.ID == uuid.Nil {
		return nil, validationError(ReasonInvalidArgument, "resource is required")
	}
	if date.IsZero() {
		return nil, validationError(ReasonInvalidArgument, "date is required")
	}
	if granularity == 0 {
		granularity = g.cfg.Granularity
	}
	if granularity < time.Minute || granularity > maxGranularity {
		return nil, validationError(ReasonInvalidArgument, "granularity must be between 1m and 24h")
	}

	started := g.deps.now()
	loc := g.cfg.Location
	day := date.In(loc).Weekday()

	t, err := g.templates.FindTemplate(ctx, ref, day)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []Slot{}, nil
		}
		return nil, err
	}
	if !t.IsAvailable {
		return []Slot{}, nil
	}

	window := t.Window(date, loc)
	if !window.Valid() {
		return []Slot{}, nil
	}

	snap, err := g.conflicts.Snapshot(ctx, ref, window)
	if err != nil {
		return nil, err
	}

	slots := make([]Slot, 0, int((window.Duration()+granularity-1)/granularity))
	free := 0
	for start := window.Start; start.Before(window.End); start = start.Add(granularity) {
		end := start.Add(granularity)
		if end.After(window.End) {
			end = window.End
		}
		available := !snap.Conflicts(domain.NewInterval(start, end), uuid.Nil)
		if available {
			free++
		}
		slots = append(slots, Slot{Start: start, End: end, Available: available})
	}

	g.deps.metrics.ObserveSlots(free, len(slots)-free, g.deps.now().Sub(started))
	return slots, nil
}

// GenerateForResources runs GenerateSlots for each ref concurrently.
// Results keep the order of refs.
func (g *SlotGenerator) GenerateForResources(ctx context.Context, refs []domain.ResourceRef, date time.Time, granularity time.Duration) ([]ResourceSlots, error) {
	if len(refs) == 0 {
		return nil, validationError(ReasonInvalidArgument, "at least one resource is required")
	}

	out := make([]ResourceSlots, len(refs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelSlotQueries)

	for i, ref := range refs {
		eg.Go(func() error {
			slots, err := g.GenerateSlots(egCtx, ref, date, granularity)
			if err != nil {
				return err
			}
			out[i] = ResourceSlots{Resource: ref, Slots: slots}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
