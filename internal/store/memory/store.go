// Package memory is an in-process store used for development and
// tests. Transactions serialize on per-key mutexes; writes are applied
// immediately, so a transaction function must validate before it writes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/store"
)

type templateKey struct {
	kind domain.ResourceKind
	id   uuid.UUID
	day  int16
}

type Store struct {
	mu        sync.RWMutex
	bookings  map[uuid.UUID]domain.Booking
	templates map[templateKey]domain.AvailabilityTemplate
	locks     *keyedMutex
	now       func() time.Time
}

func New() *Store {
	return &Store{
		bookings:  make(map[uuid.UUID]domain.Booking),
		templates: make(map[templateKey]domain.AvailabilityTemplate),
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) FindBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListActiveByResource(ctx context.Context, ref domain.ResourceRef, window domain.Interval) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.activeOverlapping(ref, window, uuid.Nil), nil
}

func (s *Store) ListBookings(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := domain.NewInterval(filter.WindowStart, filter.WindowEnd)
	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if !b.Interval().Overlaps(window) {
			continue
		}
		if filter.Resource != nil && !b.Uses(*filter.Resource) {
			continue
		}
		if filter.PatientID != uuid.Nil && b.PatientID != filter.PatientID {
			continue
		}
		if !filter.IncludeCancelled && !b.Active() {
			continue
		}
		out = append(out, b)
	}
	sortByStart(out)
	return out, nil
}

func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	t := &tx{s: s, held: make(map[store.LockKey]struct{})}
	defer t.release()
	return fn(ctx, t)
}

func (s *Store) FindTemplate(ctx context.Context, ref domain.ResourceRef, day time.Weekday) (domain.AvailabilityTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[templateKey{kind: ref.Kind, id: ref.ID, day: int16(day)}]
	if !ok {
		return domain.AvailabilityTemplate{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context, ref domain.ResourceRef) ([]domain.AvailabilityTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AvailabilityTemplate, 0, 7)
	for k, t := range s.templates {
		if k.kind == ref.Kind && k.id == ref.ID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

func (s *Store) UpsertTemplate(ctx context.Context, t domain.AvailabilityTemplate) (domain.AvailabilityTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.UpdatedAt = s.now()
	s.templates[templateKey{kind: t.ResourceKind, id: t.ResourceID, day: t.DayOfWeek}] = t
	return t, nil
}

// activeOverlapping must be called with s.mu held.
func (s *Store) activeOverlapping(ref domain.ResourceRef, window domain.Interval, exclude uuid.UUID) []domain.Booking {
	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if b.ID == exclude || !b.Active() || !b.Uses(ref) {
			continue
		}
		if b.Interval().Overlaps(window) {
			out = append(out, b)
		}
	}
	sortByStart(out)
	return out
}

// checkOverlap mirrors the exclusion constraints of the postgres schema.
// It must be called with s.mu held.
func (s *Store) checkOverlap(b domain.Booking) error {
	if !b.Active() {
		return nil
	}
	if len(s.activeOverlapping(b.Practitioner(), b.Interval(), b.ID)) > 0 {
		return store.ErrPractitionerOverlap
	}
	if len(s.activeOverlapping(b.Room(), b.Interval(), b.ID)) > 0 {
		return store.ErrRoomOverlap
	}
	return nil
}

func sortByStart(rows []domain.Booking) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StartTime.Equal(rows[j].StartTime) {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		return rows[i].StartTime.Before(rows[j].StartTime)
	})
}

type tx struct {
	s     *Store
	held  map[store.LockKey]struct{}
	order []store.LockKey
}

func (t *tx) Lock(ctx context.Context, keys ...store.LockKey) error {
	for _, k := range store.SortedKeys(keys) {
		if _, ok := t.held[k]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		t.s.locks.lock(k)
		t.held[k] = struct{}{}
		t.order = append(t.order, k)
	}
	return nil
}

func (t *tx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.s.locks.unlock(t.order[i])
	}
	t.order = nil
	t.held = nil
}

func (t *tx) FindBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return t.s.FindBooking(ctx, id)
}

func (t *tx) ListActiveByResource(ctx context.Context, ref domain.ResourceRef, window domain.Interval) ([]domain.Booking, error) {
	return t.s.ListActiveByResource(ctx, ref, window)
}

func (t *tx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Booking{}, err
		}
		b.ID = id
	}
	if existing, ok := t.s.bookings[b.ID]; ok {
		if !existing.SameRequest(b) {
			return domain.Booking{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}
	if err := t.s.checkOverlap(b); err != nil {
		return domain.Booking{}, err
	}

	now := t.s.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	t.s.bookings[b.ID] = b
	return b, nil
}

func (t *tx) UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	existing, ok := t.s.bookings[b.ID]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	if err := t.s.checkOverlap(b); err != nil {
		return domain.Booking{}, err
	}

	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = t.s.now()
	t.s.bookings[b.ID] = b
	return b, nil
}

func (t *tx) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.bookings[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.s.bookings, id)
	return nil
}
