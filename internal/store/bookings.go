package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"chairside/backend/internal/domain"
)

// LockKey names something a transaction serializes on. Keys are locked
// in sorted order within one Lock call; booking keys are always taken
// before resource keys.
type LockKey string

func ResourceLock(ref domain.ResourceRef) LockKey {
	return LockKey("resource:" + ref.String())
}

func BookingLock(id uuid.UUID) LockKey {
	return LockKey("booking:" + id.String())
}

// SortedKeys returns keys deduplicated and sorted.
func SortedKeys(keys []LockKey) []LockKey {
	seen := make(map[LockKey]struct{}, len(keys))
	out := make([]LockKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type BookingFilter struct {
	WindowStart      time.Time
	WindowEnd        time.Time
	Resource         *domain.ResourceRef
	PatientID        uuid.UUID
	IncludeCancelled bool
}

type BookingReader interface {
	FindBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	// ListActiveByResource returns non-cancelled bookings on ref that
	// overlap window, ordered by start time.
	ListActiveByResource(ctx context.Context, ref domain.ResourceRef, window domain.Interval) ([]domain.Booking, error)
}

type BookingTx interface {
	BookingReader

	Lock(ctx context.Context, keys ...LockKey) error
	InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error
}

type BookingRepository interface {
	BookingReader

	ListBookings(ctx context.Context, filter BookingFilter) ([]domain.Booking, error)
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error
}

type AvailabilityRepository interface {
	FindTemplate(ctx context.Context, ref domain.ResourceRef, day time.Weekday) (domain.AvailabilityTemplate, error)
	ListTemplates(ctx context.Context, ref domain.ResourceRef) ([]domain.AvailabilityTemplate, error)
	UpsertTemplate(ctx context.Context, t domain.AvailabilityTemplate) (domain.AvailabilityTemplate, error)
}
