package scheduling

import (
	"context"

	"github.com/google/uuid"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/store"
)

// ConflictIndex answers overlap questions against the active bookings
// visible to its reader. Inside a transaction the reader is the
// transaction, so answers reflect the locked state.
type ConflictIndex struct {
	reader store.BookingReader
}

func NewConflictIndex(reader store.BookingReader) ConflictIndex {
	return ConflictIndex{reader: reader}
}

// Conflicting returns the active bookings on ref that overlap
// candidate, skipping exclude.
func (ix ConflictIndex) Conflicting(ctx context.Context, ref domain.ResourceRef, candidate domain.Interval, exclude uuid.UUID) ([]domain.Booking, error) {
	snap, err := ix.Snapshot(ctx, ref, candidate)
	if err != nil {
		return nil, err
	}
	return snap.Conflicting(candidate, exclude), nil
}

func (ix ConflictIndex) Conflicts(ctx context.Context, ref domain.ResourceRef, candidate domain.Interval, exclude uuid.UUID) (bool, error) {
	rows, err := ix.Conflicting(ctx, ref, candidate, exclude)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Check validates candidate against both resources and returns a
// *ConflictError naming each one that is taken.
func (ix ConflictIndex) Check(ctx context.Context, practitionerID, roomID uuid.UUID, candidate domain.Interval, exclude uuid.UUID) error {
	var cErr ConflictError
	seen := make(map[uuid.UUID]struct{})

	for _, ref := range []domain.ResourceRef{domain.Practitioner(practitionerID), domain.Room(roomID)} {
		rows, err := ix.Conflicting(ctx, ref, candidate, exclude)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		cErr.Resources = append(cErr.Resources, ref)
		for _, b := range rows {
			if _, ok := seen[b.ID]; ok {
				continue
			}
			seen[b.ID] = struct{}{}
			cErr.BookingIDs = append(cErr.BookingIDs, b.ID)
		}
	}

	if len(cErr.Resources) == 0 {
		return nil
	}
	return &cErr
}

// Snapshot reads the active bookings on ref overlapping window once so
// that many candidates can be checked without further reads.
func (ix ConflictIndex) Snapshot(ctx context.Context, ref domain.ResourceRef, window domain.Interval) (Snapshot, error) {
	rows, err := ix.reader.ListActiveByResource(ctx, ref, window)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Resource: ref, Window: window, bookings: rows}, nil
}

type Snapshot struct {
	Resource domain.ResourceRef
	Window   domain.Interval
	bookings []domain.Booking
}

func (s Snapshot) Conflicting(candidate domain.Interval, exclude uuid.UUID) []domain.Booking {
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.ID == exclude && exclude != uuid.Nil {
			continue
		}
		if !b.Active() || !b.Uses(s.Resource) {
			continue
		}
		if b.Interval().Overlaps(candidate) {
			out = append(out, b)
		}
	}
	return out
}

func (s Snapshot) Conflicts(candidate domain.Interval, exclude uuid.UUID) bool {
	return len(s.Conflicting(candidate, exclude)) > 0
}
