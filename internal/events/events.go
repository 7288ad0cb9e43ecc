// Package events describes booking lifecycle notifications and the
// publishers that deliver them to downstream consumers such as the
// reminder service.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chairside/backend/internal/domain"
)

type Kind string

const (
	KindCreated       Kind = "booking.created"
	KindMoved         Kind = "booking.moved"
	KindResized       Kind = "booking.resized"
	KindStatusChanged Kind = "booking.status_changed"
	KindUpdated       Kind = "booking.updated"
	KindDeleted       Kind = "booking.deleted"
)

type Booking struct {
	ID             uuid.UUID            `json:"id"`
	PatientID      uuid.UUID            `json:"patient_id"`
	PractitionerID uuid.UUID            `json:"practitioner_id"`
	RoomID         uuid.UUID            `json:"room_id"`
	Start          time.Time            `json:"start"`
	End            time.Time            `json:"end"`
	Type           domain.BookingType   `json:"type"`
	Status         domain.BookingStatus `json:"status"`
	Notes          string               `json:"notes,omitempty"`
}

func snapshot(b domain.Booking) *Booking {
	return &Booking{
		ID:             b.ID,
		PatientID:      b.PatientID,
		PractitionerID: b.PractitionerID,
		RoomID:         b.RoomID,
		Start:          b.StartTime.UTC(),
		End:            b.EndTime.UTC(),
		Type:           b.Type,
		Status:         b.Status,
		Notes:          b.Notes,
	}
}

type Event struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	BookingID  uuid.UUID `json:"booking_id"`
	Booking    *Booking  `json:"booking,omitempty"`
	Previous   *Booking  `json:"previous,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New builds an event for current. previous is nil for creations;
// current is nil for deletions, in which case previous must be set.
func New(kind Kind, current, previous *domain.Booking, at time.Time) Event {
	e := Event{
		ID:         uuid.New(),
		Kind:       kind,
		OccurredAt: at.UTC(),
	}
	if current != nil {
		e.BookingID = current.ID
		e.Booking = snapshot(*current)
	}
	if previous != nil {
		e.BookingID = previous.ID
		e.Previous = snapshot(*previous)
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(ctx context.Context, e Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Drain returns everything published since the last Drain.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}
