package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusScheduled BookingStatus = "scheduled"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusScheduled, BookingStatusConfirmed, BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// Active statuses take part in conflict checks and slot rendering.
func (s BookingStatus) Active() bool {
	return s != BookingStatusCancelled
}

type BookingType string

const (
	BookingTypeCheckup      BookingType = "checkup"
	BookingTypeCleaning     BookingType = "cleaning"
	BookingTypeFilling      BookingType = "filling"
	BookingTypeExtraction   BookingType = "extraction"
	BookingTypeRootCanal    BookingType = "root-canal"
	BookingTypeCrown        BookingType = "crown"
	BookingTypeConsultation BookingType = "consultation"
)

var BookingTypes = []BookingType{
	BookingTypeCheckup,
	BookingTypeCleaning,
	BookingTypeFilling,
	BookingTypeExtraction,
	BookingTypeRootCanal,
	BookingTypeCrown,
	BookingTypeConsultation,
}

func (t BookingType) Valid() bool {
	for _, known := range BookingTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID             uuid.UUID     `bun:"id,pk,type:uuid"`
	PatientID      uuid.UUID     `bun:"patient_id,notnull,type:uuid"`
	PractitionerID uuid.UUID     `bun:"practitioner_id,notnull,type:uuid"`
	RoomID         uuid.UUID     `bun:"room_id,notnull,type:uuid"`
	StartTime      time.Time     `bun:"start_time,notnull"`
	EndTime        time.Time     `bun:"end_time,notnull"`
	Type           BookingType   `bun:"type,notnull"`
	Status         BookingStatus `bun:"status,notnull"`
	Notes          string        `bun:"notes"`
	CreatedAt      time.Time     `bun:"created_at,notnull"`
	UpdatedAt      time.Time     `bun:"updated_at,notnull"`
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

func (b Booking) Active() bool {
	return b.Status.Active()
}

func (b Booking) Practitioner() ResourceRef {
	return Practitioner(b.PractitionerID)
}

func (b Booking) Room() ResourceRef {
	return Room(b.RoomID)
}

// Uses reports whether the booking occupies ref.
func (b Booking) Uses(ref ResourceRef) bool {
	switch ref.Kind {
	case ResourceKindPractitioner:
		return b.PractitionerID == ref.ID
	case ResourceKindRoom:
		return b.RoomID == ref.ID
	}
	return false
}

// SameRequest compares the client-supplied fields, used to detect
// idempotent replays of a create.
func (b Booking) SameRequest(o Booking) bool {
	return b.PatientID == o.PatientID &&
		b.PractitionerID == o.PractitionerID &&
		b.RoomID == o.RoomID &&
		b.StartTime.Equal(o.StartTime) &&
		b.EndTime.Equal(o.EndTime) &&
		b.Type == o.Type &&
		b.Notes == o.Notes
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}
