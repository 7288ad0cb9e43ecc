package chairsidev1

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/service/scheduling"
)

// FromBooking renders b with times in loc so that clients see the
// clinic's offset.
func FromBooking(b domain.Booking, loc *time.Location) Booking {
	return Booking{
		ID:              b.ID.String(),
		PatientID:       b.PatientID.String(),
		PractitionerID:  b.PractitionerID.String(),
		RoomID:          b.RoomID.String(),
		StartTime:       b.StartTime.In(loc),
		EndTime:         b.EndTime.In(loc),
		DurationMinutes: int(b.Interval().Duration() / time.Minute),
		Type:            string(b.Type),
		Status:          string(b.Status),
		Notes:           b.Notes,
		CreatedAt:       b.CreatedAt.In(loc),
		UpdatedAt:       b.UpdatedAt.In(loc),
	}
}

func FromBookings(rows []domain.Booking, loc *time.Location) []Booking {
	out := make([]Booking, 0, len(rows))
	for _, b := range rows {
		out = append(out, FromBooking(b, loc))
	}
	return out
}

func FromSlots(slots []scheduling.Slot, loc *time.Location) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		out = append(out, Slot{
			StartTime: s.Start.In(loc),
			EndTime:   s.End.In(loc),
			Available: s.Available,
		})
	}
	return out
}

func FromTemplate(t domain.AvailabilityTemplate) Template {
	out := Template{
		Resource:    t.Resource().String(),
		DayOfWeek:   int(t.DayOfWeek),
		WindowStart: t.WindowStart.String(),
		WindowEnd:   t.WindowEnd.String(),
		IsAvailable: t.IsAvailable,
	}
	if !t.UpdatedAt.IsZero() {
		out.UpdatedAt = t.UpdatedAt.UTC()
	}
	return out
}

func FromTemplates(rows []domain.AvailabilityTemplate) []Template {
	out := make([]Template, 0, len(rows))
	for _, t := range rows {
		out = append(out, FromTemplate(t))
	}
	return out
}

// ToTemplate parses the wire form. ref overrides t.Resource when set,
// for transports that carry the resource in the path.
func ToTemplate(t Template, ref *domain.ResourceRef) (domain.AvailabilityTemplate, error) {
	var r domain.ResourceRef
	if ref != nil {
		r = *ref
	} else {
		parsed, err := domain.ParseResourceRef(t.Resource)
		if err != nil {
			return domain.AvailabilityTemplate{}, err
		}
		r = parsed
	}

	start, err := domain.ParseClockTime(t.WindowStart)
	if err != nil {
		return domain.AvailabilityTemplate{}, err
	}
	end, err := domain.ParseClockTime(t.WindowEnd)
	if err != nil {
		return domain.AvailabilityTemplate{}, err
	}
	if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
		return domain.AvailabilityTemplate{}, errors.New("day_of_week must be between 0 and 6")
	}

	return domain.AvailabilityTemplate{
		ResourceKind: r.Kind,
		ResourceID:   r.ID,
		DayOfWeek:    int16(t.DayOfWeek),
		WindowStart:  start,
		WindowEnd:    end,
		IsAvailable:  t.IsAvailable,
	}, nil
}

// ParseDate reads a calendar date in the clinic timezone.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return d, nil
}

// MaxGranularityMinutes bounds granularity_minutes to one day.
const MaxGranularityMinutes = 24 * 60

// ParseGranularity converts granularity_minutes to a duration. Zero
// means the configured default.
func ParseGranularity(n int) (time.Duration, error) {
	if n < 0 || n > MaxGranularityMinutes {
		return 0, fmt.Errorf("granularity_minutes must be between 0 and %d", MaxGranularityMinutes)
	}
	return time.Duration(n) * time.Minute, nil
}

// ParseID parses a required UUID field.
func ParseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s must be a UUID", field)
	}
	return id, nil
}

// ParseOptionalID returns uuid.Nil for an empty string.
func ParseOptionalID(field, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, nil
	}
	return ParseID(field, s)
}
