package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClockTime is a time of day expressed as minutes since local midnight.
// 1440 is allowed as an end-of-day bound.
type ClockTime int

const MinutesPerDay ClockTime = 24 * 60

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

var ErrInvalidClockTime = errors.New("invalid time of day")

// ParseClockTime accepts "HH:MM" or "HH:MM:SS" (seconds must be zero).
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	if h < 0 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	c := NewClockTime(h, m)
	if c > MinutesPerDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	return c, nil
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On returns the instant of c on the calendar day of date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
}

// AvailabilityTemplate is one resource's working window for one day of
// the week. Day 0 is Sunday, matching time.Weekday.
type AvailabilityTemplate struct {
	bun.BaseModel `bun:"table:availability_templates"`

	ResourceKind ResourceKind `bun:"resource_kind,pk"`
	ResourceID   uuid.UUID    `bun:"resource_id,pk,type:uuid"`
	DayOfWeek    int16        `bun:"day_of_week,pk"`
	WindowStart  ClockTime    `bun:"window_start_minute,notnull"`
	WindowEnd    ClockTime    `bun:"window_end_minute,notnull"`
	IsAvailable  bool         `bun:"is_available,notnull"`
	UpdatedAt    time.Time    `bun:"updated_at,notnull"`
}

func (t AvailabilityTemplate) Resource() ResourceRef {
	return ResourceRef{Kind: t.ResourceKind, ID: t.ResourceID}
}

func (t AvailabilityTemplate) Weekday() time.Weekday {
	return time.Weekday(t.DayOfWeek)
}

func (t AvailabilityTemplate) Validate() error {
	if !t.ResourceKind.Valid() {
		return errors.New("resource kind must be practitioner or room")
	}
	if t.ResourceID == uuid.Nil {
		return errors.New("resource id is required")
	}
	if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
		return errors.New("day_of_week must be between 0 and 6")
	}
	if t.WindowStart < 0 || t.WindowEnd > MinutesPerDay {
		return errors.New("window must lie within one day")
	}
	if t.WindowEnd <= t.WindowStart {
		return errors.New("window_end must be after window_start")
	}
	return nil
}

// Window materializes the template on the calendar day of date. The
// result is in loc; callers convert to UTC when they need to.
func (t AvailabilityTemplate) Window(date time.Time, loc *time.Location) Interval {
	return Interval{
		Start: t.WindowStart.On(date, loc),
		End:   t.WindowEnd.On(date, loc),
	}
}

func (t *AvailabilityTemplate) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		t.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// DayBounds returns local midnight-to-midnight for the calendar day of
// date in loc.
func DayBounds(date time.Time, loc *time.Location) Interval {
	y, m, d := date.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return Interval{Start: start, End: time.Date(y, m, d+1, 0, 0, 0, 0, loc)}
}
