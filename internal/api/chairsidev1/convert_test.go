package chairsidev1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chairside/backend/internal/domain"
)

func TestFromBooking_RendersClinicOffset(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	b := domain.Booking{
		ID:             uuid.MustParse("0190a000-0000-7000-8000-000000000001"),
		PatientID:      uuid.MustParse("0190a000-0000-7000-8000-000000000002"),
		PractitionerID: uuid.MustParse("0190a000-0000-7000-8000-000000000003"),
		RoomID:         uuid.MustParse("0190a000-0000-7000-8000-000000000004"),
		StartTime:      time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2026, 3, 2, 14, 40, 0, 0, time.UTC),
		Type:           domain.BookingTypeCleaning,
		Status:         domain.BookingStatusConfirmed,
	}

	got := FromBooking(b, loc)
	assert.Equal(t, 40, got.DurationMinutes)

	raw, err := json.Marshal(got)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "2026-03-02T09:00:00-05:00", fields["start_time"])
	assert.Equal(t, "confirmed", fields["status"])
	assert.NotContains(t, fields, "notes")
}

func TestToTemplate(t *testing.T) {
	tpl, err := ToTemplate(Template{
		Resource:    "room:0190a000-0000-7000-8000-00000000a001",
		DayOfWeek:   1,
		WindowStart: "08:00",
		WindowEnd:   "22:00",
		IsAvailable: true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResourceKindRoom, tpl.ResourceKind)
	assert.Equal(t, domain.NewClockTime(22, 0), tpl.WindowEnd)
	assert.Equal(t, "room:0190a000-0000-7000-8000-00000000a001", FromTemplate(tpl).Resource)

	_, err = ToTemplate(Template{Resource: "chair:1", WindowStart: "08:00", WindowEnd: "09:00"}, nil)
	require.Error(t, err)

	ref := domain.Practitioner(uuid.MustParse("0190a000-0000-7000-8000-00000000d001"))
	_, err = ToTemplate(Template{DayOfWeek: 9, WindowStart: "08:00", WindowEnd: "09:00"}, &ref)
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	d, err := ParseDate("2026-03-02", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, loc, d.Location())

	_, err = ParseDate("02/03/2026", loc)
	require.Error(t, err)
}

func TestParseID(t *testing.T) {
	_, err := ParseID("booking_id", "nope")
	require.EqualError(t, err, "booking_id must be a UUID")

	id, err := ParseOptionalID("room_id", "  ")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
}

func TestParseGranularity(t *testing.T) {
	d, err := ParseGranularity(0)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseGranularity(MaxGranularityMinutes)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	for _, n := range []int{-1, MaxGranularityMinutes + 1, 4972468361358203} {
		_, err := ParseGranularity(n)
		require.Error(t, err, "n=%d", n)
	}
}
