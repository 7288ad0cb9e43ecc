package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chairside/backend/internal/api/chairsidev1"
	"chairside/backend/internal/domain"
	"chairside/backend/internal/metrics"
	"chairside/backend/internal/service/scheduling"
	"chairside/backend/internal/store"
	"chairside/backend/internal/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	patientID      = "0190a000-0000-7000-8000-00000000b001"
	practitionerID = "0190a000-0000-7000-8000-00000000d001"
	roomID         = "0190a000-0000-7000-8000-00000000a001"
)

type fakeEngine struct {
	createFn func(ctx context.Context, in scheduling.CreateInput) (domain.Booking, error)
	getFn    func(ctx context.Context, id uuid.UUID) (domain.Booking, error)
}

func (f *fakeEngine) Create(ctx context.Context, in scheduling.CreateInput) (domain.Booking, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeEngine) Get(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeEngine) List(context.Context, store.BookingFilter) ([]domain.Booking, error) {
	panic("List not configured")
}

func (f *fakeEngine) Move(context.Context, scheduling.MoveInput) (domain.Booking, error) {
	panic("Move not configured")
}

func (f *fakeEngine) Resize(context.Context, uuid.UUID, int) (domain.Booking, error) {
	panic("Resize not configured")
}

func (f *fakeEngine) SetStatus(context.Context, uuid.UUID, domain.BookingStatus) (domain.Booking, error) {
	panic("SetStatus not configured")
}

func (f *fakeEngine) UpdateDetails(context.Context, uuid.UUID, scheduling.DetailsInput) (domain.Booking, error) {
	panic("UpdateDetails not configured")
}

func (f *fakeEngine) Delete(context.Context, uuid.UUID) error {
	panic("Delete not configured")
}

func createBody() string {
	return `{"patient_id":"` + patientID + `","practitioner_id":"` + practitionerID + `","room_id":"` + roomID +
		`","start_time":"2026-03-02T09:00:00Z","duration_minutes":40,"type":"checkup"}`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) chairsidev1.ErrorBody {
	t.Helper()
	var body chairsidev1.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateBooking_PassesIdempotencyKeyHeader(t *testing.T) {
	var got scheduling.CreateInput
	h := NewHandler(&fakeEngine{
		createFn: func(_ context.Context, in scheduling.CreateInput) (domain.Booking, error) {
			got = in
			return domain.Booking{
				ID:        uuid.New(),
				StartTime: in.Start,
				EndTime:   in.Start.Add(40 * time.Minute),
				Type:      in.Type,
				Status:    domain.BookingStatusScheduled,
			}, nil
		},
	}, nil, nil, time.UTC, discard)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", strings.NewReader(createBody()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Idempotency-Key", " key-1 ")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.CreateBooking(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.Equal(t, 40, got.DurationMinutes)
	assert.Equal(t, domain.BookingTypeCheckup, got.Type)
	assert.True(t, got.End.IsZero())

	var resp chairsidev1.CreateBookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 40, resp.Booking.DurationMinutes)
	assert.Equal(t, "scheduled", resp.Booking.Status)
}

func TestCreateBooking_RejectsBadIDs(t *testing.T) {
	h := NewHandler(&fakeEngine{}, nil, nil, time.UTC, discard)

	e := echo.New()
	body := strings.Replace(createBody(), roomID, "room-one", 1)
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.CreateBooking(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "invalid:argument", errBody.Reason)
	assert.Equal(t, "room_id must be a UUID", errBody.Error)
}

func TestCreateBooking_ErrorMapping(t *testing.T) {
	practitioner := domain.Practitioner(uuid.MustParse(practitionerID))
	room := domain.Room(uuid.MustParse(roomID))

	cases := []struct {
		name    string
		err     error
		code    int
		reasons []string
		message string
	}{
		{
			name:    "conflict on both resources",
			err:     &scheduling.ConflictError{Resources: []domain.ResourceRef{practitioner, room}},
			code:    http.StatusConflict,
			reasons: []string{"conflict:practitioner", "conflict:room"},
		},
		{
			name:    "storage backstop",
			err:     store.ErrRoomOverlap,
			code:    http.StatusConflict,
			reasons: []string{"conflict:room"},
		},
		{
			name:    "idempotency",
			err:     store.ErrIdempotencyConflict,
			code:    http.StatusConflict,
			reasons: []string{"idempotency_conflict"},
		},
		{
			name:    "not found",
			err:     &scheduling.NotFoundError{ID: uuid.New()},
			code:    http.StatusNotFound,
			reasons: []string{"not_found"},
		},
		{
			name:    "storage failure",
			err:     errors.New("connection reset by peer"),
			code:    http.StatusInternalServerError,
			message: "internal error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&fakeEngine{
				createFn: func(context.Context, scheduling.CreateInput) (domain.Booking, error) {
					return domain.Booking{}, tc.err
				},
			}, nil, nil, time.UTC, discard)

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/v1/bookings", strings.NewReader(createBody()))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()

			require.NoError(t, h.CreateBooking(e.NewContext(req, rec)))
			assert.Equal(t, tc.code, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.reasons, body.Reasons)
			if tc.message != "" {
				assert.Equal(t, tc.message, body.Error)
				assert.NotContains(t, rec.Body.String(), "connection reset")
			}
		})
	}
}

func TestGetBooking_InvalidID(t *testing.T) {
	h := NewHandler(&fakeEngine{}, nil, nil, time.UTC, discard)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/bookings/nope", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("nope")

	require.NoError(t, h.GetBooking(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id must be a UUID", decodeError(t, rec).Error)
}

type routerFixture struct {
	e        *echo.Echo
	registry *prometheus.Registry
}

func newRouter(t *testing.T) routerFixture {
	t.Helper()

	st := memory.New()
	registry := prometheus.NewRegistry()
	cfg := scheduling.Config{}
	opts := []scheduling.Option{
		scheduling.WithLogger(discard),
		scheduling.WithMetrics(metrics.New(registry)),
	}
	h := NewHandler(
		scheduling.NewEngine(st, cfg, opts...),
		scheduling.NewSlotGenerator(st, st, cfg, opts...),
		scheduling.NewTemplates(st, opts...),
		time.UTC,
		discard,
	)
	return routerFixture{e: NewServer(h, registry, discard), registry: registry}
}

func (f routerFixture) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestRouter_BookingFlow(t *testing.T) {
	f := newRouter(t)
	practitioner := "practitioner:" + practitionerID

	rec := f.do(t, http.MethodPut, "/v1/templates/"+practitioner+"/1",
		`{"window_start":"08:00","window_end":"12:00","is_available":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/bookings", createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created chairsidev1.CreateBookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Booking.ID

	rec = f.do(t, http.MethodGet, "/v1/slots?resource="+practitioner+"&date=2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var slots chairsidev1.GetSlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	require.Len(t, slots.Slots, 12)
	assert.False(t, slots.Slots[3].Available)
	assert.False(t, slots.Slots[4].Available)
	assert.True(t, slots.Slots[5].Available)

	clash := strings.NewReplacer(
		patientID, "0190a000-0000-7000-8000-00000000b002",
		roomID, "0190a000-0000-7000-8000-00000000a002",
		`"start_time":"2026-03-02T09:00:00Z","duration_minutes":40`, `"start_time":"2026-03-02T09:20:00Z","end_time":"2026-03-02T09:50:00Z"`,
	).Replace(createBody())
	rec = f.do(t, http.MethodPost, "/v1/bookings", clash)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict:practitioner", decodeError(t, rec).Reason)

	rec = f.do(t, http.MethodPost, "/v1/bookings/"+id+"/resize", `{"duration_minutes":60}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resized chairsidev1.ResizeBookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resized))
	assert.Equal(t, 60, resized.Booking.DurationMinutes)

	rec = f.do(t, http.MethodPost, "/v1/bookings/"+id+"/move", `{"start_time":"2026-03-02T10:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var moved chairsidev1.MoveBookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &moved))
	assert.Equal(t, 60, moved.Booking.DurationMinutes)
	assert.Equal(t, practitionerID, moved.Booking.PractitionerID)

	rec = f.do(t, http.MethodPatch, "/v1/bookings/"+id, `{"notes":"sensitive upper left molar"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/bookings/"+id+"/status", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/bookings/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled chairsidev1.SetBookingStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, "cancelled", cancelled.Booking.Status)
	assert.Equal(t, "sensitive upper left molar", cancelled.Booking.Notes)

	rec = f.do(t, http.MethodGet, "/v1/bookings?window_start=2026-03-02T00:00:00Z&window_end=2026-03-03T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active chairsidev1.ListBookingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Empty(t, active.Bookings)

	rec = f.do(t, http.MethodGet, "/v1/bookings?window_start=2026-03-02T00:00:00Z&window_end=2026-03-03T00:00:00Z&include_cancelled=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all chairsidev1.ListBookingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all.Bookings, 1)

	rec = f.do(t, http.MethodDelete, "/v1/bookings/"+id, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/bookings/"+id, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Reason)
}

func TestRouter_IdempotentCreate(t *testing.T) {
	f := newRouter(t)

	first := f.do(t, http.MethodPost, "/v1/bookings", createBody(), "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, first.Code)
	second := f.do(t, http.MethodPost, "/v1/bookings", createBody(), "X-Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, second.Code)

	var a, b chairsidev1.CreateBookingResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.Booking.ID, b.Booking.ID)

	changed := strings.Replace(createBody(), `"duration_minutes":40`, `"duration_minutes":60`, 1)
	rec := f.do(t, http.MethodPost, "/v1/bookings", changed, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "idempotency_conflict", decodeError(t, rec).Reason)
}

func TestRouter_Availability(t *testing.T) {
	f := newRouter(t)
	practitioner := "practitioner:" + practitionerID
	room := "room:" + roomID

	for _, ref := range []string{practitioner, room} {
		rec := f.do(t, http.MethodPut, "/v1/templates/"+ref+"/1",
			`{"window_start":"09:00","window_end":"10:00","is_available":true}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/v1/availability?resource="+room+"&resource="+practitioner+"&date=2026-03-02&granularity=30", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp chairsidev1.GetAvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Resources, 2)
	assert.Equal(t, room, resp.Resources[0].Resource)
	assert.Equal(t, practitioner, resp.Resources[1].Resource)
	assert.Len(t, resp.Resources[0].Slots, 2)

	rec = f.do(t, http.MethodGet, "/v1/templates/"+room, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tpls chairsidev1.ListTemplatesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tpls))
	require.Len(t, tpls.Templates, 1)
	assert.Equal(t, "09:00", tpls.Templates[0].WindowStart)

	rec = f.do(t, http.MethodPut, "/v1/templates/"+room+"/9", `{"window_start":"09:00","window_end":"10:00","is_available":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid:template", decodeError(t, rec).Reason)

	for _, g := range []string{"-1", "1441", "4972468361358203", "twenty"} {
		rec = f.do(t, http.MethodGet, "/v1/slots?resource="+room+"&date=2026-03-02&granularity="+g, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, "granularity=%s", g)
		assert.Equal(t, "invalid:argument", decodeError(t, rec).Reason)
		rec = f.do(t, http.MethodGet, "/v1/availability?resource="+room+"&date=2026-03-02&granularity="+g, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, "granularity=%s", g)
	}

	rec = f.do(t, http.MethodGet, "/v1/slots?resource=chair:1&date=2026-03-02", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/v1/slots?resource="+room+"&date=03/02/2026", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newRouter(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/v1/bookings", createBody()).Code)

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chairside_booking_operations_total{operation="create",outcome="ok"} 1`)
}
