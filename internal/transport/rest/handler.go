// Package rest exposes the booking engine as a JSON HTTP API on echo.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"chairside/backend/internal/api/chairsidev1"
	"chairside/backend/internal/domain"
	"chairside/backend/internal/service/scheduling"
	"chairside/backend/internal/store"
)

type bookingEngine interface {
	Create(ctx context.Context, in scheduling.CreateInput) (domain.Booking, error)
	Get(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
	List(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error)
	Move(ctx context.Context, in scheduling.MoveInput) (domain.Booking, error)
	Resize(ctx context.Context, bookingID uuid.UUID, durationMinutes int) (domain.Booking, error)
	SetStatus(ctx context.Context, bookingID uuid.UUID, status domain.BookingStatus) (domain.Booking, error)
	UpdateDetails(ctx context.Context, bookingID uuid.UUID, in scheduling.DetailsInput) (domain.Booking, error)
	Delete(ctx context.Context, bookingID uuid.UUID) error
}

type slotGenerator interface {
	GenerateSlots(ctx context.Context, ref domain.ResourceRef, date time.Time, granularity time.Duration) ([]scheduling.Slot, error)
	GenerateForResources(ctx context.Context, refs []domain.ResourceRef, date time.Time, granularity time.Duration) ([]scheduling.ResourceSlots, error)
}

type templateService interface {
	Upsert(ctx context.Context, t domain.AvailabilityTemplate) (domain.AvailabilityTemplate, error)
	List(ctx context.Context, ref domain.ResourceRef) ([]domain.AvailabilityTemplate, error)
}

type Handler struct {
	engine    bookingEngine
	slots     slotGenerator
	templates templateService
	loc       *time.Location
	log       *slog.Logger
}

func NewHandler(engine bookingEngine, slots slotGenerator, templates templateService, loc *time.Location, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		engine:    engine,
		slots:     slots,
		templates: templates,
		loc:       loc,
		log:       log.With(slog.String("component", "http.bookings")),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/slots", h.GetSlots)
	g.GET("/availability", h.GetAvailability)

	g.GET("/bookings", h.ListBookings)
	g.POST("/bookings", h.CreateBooking)
	g.GET("/bookings/:id", h.GetBooking)
	g.PATCH("/bookings/:id", h.UpdateBookingDetails)
	g.DELETE("/bookings/:id", h.DeleteBooking)
	g.POST("/bookings/:id/move", h.MoveBooking)
	g.POST("/bookings/:id/resize", h.ResizeBooking)
	g.POST("/bookings/:id/status", h.SetBookingStatus)
	g.POST("/bookings/:id/cancel", h.CancelBooking)

	g.GET("/templates/:resource", h.ListTemplates)
	g.PUT("/templates/:resource/:day", h.UpsertTemplate)
}

func (h *Handler) GetSlots(c echo.Context) error {
	ref, err := domain.ParseResourceRef(c.QueryParam("resource"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	date, err := chairsidev1.ParseDate(c.QueryParam("date"), h.loc)
	if err != nil {
		return badRequest(c, err.Error())
	}
	granularity, err := granularityParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	slots, err := h.slots.GenerateSlots(c.Request().Context(), ref, date, granularity)
	if err != nil {
		return h.fail(c, "slots", err)
	}
	return c.JSON(http.StatusOK, chairsidev1.GetSlotsResponse{
		Resource: ref.String(),
		Date:     date.Format(chairsidev1.DateLayout),
		Slots:    chairsidev1.FromSlots(slots, h.loc),
	})
}

// GetAvailability accepts the resource parameter repeated or comma
// separated.
func (h *Handler) GetAvailability(c echo.Context) error {
	var refs []domain.ResourceRef
	for _, raw := range c.QueryParams()["resource"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			ref, err := domain.ParseResourceRef(part)
			if err != nil {
				return badRequest(c, err.Error())
			}
			refs = append(refs, ref)
		}
	}
	date, err := chairsidev1.ParseDate(c.QueryParam("date"), h.loc)
	if err != nil {
		return badRequest(c, err.Error())
	}
	granularity, err := granularityParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	results, err := h.slots.GenerateForResources(c.Request().Context(), refs, date, granularity)
	if err != nil {
		return h.fail(c, "availability", err)
	}

	out := make([]chairsidev1.ResourceSlots, 0, len(results))
	for _, r := range results {
		out = append(out, chairsidev1.ResourceSlots{Resource: r.Resource.String(), Slots: chairsidev1.FromSlots(r.Slots, h.loc)})
	}
	return c.JSON(http.StatusOK, chairsidev1.GetAvailabilityResponse{Date: date.Format(chairsidev1.DateLayout), Resources: out})
}

func (h *Handler) ListBookings(c echo.Context) error {
	start, err := timeParam(c, "window_start")
	if err != nil {
		return badRequest(c, err.Error())
	}
	end, err := timeParam(c, "window_end")
	if err != nil {
		return badRequest(c, err.Error())
	}

	filter := store.BookingFilter{WindowStart: start, WindowEnd: end}
	if raw := c.QueryParam("resource"); raw != "" {
		ref, err := domain.ParseResourceRef(raw)
		if err != nil {
			return badRequest(c, err.Error())
		}
		filter.Resource = &ref
	}
	if filter.PatientID, err = chairsidev1.ParseOptionalID("patient_id", c.QueryParam("patient_id")); err != nil {
		return badRequest(c, err.Error())
	}
	if raw := c.QueryParam("include_cancelled"); raw != "" {
		if filter.IncludeCancelled, err = strconv.ParseBool(raw); err != nil {
			return badRequest(c, "include_cancelled must be a boolean")
		}
	}

	rows, err := h.engine.List(c.Request().Context(), filter)
	if err != nil {
		return h.fail(c, "bookings list", err)
	}
	return c.JSON(http.StatusOK, chairsidev1.ListBookingsResponse{Bookings: chairsidev1.FromBookings(rows, h.loc)})
}

func (h *Handler) CreateBooking(c echo.Context) error {
	var req chairsidev1.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	patientID, err := chairsidev1.ParseID("patient_id", req.PatientID)
	if err != nil {
		return badRequest(c, err.Error())
	}
	practitionerID, err := chairsidev1.ParseID("practitioner_id", req.PractitionerID)
	if err != nil {
		return badRequest(c, err.Error())
	}
	roomID, err := chairsidev1.ParseID("room_id", req.RoomID)
	if err != nil {
		return badRequest(c, err.Error())
	}

	in := scheduling.CreateInput{
		PatientID:       patientID,
		PractitionerID:  practitionerID,
		RoomID:          roomID,
		Start:           req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Type:            domain.BookingType(strings.TrimSpace(req.Type)),
		Notes:           req.Notes,
		IdempotencyKey:  idempotencyKey(c),
	}
	if req.EndTime != nil {
		in.End = *req.EndTime
	}

	b, err := h.engine.Create(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, "booking create", err)
	}
	h.log.Info("booking created", slog.String("booking_id", b.ID.String()), slog.Time("start_time", b.StartTime))
	return c.JSON(http.StatusCreated, chairsidev1.CreateBookingResponse{Booking: chairsidev1.FromBooking(b, h.loc)})
}

func idempotencyKey(c echo.Context) string {
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		key = c.Request().Header.Get("X-Idempotency-Key")
	}
	return strings.TrimSpace(key)
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := chairsidev1.ParseID("id", c.Param("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	b, err := h.engine.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "booking get", err)
	}
	return c.JSON(http.StatusOK, chairsidev1.GetBookingResponse{Booking: chairsidev1.FromBooking(b, h.loc)})
}

func (h *Handler) UpdateBookingDetails(c echo.Context) error {
	id, err := chairsidev1.ParseID("id", c.Param("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req chairsidev1.UpdateBookingDetailsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	var in scheduling.DetailsInput
	if req.Type != nil {
		t := domain.BookingType(strings.TrimSpace(*req.Type))
		in.Type = &t
	}
	in.Notes = req.Notes

	b, err := h.engine.UpdateDetails(c.Request().Context(), id, in)
	if err != nil {
		return h.fail(c, "booking update", err)
	}
	return c.JSON(http.StatusOK, chairsidev1.UpdateBookingDetailsResponse{Booking: chairsidev1.FromBooking(b, h.loc)})
}

func (h *Handler) DeleteBooking(c echo.Context) error {
	id, err := chairsidev1.ParseID("id", c.Param("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.engine.Delete(c.Request().Context(), id); err != nil {
		return h.fail(c, "booking delete", err)
	}
	h.log.Info("booking deleted", slog.String("booking_id", id.String()))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MoveBooking(c echo.Context) error {
	id, err := chairsidev1.ParseID("id", c.Param("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req chairsidev1.MoveBookingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	practitionerID, err := chairsidev1.ParseOptionalID("practitioner_id", req.PractitionerID)
	if err != nil {
		return badRequest(c, err.Error())
	}
	roomID, err := chairsidev1.ParseOptionalID("room_id", req.RoomID)
	if err != nil {
		return badRequest(c, err.Error())
	}

	in := scheduling.MoveInput{BookingID: id, PractitionerID: practitionerID, RoomID: roomID, Start: req.StartTime}
	if req.EndTime != nil {
		in.End = *req.EndTime
	}

	b, err := h.engine.Move(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, "booking move", err)
	}
	return c.JSON(http.StatusOK, chairsidev1.MoveBookingResponse{Booking: chairsidev1.FromBooking(b, h.loc)})
}

func (h *Handler) ResizeBooking(c echo.Context) error {
	id, err := chairsidev1.ParseID("id", c.Param("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req chairsidev1.ResizeBookingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	b, err := h.engine.Resize(c.Request().Context(), id, req.DurationMinutes)
	if err != nil {
		return h.fail(c, "booking resize", err)
	}
	return c.JSON(http.StatusOK, chairsidev1.ResizeBookingResponse{Booking: chairsidev1.FromBooking(b, h.loc)})
}

func (h *Handler) SetBookingStatus(c echo.Context) error {
	id, err := chairsidev1.ParseID("id", c.Param("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req chairsidev1.SetBookingStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	return h.setStatus(c, id, domain.BookingStatus(strings.ToLower(strings.TrimSpace(req.Status))))
}

func (h *Handler) CancelBooking(c echo.Context) error {
	id, err := chairsidev1.ParseID("id", c.Param("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	return h.setStatus(c, id, domain.BookingStatusCancelled)
}

func (h *Handler) setStatus(c echo.Context, id uuid.UUID, status domain.BookingStatus) error {
	b, err := h.engine.SetStatus(c.Request().Context(), id, status)
	if err != nil {
		return h.fail(c, "booking status", err)
	}
	return c.JSON(http.StatusOK, chairsidev1.SetBookingStatusResponse{Booking: chairsidev1.FromBooking(b, h.loc)})
}

func (h *Handler) ListTemplates(c echo.Context) error {
	ref, err := domain.ParseResourceRef(c.Param("resource"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	rows, err := h.templates.List(c.Request().Context(), ref)
	if err != nil {
		return h.fail(c, "templates list", err)
	}
	return c.JSON(http.StatusOK, chairsidev1.ListTemplatesResponse{Templates: chairsidev1.FromTemplates(rows)})
}

func (h *Handler) UpsertTemplate(c echo.Context) error {
	ref, err := domain.ParseResourceRef(c.Param("resource"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		return badRequest(c, "day must be an integer between 0 and 6")
	}
	var req chairsidev1.Template
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	req.DayOfWeek = day

	tpl, err := chairsidev1.ToTemplate(req, &ref)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error(), []scheduling.Reason{scheduling.ReasonInvalidTemplate})
	}
	saved, err := h.templates.Upsert(c.Request().Context(), tpl)
	if err != nil {
		return h.fail(c, "template upsert", err)
	}
	return c.JSON(http.StatusOK, chairsidev1.UpsertTemplateResponse{Template: chairsidev1.FromTemplate(saved)})
}

func granularityParam(c echo.Context) (time.Duration, error) {
	raw := c.QueryParam("granularity")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("granularity must be a whole number of minutes")
	}
	return chairsidev1.ParseGranularity(n)
}

func timeParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, errors.New(name + " is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}
