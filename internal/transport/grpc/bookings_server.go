package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

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

type BookingsServer struct {
	engine    bookingEngine
	slots     slotGenerator
	templates templateService
	loc       *time.Location
	log       *slog.Logger
}

var _ BookingsServiceServer = (*BookingsServer)(nil)

func NewBookingsServer(engine bookingEngine, slots slotGenerator, templates templateService, loc *time.Location, log *slog.Logger) *BookingsServer {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BookingsServer{
		engine:    engine,
		slots:     slots,
		templates: templates,
		loc:       loc,
		log:       log.With(slog.String("component", "grpc.bookings")),
	}
}

func (s *BookingsServer) CreateBooking(ctx context.Context, req *chairsidev1.CreateBookingRequest) (*chairsidev1.CreateBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateBooking"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	patientID, err := chairsidev1.ParseID("patient_id", req.PatientID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}
	practitionerID, err := chairsidev1.ParseID("practitioner_id", req.PractitionerID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}
	roomID, err := chairsidev1.ParseID("room_id", req.RoomID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}

	in := scheduling.CreateInput{
		PatientID:       patientID,
		PractitionerID:  practitionerID,
		RoomID:          roomID,
		Start:           req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Type:            domain.BookingType(strings.TrimSpace(req.Type)),
		Notes:           req.Notes,
		IdempotencyKey:  idempotencyKey(ctx),
	}
	if req.EndTime != nil {
		in.End = *req.EndTime
	}

	b, err := s.engine.Create(ctx, in)
	if err != nil {
		return nil, rpcError(log, "booking create", err,
			slog.String("practitioner_id", practitionerID.String()),
			slog.String("room_id", roomID.String()),
			slog.Time("start_time", req.StartTime),
		)
	}

	log.Info(
		"booking created",
		slog.String("booking_id", b.ID.String()),
		slog.String("practitioner_id", b.PractitionerID.String()),
		slog.String("room_id", b.RoomID.String()),
		slog.Time("start_time", b.StartTime),
		slog.Time("end_time", b.EndTime),
	)
	return &chairsidev1.CreateBookingResponse{Booking: chairsidev1.FromBooking(b, s.loc)}, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *BookingsServer) GetBooking(ctx context.Context, req *chairsidev1.GetBookingRequest) (*chairsidev1.GetBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "GetBooking"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := chairsidev1.ParseID("booking_id", req.BookingID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}

	b, err := s.engine.Get(ctx, id)
	if err != nil {
		return nil, rpcError(log, "booking get", err, slog.String("booking_id", id.String()))
	}
	return &chairsidev1.GetBookingResponse{Booking: chairsidev1.FromBooking(b, s.loc)}, nil
}

func (s *BookingsServer) ListBookings(ctx context.Context, req *chairsidev1.ListBookingsRequest) (*chairsidev1.ListBookingsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListBookings"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	if req.WindowStart.IsZero() || req.WindowEnd.IsZero() {
		return nil, invalidArgument(log, "missing_window", "window_start and window_end are required")
	}

	filter := store.BookingFilter{
		WindowStart:      req.WindowStart,
		WindowEnd:        req.WindowEnd,
		IncludeCancelled: req.IncludeCancelled,
	}
	if req.Resource != "" {
		ref, err := domain.ParseResourceRef(req.Resource)
		if err != nil {
			return nil, invalidArgument(log, "invalid_resource", err.Error())
		}
		filter.Resource = &ref
	}
	patientID, err := chairsidev1.ParseOptionalID("patient_id", req.PatientID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}
	filter.PatientID = patientID

	rows, err := s.engine.List(ctx, filter)
	if err != nil {
		return nil, rpcError(log, "bookings list", err)
	}

	log.Debug(
		"bookings listed",
		slog.Int("count", len(rows)),
		slog.Time("window_start", req.WindowStart),
		slog.Time("window_end", req.WindowEnd),
	)
	return &chairsidev1.ListBookingsResponse{Bookings: chairsidev1.FromBookings(rows, s.loc)}, nil
}

func (s *BookingsServer) MoveBooking(ctx context.Context, req *chairsidev1.MoveBookingRequest) (*chairsidev1.MoveBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "MoveBooking"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := chairsidev1.ParseID("booking_id", req.BookingID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}
	practitionerID, err := chairsidev1.ParseOptionalID("practitioner_id", req.PractitionerID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}
	roomID, err := chairsidev1.ParseOptionalID("room_id", req.RoomID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}

	in := scheduling.MoveInput{
		BookingID:      id,
		PractitionerID: practitionerID,
		RoomID:         roomID,
		Start:          req.StartTime,
	}
	if req.EndTime != nil {
		in.End = *req.EndTime
	}

	b, err := s.engine.Move(ctx, in)
	if err != nil {
		return nil, rpcError(log, "booking move", err,
			slog.String("booking_id", id.String()),
			slog.Time("start_time", req.StartTime),
		)
	}

	log.Info(
		"booking moved",
		slog.String("booking_id", b.ID.String()),
		slog.String("practitioner_id", b.PractitionerID.String()),
		slog.String("room_id", b.RoomID.String()),
		slog.Time("start_time", b.StartTime),
		slog.Time("end_time", b.EndTime),
	)
	return &chairsidev1.MoveBookingResponse{Booking: chairsidev1.FromBooking(b, s.loc)}, nil
}

func (s *BookingsServer) ResizeBooking(ctx context.Context, req *chairsidev1.ResizeBookingRequest) (*chairsidev1.ResizeBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "ResizeBooking"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := chairsidev1.ParseID("booking_id", req.BookingID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}

	b, err := s.engine.Resize(ctx, id, req.DurationMinutes)
	if err != nil {
		return nil, rpcError(log, "booking resize", err,
			slog.String("booking_id", id.String()),
			slog.Int("duration_minutes", req.DurationMinutes),
		)
	}

	log.Info("booking resized", slog.String("booking_id", b.ID.String()), slog.Time("end_time", b.EndTime))
	return &chairsidev1.ResizeBookingResponse{Booking: chairsidev1.FromBooking(b, s.loc)}, nil
}

func (s *BookingsServer) SetBookingStatus(ctx context.Context, req *chairsidev1.SetBookingStatusRequest) (*chairsidev1.SetBookingStatusResponse, error) {
	log := s.log.With(slog.String("rpc", "SetBookingStatus"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := chairsidev1.ParseID("booking_id", req.BookingID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}

	status := domain.BookingStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	b, err := s.engine.SetStatus(ctx, id, status)
	if err != nil {
		return nil, rpcError(log, "booking status", err,
			slog.String("booking_id", id.String()),
			slog.String("status", string(status)),
		)
	}

	log.Info("booking status changed", slog.String("booking_id", b.ID.String()), slog.String("status", string(b.Status)))
	return &chairsidev1.SetBookingStatusResponse{Booking: chairsidev1.FromBooking(b, s.loc)}, nil
}

func (s *BookingsServer) UpdateBookingDetails(ctx context.Context, req *chairsidev1.UpdateBookingDetailsRequest) (*chairsidev1.UpdateBookingDetailsResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateBookingDetails"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := chairsidev1.ParseID("booking_id", req.BookingID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}

	var in scheduling.DetailsInput
	if req.Type != nil {
		t := domain.BookingType(strings.TrimSpace(*req.Type))
		in.Type = &t
	}
	in.Notes = req.Notes

	b, err := s.engine.UpdateDetails(ctx, id, in)
	if err != nil {
		return nil, rpcError(log, "booking update", err, slog.String("booking_id", id.String()))
	}

	log.Info("booking updated", slog.String("booking_id", b.ID.String()))
	return &chairsidev1.UpdateBookingDetailsResponse{Booking: chairsidev1.FromBooking(b, s.loc)}, nil
}

func (s *BookingsServer) DeleteBooking(ctx context.Context, req *chairsidev1.DeleteBookingRequest) (*chairsidev1.DeleteBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "DeleteBooking"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := chairsidev1.ParseID("booking_id", req.BookingID)
	if err != nil {
		return nil, invalidArgument(log, "invalid_uuid", err.Error())
	}

	if err := s.engine.Delete(ctx, id); err != nil {
		return nil, rpcError(log, "booking delete", err, slog.String("booking_id", id.String()))
	}

	log.Info("booking deleted", slog.String("booking_id", id.String()))
	return &chairsidev1.DeleteBookingResponse{}, nil
}

func (s *BookingsServer) GetSlots(ctx context.Context, req *chairsidev1.GetSlotsRequest) (*chairsidev1.GetSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "GetSlots"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	ref, err := domain.ParseResourceRef(req.Resource)
	if err != nil {
		return nil, invalidArgument(log, "invalid_resource", err.Error())
	}
	date, err := chairsidev1.ParseDate(req.Date, s.loc)
	if err != nil {
		return nil, invalidArgument(log, "invalid_date", err.Error())
	}

	granularity, err := chairsidev1.ParseGranularity(req.GranularityMinutes)
	if err != nil {
		return nil, invalidArgument(log, "invalid_granularity", err.Error())
	}

	slots, err := s.slots.GenerateSlots(ctx, ref, date, granularity)
	if err != nil {
		return nil, rpcError(log, "slots", err, slog.String("resource", ref.String()), slog.String("date", req.Date))
	}

	log.Debug("slots generated", slog.String("resource", ref.String()), slog.String("date", req.Date), slog.Int("count", len(slots)))
	return &chairsidev1.GetSlotsResponse{
		Resource: ref.String(),
		Date:     date.Format(chairsidev1.DateLayout),
		Slots:    chairsidev1.FromSlots(slots, s.loc),
	}, nil
}

func (s *BookingsServer) GetAvailability(ctx context.Context, req *chairsidev1.GetAvailabilityRequest) (*chairsidev1.GetAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	refs := make([]domain.ResourceRef, 0, len(req.Resources))
	for _, r := range req.Resources {
		ref, err := domain.ParseResourceRef(r)
		if err != nil {
			return nil, invalidArgument(log, "invalid_resource", err.Error())
		}
		refs = append(refs, ref)
	}
	date, err := chairsidev1.ParseDate(req.Date, s.loc)
	if err != nil {
		return nil, invalidArgument(log, "invalid_date", err.Error())
	}

	granularity, err := chairsidev1.ParseGranularity(req.GranularityMinutes)
	if err != nil {
		return nil, invalidArgument(log, "invalid_granularity", err.Error())
	}

	results, err := s.slots.GenerateForResources(ctx, refs, date, granularity)
	if err != nil {
		return nil, rpcError(log, "availability", err, slog.String("date", req.Date), slog.Int("resources", len(refs)))
	}

	out := make([]chairsidev1.ResourceSlots, 0, len(results))
	for _, r := range results {
		out = append(out, chairsidev1.ResourceSlots{
			Resource: r.Resource.String(),
			Slots:    chairsidev1.FromSlots(r.Slots, s.loc),
		})
	}
	return &chairsidev1.GetAvailabilityResponse{Date: date.Format(chairsidev1.DateLayout), Resources: out}, nil
}

func (s *BookingsServer) UpsertTemplate(ctx context.Context, req *chairsidev1.UpsertTemplateRequest) (*chairsidev1.UpsertTemplateResponse, error) {
	log := s.log.With(slog.String("rpc", "UpsertTemplate"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	tpl, err := chairsidev1.ToTemplate(req.Template, nil)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_template"), slog.Any("err", err))
		return nil, statusWithReason(codes.InvalidArgument, err.Error(), []scheduling.Reason{scheduling.ReasonInvalidTemplate}, nil)
	}

	saved, err := s.templates.Upsert(ctx, tpl)
	if err != nil {
		return nil, rpcError(log, "template upsert", err, slog.String("resource", tpl.Resource().String()))
	}
	return &chairsidev1.UpsertTemplateResponse{Template: chairsidev1.FromTemplate(saved)}, nil
}

func (s *BookingsServer) ListTemplates(ctx context.Context, req *chairsidev1.ListTemplatesRequest) (*chairsidev1.ListTemplatesResponse, error) {
	log := s.log.With(slog.String("rpc", "ListTemplates"))

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	ref, err := domain.ParseResourceRef(req.Resource)
	if err != nil {
		return nil, invalidArgument(log, "invalid_resource", err.Error())
	}

	rows, err := s.templates.List(ctx, ref)
	if err != nil {
		return nil, rpcError(log, "templates list", err, slog.String("resource", ref.String()))
	}
	return &chairsidev1.ListTemplatesResponse{Templates: chairsidev1.FromTemplates(rows)}, nil
}
