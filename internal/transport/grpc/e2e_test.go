package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"chairside/backend/internal/api/chairsidev1"
	"chairside/backend/internal/service/scheduling"
	"chairside/backend/internal/store/memory"
)

func startBufconn(t *testing.T) *BookingsClient {
	t.Helper()

	st := memory.New()
	cfg := scheduling.Config{}
	opts := []scheduling.Option{scheduling.WithLogger(discard)}
	srv := NewBookingsServer(
		scheduling.NewEngine(st, cfg, opts...),
		scheduling.NewSlotGenerator(st, st, cfg, opts...),
		scheduling.NewTemplates(st, opts...),
		time.UTC,
		discard,
	)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterBookingsServiceServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewBookingsClient(conn)
}

func TestBookingsService_EndToEnd(t *testing.T) {
	client := startBufconn(t)
	ctx := context.Background()
	practitioner := "practitioner:" + practitionerID

	_, err := client.UpsertTemplate(ctx, &chairsidev1.UpsertTemplateRequest{Template: chairsidev1.Template{
		Resource:    practitioner,
		DayOfWeek:   int(time.Monday),
		WindowStart: "08:00",
		WindowEnd:   "12:00",
		IsAvailable: true,
	}})
	require.NoError(t, err)

	created, err := client.CreateBooking(ctx, validCreate())
	require.NoError(t, err)
	assert.Equal(t, "scheduled", created.Booking.Status)
	assert.Equal(t, 40, created.Booking.DurationMinutes)

	slots, err := client.GetSlots(ctx, &chairsidev1.GetSlotsRequest{Resource: practitioner, Date: "2026-03-02"})
	require.NoError(t, err)
	require.Len(t, slots.Slots, 12)
	assert.False(t, slots.Slots[3].Available)
	assert.False(t, slots.Slots[4].Available)
	assert.True(t, slots.Slots[5].Available)

	clash := validCreate()
	clash.PatientID = "0190a000-0000-7000-8000-00000000b002"
	clash.RoomID = "0190a000-0000-7000-8000-00000000a002"
	clash.StartTime = time.Date(2026, 3, 2, 9, 20, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 9, 50, 0, 0, time.UTC)
	clash.EndTime = &end
	clash.DurationMinutes = 0
	_, err = client.CreateBooking(ctx, clash)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, "conflict:practitioner", errorInfo(t, err).Reason)

	moved, err := client.MoveBooking(ctx, &chairsidev1.MoveBookingRequest{
		BookingID: created.Booking.ID,
		StartTime: created.Booking.StartTime,
	})
	require.NoError(t, err)
	assert.True(t, moved.Booking.StartTime.Equal(created.Booking.StartTime))

	_, err = client.ResizeBooking(ctx, &chairsidev1.ResizeBookingRequest{BookingID: created.Booking.ID, DurationMinutes: 10})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "invalid:duration", errorInfo(t, err).Reason)

	cancelled, err := client.SetBookingStatus(ctx, &chairsidev1.SetBookingStatusRequest{BookingID: created.Booking.ID, Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Booking.Status)

	list, err := client.ListBookings(ctx, &chairsidev1.ListBookingsRequest{
		WindowStart:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		WindowEnd:        time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		Resource:         practitioner,
		IncludeCancelled: true,
	})
	require.NoError(t, err)
	require.Len(t, list.Bookings, 1)

	_, err = client.DeleteBooking(ctx, &chairsidev1.DeleteBookingRequest{BookingID: created.Booking.ID})
	require.NoError(t, err)

	_, err = client.GetBooking(ctx, &chairsidev1.GetBookingRequest{BookingID: created.Booking.ID})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestBookingsService_IdempotentCreateOverWire(t *testing.T) {
	client := startBufconn(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-idempotency-key", "front-desk-7")

	first, err := client.CreateBooking(ctx, validCreate())
	require.NoError(t, err)
	second, err := client.CreateBooking(ctx, validCreate())
	require.NoError(t, err)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)

	changed := validCreate()
	changed.Notes = "different"
	_, err = client.CreateBooking(ctx, changed)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, "idempotency_conflict", errorInfo(t, err).Reason)
}

func TestBookingsService_AvailabilityAndTemplates(t *testing.T) {
	client := startBufconn(t)
	ctx := context.Background()
	room := "room:" + roomID

	_, err := client.UpsertTemplate(ctx, &chairsidev1.UpsertTemplateRequest{Template: chairsidev1.Template{
		Resource: room, DayOfWeek: 1, WindowStart: "10:00", WindowEnd: "09:00", IsAvailable: true,
	}})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "invalid:template", errorInfo(t, err).Reason)

	_, err = client.UpsertTemplate(ctx, &chairsidev1.UpsertTemplateRequest{Template: chairsidev1.Template{
		Resource: room, DayOfWeek: 1, WindowStart: "08:00", WindowEnd: "09:10", IsAvailable: true,
	}})
	require.NoError(t, err)

	tpls, err := client.ListTemplates(ctx, &chairsidev1.ListTemplatesRequest{Resource: room})
	require.NoError(t, err)
	require.Len(t, tpls.Templates, 1)
	assert.Equal(t, "09:10", tpls.Templates[0].WindowEnd)

	avail, err := client.GetAvailability(ctx, &chairsidev1.GetAvailabilityRequest{
		Resources: []string{room, "practitioner:" + practitionerID},
		Date:      "2026-03-02",
	})
	require.NoError(t, err)
	require.Len(t, avail.Resources, 2)
	assert.Equal(t, room, avail.Resources[0].Resource)
	require.Len(t, avail.Resources[0].Slots, 4)
	assert.Equal(t, 10*time.Minute, avail.Resources[0].Slots[3].EndTime.Sub(avail.Resources[0].Slots[3].StartTime))
	assert.Empty(t, avail.Resources[1].Slots)
}
