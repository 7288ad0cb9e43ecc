package grpc

import (
	"context"

	"google.golang.org/grpc"

	"chairside/backend/internal/api/chairsidev1"
)

type BookingsServiceServer interface {
	CreateBooking(context.Context, *chairsidev1.CreateBookingRequest) (*chairsidev1.CreateBookingResponse, error)
	GetBooking(context.Context, *chairsidev1.GetBookingRequest) (*chairsidev1.GetBookingResponse, error)
	ListBookings(context.Context, *chairsidev1.ListBookingsRequest) (*chairsidev1.ListBookingsResponse, error)
	MoveBooking(context.Context, *chairsidev1.MoveBookingRequest) (*chairsidev1.MoveBookingResponse, error)
	ResizeBooking(context.Context, *chairsidev1.ResizeBookingRequest) (*chairsidev1.ResizeBookingResponse, error)
	SetBookingStatus(context.Context, *chairsidev1.SetBookingStatusRequest) (*chairsidev1.SetBookingStatusResponse, error)
	UpdateBookingDetails(context.Context, *chairsidev1.UpdateBookingDetailsRequest) (*chairsidev1.UpdateBookingDetailsResponse, error)
	DeleteBooking(context.Context, *chairsidev1.DeleteBookingRequest) (*chairsidev1.DeleteBookingResponse, error)
	GetSlots(context.Context, *chairsidev1.GetSlotsRequest) (*chairsidev1.GetSlotsResponse, error)
	GetAvailability(context.Context, *chairsidev1.GetAvailabilityRequest) (*chairsidev1.GetAvailabilityResponse, error)
	UpsertTemplate(context.Context, *chairsidev1.UpsertTemplateRequest) (*chairsidev1.UpsertTemplateResponse, error)
	ListTemplates(context.Context, *chairsidev1.ListTemplatesRequest) (*chairsidev1.ListTemplatesResponse, error)
}

func fullMethod(name string) string {
	return "/" + chairsidev1.ServiceName + "/" + name
}

func unaryMethod[Req, Resp any](name string, call func(BookingsServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(BookingsServiceServer), ctx, req.(*Req))
				if err != nil {
					return nil, err
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}, handler)
		},
	}
}

var BookingsServiceDesc = grpc.ServiceDesc{
	ServiceName: chairsidev1.ServiceName,
	HandlerType: (*BookingsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateBooking", BookingsServiceServer.CreateBooking),
		unaryMethod("GetBooking", BookingsServiceServer.GetBooking),
		unaryMethod("ListBookings", BookingsServiceServer.ListBookings),
		unaryMethod("MoveBooking", BookingsServiceServer.MoveBooking),
		unaryMethod("ResizeBooking", BookingsServiceServer.ResizeBooking),
		unaryMethod("SetBookingStatus", BookingsServiceServer.SetBookingStatus),
		unaryMethod("UpdateBookingDetails", BookingsServiceServer.UpdateBookingDetails),
		unaryMethod("DeleteBooking", BookingsServiceServer.DeleteBooking),
		unaryMethod("GetSlots", BookingsServiceServer.GetSlots),
		unaryMethod("GetAvailability", BookingsServiceServer.GetAvailability),
		unaryMethod("UpsertTemplate", BookingsServiceServer.UpsertTemplate),
		unaryMethod("ListTemplates", BookingsServiceServer.ListTemplates),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chairside/v1/bookings",
}

func RegisterBookingsServiceServer(s grpc.ServiceRegistrar, srv BookingsServiceServer) {
	s.RegisterService(&BookingsServiceDesc, srv)
}

// BookingsClient calls BookingsService with the JSON codec.
type BookingsClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingsClient(cc grpc.ClientConnInterface) *BookingsClient {
	return &BookingsClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingsClient) CreateBooking(ctx context.Context, in *chairsidev1.CreateBookingRequest, opts ...grpc.CallOption) (*chairsidev1.CreateBookingResponse, error) {
	return invoke[chairsidev1.CreateBookingResponse](ctx, c.cc, "CreateBooking", in, opts)
}

func (c *BookingsClient) GetBooking(ctx context.Context, in *chairsidev1.GetBookingRequest, opts ...grpc.CallOption) (*chairsidev1.GetBookingResponse, error) {
	return invoke[chairsidev1.GetBookingResponse](ctx, c.cc, "GetBooking", in, opts)
}

func (c *BookingsClient) ListBookings(ctx context.Context, in *chairsidev1.ListBookingsRequest, opts ...grpc.CallOption) (*chairsidev1.ListBookingsResponse, error) {
	return invoke[chairsidev1.ListBookingsResponse](ctx, c.cc, "ListBookings", in, opts)
}

func (c *BookingsClient) MoveBooking(ctx context.Context, in *chairsidev1.MoveBookingRequest, opts ...grpc.CallOption) (*chairsidev1.MoveBookingResponse, error) {
	return invoke[chairsidev1.MoveBookingResponse](ctx, c.cc, "MoveBooking", in, opts)
}

func (c *BookingsClient) ResizeBooking(ctx context.Context, in *chairsidev1.ResizeBookingRequest, opts ...grpc.CallOption) (*chairsidev1.ResizeBookingResponse, error) {
	return invoke[chairsidev1.ResizeBookingResponse](ctx, c.cc, "ResizeBooking", in, opts)
}

func (c *BookingsClient) SetBookingStatus(ctx context.Context, in *chairsidev1.SetBookingStatusRequest, opts ...grpc.CallOption) (*chairsidev1.SetBookingStatusResponse, error) {
	return invoke[chairsidev1.SetBookingStatusResponse](ctx, c.cc, "SetBookingStatus", in, opts)
}

func (c *BookingsClient) UpdateBookingDetails(ctx context.Context, in *chairsidev1.UpdateBookingDetailsRequest, opts ...grpc.CallOption) (*chairsidev1.UpdateBookingDetailsResponse, error) {
	return invoke[chairsidev1.UpdateBookingDetailsResponse](ctx, c.cc, "UpdateBookingDetails", in, opts)
}

func (c *BookingsClient) DeleteBooking(ctx context.Context, in *chairsidev1.DeleteBookingRequest, opts ...grpc.CallOption) (*chairsidev1.DeleteBookingResponse, error) {
	return invoke[chairsidev1.DeleteBookingResponse](ctx, c.cc, "DeleteBooking", in, opts)
}

func (c *BookingsClient) GetSlots(ctx context.Context, in *chairsidev1.GetSlotsRequest, opts ...grpc.CallOption) (*chairsidev1.GetSlotsResponse, error) {
	return invoke[chairsidev1.GetSlotsResponse](ctx, c.cc, "GetSlots", in, opts)
}

func (c *BookingsClient) GetAvailability(ctx context.Context, in *chairsidev1.GetAvailabilityRequest, opts ...grpc.CallOption) (*chairsidev1.GetAvailabilityResponse, error) {
	return invoke[chairsidev1.GetAvailabilityResponse](ctx, c.cc, "GetAvailability", in, opts)
}

func (c *BookingsClient) UpsertTemplate(ctx context.Context, in *chairsidev1.UpsertTemplateRequest, opts ...grpc.CallOption) (*chairsidev1.UpsertTemplateResponse, error) {
	return invoke[chairsidev1.UpsertTemplateResponse](ctx, c.cc, "UpsertTemplate", in, opts)
}

func (c *BookingsClient) ListTemplates(ctx context.Context, in *chairsidev1.ListTemplatesRequest, opts ...grpc.CallOption) (*chairsidev1.ListTemplatesResponse, error) {
	return invoke[chairsidev1.ListTemplatesResponse](ctx, c.cc, "ListTemplates", in, opts)
}
