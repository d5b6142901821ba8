package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	BookingServiceName      = "ubertool.booking.v1.BookingService"
	NotificationServiceName = "ubertool.booking.v1.NotificationService"
)

type BookingServer interface {
	CreateBooking(context.Context, *CreateBookingRequest) (*BookingResponse, error)
	ApproveBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	RejectBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	ActivateBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	CompleteBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	CancelBooking(context.Context, *CancelBookingRequest) (*BookingResponse, error)
	GetBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	ListBookings(context.Context, *ListBookingsRequest) (*ListBookingsResponse, error)
	GetCancellationEligibility(context.Context, *BookingRequest) (*CancellationEligibilityResponse, error)
	CheckAvailability(context.Context, *CheckAvailabilityRequest) (*CheckAvailabilityResponse, error)
	GetBookedPeriods(context.Context, *BookedPeriodsRequest) (*BookedPeriodsResponse, error)
	InitiatePayment(context.Context, *BookingRequest) (*PaymentSessionResponse, error)
	ConfirmPayment(context.Context, *ConfirmPaymentRequest) (*BookingResponse, error)
}

type NotificationServer interface {
	GetNotifications(context.Context, *GetNotificationsRequest) (*GetNotificationsResponse, error)
	MarkNotificationRead(context.Context, *MarkNotificationReadRequest) (*MarkNotificationReadResponse, error)
}

// unary builds a method descriptor around a handler method expression.
func unary[S, Req, Resp any](serviceName, methodName string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + methodName
	return grpc.MethodDesc{
		MethodName: methodName,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*BookingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(BookingServiceName, "CreateBooking", BookingServer.CreateBooking),
		unary(BookingServiceName, "ApproveBooking", BookingServer.ApproveBooking),
		unary(BookingServiceName, "RejectBooking", BookingServer.RejectBooking),
		unary(BookingServiceName, "ActivateBooking", BookingServer.ActivateBooking),
		unary(BookingServiceName, "CompleteBooking", BookingServer.CompleteBooking),
		unary(BookingServiceName, "CancelBooking", BookingServer.CancelBooking),
		unary(BookingServiceName, "GetBooking", BookingServer.GetBooking),
		unary(BookingServiceName, "ListBookings", BookingServer.ListBookings),
		unary(BookingServiceName, "GetCancellationEligibility", BookingServer.GetCancellationEligibility),
		unary(BookingServiceName, "CheckAvailability", BookingServer.CheckAvailability),
		unary(BookingServiceName, "GetBookedPeriods", BookingServer.GetBookedPeriods),
		unary(BookingServiceName, "InitiatePayment", BookingServer.InitiatePayment),
		unary(BookingServiceName, "ConfirmPayment", BookingServer.ConfirmPayment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ubertool/booking/v1/booking.json",
}

var NotificationServiceDesc = grpc.ServiceDesc{
	ServiceName: NotificationServiceName,
	HandlerType: (*NotificationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(NotificationServiceName, "GetNotifications", NotificationServer.GetNotifications),
		unary(NotificationServiceName, "MarkNotificationRead", NotificationServer.MarkNotificationRead),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ubertool/booking/v1/booking.json",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}

func RegisterNotificationServiceServer(s grpc.ServiceRegistrar, srv NotificationServer) {
	s.RegisterService(&NotificationServiceDesc, srv)
}
