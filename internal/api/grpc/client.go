package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls the booking API over a connection using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, service, method string, req any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+service+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBooking(ctx context.Context, req *CreateBookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingServiceName, "CreateBooking", req, opts...)
}

func (c *Client) ApproveBooking(ctx context.Context, req *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingServiceName, "ApproveBooking", req, opts...)
}

func (c *Client) RejectBooking(ctx context.Context, req *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingServiceName, "RejectBooking", req, opts...)
}

func (c *Client) ActivateBooking(ctx context.Context, req *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingServiceName, "ActivateBooking", req, opts...)
}

func (c *Client) CompleteBooking(ctx context.Context, req *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingServiceName, "CompleteBooking", req, opts...)
}

func (c *Client) CancelBooking(ctx context.Context, req *CancelBookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingServiceName, "CancelBooking", req, opts...)
}

func (c *Client) GetBooking(ctx context.Context, req *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingServiceName, "GetBooking", req, opts...)
}

func (c *Client) ListBookings(ctx context.Context, req *ListBookingsRequest, opts ...grpc.CallOption) (*ListBookingsResponse, error) {
	return invoke[ListBookingsResponse](ctx, c, BookingServiceName, "ListBookings", req, opts...)
}

func (c *Client) GetCancellationEligibility(ctx context.Context, req *BookingRequest, opts ...grpc.CallOption) (*CancellationEligibilityResponse, error) {
	return invoke[CancellationEligibilityResponse](ctx, c, BookingServiceName, "GetCancellationEligibility", req, opts...)
}

func (c *Client) CheckAvailability(ctx context.Context, req *CheckAvailabilityRequest, opts ...grpc.CallOption) (*CheckAvailabilityResponse, error) {
	return invoke[CheckAvailabilityResponse](ctx, c, BookingServiceName, "CheckAvailability", req, opts...)
}

func (c *Client) GetBookedPeriods(ctx context.Context, req *BookedPeriodsRequest, opts ...grpc.CallOption) (*BookedPeriodsResponse, error) {
	return invoke[BookedPeriodsResponse](ctx, c, BookingServiceName, "GetBookedPeriods", req, opts...)
}

func (c *Client) InitiatePayment(ctx context.Context, req *BookingRequest, opts ...grpc.CallOption) (*PaymentSessionResponse, error) {
	return invoke[PaymentSessionResponse](ctx, c, BookingServiceName, "InitiatePayment", req, opts...)
}

func (c *Client) ConfirmPayment(ctx context.Context, req *ConfirmPaymentRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingServiceName, "ConfirmPayment", req, opts...)
}

func (c *Client) GetNotifications(ctx context.Context, req *GetNotificationsRequest, opts ...grpc.CallOption) (*GetNotificationsResponse, error) {
	return invoke[GetNotificationsResponse](ctx, c, NotificationServiceName, "GetNotifications", req, opts...)
}

func (c *Client) MarkNotificationRead(ctx context.Context, req *MarkNotificationReadRequest, opts ...grpc.CallOption) (*MarkNotificationReadResponse, error) {
	return invoke[MarkNotificationReadResponse](ctx, c, NotificationServiceName, "MarkNotificationRead", req, opts...)
}
