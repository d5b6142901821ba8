package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"ubertool-booking/internal/api/grpc/interceptor"
	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/gateway"
	"ubertool-booking/internal/lock"
	"ubertool-booking/internal/notify"
	"ubertool-booking/internal/pricing"
	"ubertool-booking/internal/repository/memory"
	"ubertool-booking/internal/security"
	"ubertool-booking/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	testOwner  int32 = 2
	testRenter int32 = 3
)

type testServer struct {
	client *Client
	tokens security.TokenManager
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewStore()
	store.PutTool(domain.Tool{ID: 1, OwnerID: testOwner, Name: "Ladder", DailyPriceCents: 10000, Status: domain.ToolStatusAvailable})
	repos := store.Repositories()

	engine, err := pricing.NewEngine(pricing.DefaultLimits, pricing.DefaultPolicy)
	require.NoError(t, err)
	cfg := service.Config{
		ActivateOnPayment: true,
		Now:               func() time.Time { return time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC) },
	}
	sink := notify.NewInboxSink(repos.Notifications)
	payments := service.NewPaymentCoordinator(repos.Bookings, repos.PaymentEvents, gateway.NewMockGateway(""), sink, cfg)
	bookings := service.NewBookingService(repos.Tools, repos.Bookings, lock.NewLocal(), service.NewAvailabilityChecker(repos.Tools, repos.Bookings), engine, payments, sink, cfg)

	tokens := security.NewTokenManager("test-secret", time.Hour)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		interceptor.Logging(),
		interceptor.NewAuthInterceptor(tokens).Unary(),
	))
	RegisterBookingServiceServer(s, NewBookingHandler(bookings, payments))
	RegisterNotificationServiceServer(s, NewNotificationHandler(service.NewNotificationService(repos.Notifications)))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testServer{client: NewClient(conn), tokens: tokens}
}

func (s *testServer) as(t *testing.T, userID int32) context.Context {
	t.Helper()
	token, err := s.tokens.GenerateAccessToken(userID, "", nil)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestBookingServiceOverGRPC(t *testing.T) {
	srv := startServer(t)
	c := srv.client

	created, err := c.CreateBooking(srv.as(t, testRenter), &CreateBookingRequest{ToolID: 1, StartDate: "2024-07-01", EndDate: "2024-07-03"})
	require.NoError(t, err)
	assert.Equal(t, "pending", created.Booking.Status)
	assert.Equal(t, int64(20000), created.Booking.TotalPriceCents)
	assert.Equal(t, "2024-07-01", created.Booking.StartDate)
	id := created.Booking.ID

	_, err = c.ApproveBooking(srv.as(t, testRenter), &BookingRequest{BookingID: id})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	approved, err := c.ApproveBooking(srv.as(t, testOwner), &BookingRequest{BookingID: id})
	require.NoError(t, err)
	assert.Equal(t, "approved", approved.Booking.Status)

	_, err = c.ApproveBooking(srv.as(t, testOwner), &BookingRequest{BookingID: id})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	session, err := c.InitiatePayment(srv.as(t, testRenter), &BookingRequest{BookingID: id})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), session.AmountCents)

	paid, err := c.ConfirmPayment(srv.as(t, testRenter), &ConfirmPaymentRequest{BookingID: id, PaymentMethodID: "pm_card_visa"})
	require.NoError(t, err)
	assert.Equal(t, "active", paid.Booking.Status)
	assert.Equal(t, "paid", paid.Booking.PaymentStatus)

	quote, err := c.GetCancellationEligibility(srv.as(t, testRenter), &BookingRequest{BookingID: id})
	require.NoError(t, err)
	assert.True(t, quote.Quote.CanCancel)
	assert.Equal(t, int64(20000), quote.Quote.RefundCents)

	cancelled, err := c.CancelBooking(srv.as(t, testRenter), &CancelBookingRequest{BookingID: id, Reason: "plans changed"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Booking.Status)
	assert.Equal(t, int64(20000), cancelled.Booking.RefundedCents)

	list, err := c.ListBookings(srv.as(t, testOwner), &ListBookingsRequest{Role: "owner", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int32(1), list.TotalCount)

	notes, err := c.GetNotifications(srv.as(t, testOwner), &GetNotificationsRequest{Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.NotEmpty(t, notes.Notifications)
	_, err = c.MarkNotificationRead(srv.as(t, testOwner), &MarkNotificationReadRequest{NotificationID: notes.Notifications[0].ID})
	assert.NoError(t, err)
}

func TestAuthOverGRPC(t *testing.T) {
	srv := startServer(t)
	c := srv.client

	_, err := c.CreateBooking(context.Background(), &CreateBookingRequest{ToolID: 1, StartDate: "2024-07-01", EndDate: "2024-07-03"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	spoofed := metadata.AppendToOutgoingContext(context.Background(), "user-id", "3")
	_, err = c.CreateBooking(spoofed, &CreateBookingRequest{ToolID: 1, StartDate: "2024-07-01", EndDate: "2024-07-03"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer nope")
	_, err = c.GetBooking(bad, &BookingRequest{BookingID: "x"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	avail, err := c.CheckAvailability(context.Background(), &CheckAvailabilityRequest{ToolID: 1, StartDate: "2024-07-01", EndDate: "2024-07-03"})
	require.NoError(t, err)
	assert.True(t, avail.Available)

	_, err = c.CheckAvailability(context.Background(), &CheckAvailabilityRequest{ToolID: 1, StartDate: "2024-07-03", EndDate: "2024-07-01"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.GetBookedPeriods(context.Background(), &BookedPeriodsRequest{ToolID: 404})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.GetBooking(srv.as(t, testRenter), &BookingRequest{BookingID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{domain.NewValidationError("start_date", "bad"), codes.InvalidArgument},
		{domain.NewConflictError("b1", "overlap"), codes.AlreadyExists},
		{domain.NewConcurrentModificationError("b1", nil), codes.Aborted},
		{domain.NewInvalidStateError("b1", domain.BookingStatusCancelled, "approve"), codes.FailedPrecondition},
		{&domain.GatewayError{Op: "Refund", Transient: true}, codes.Unavailable},
		{&domain.GatewayError{Op: "Refund"}, codes.FailedPrecondition},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{assert.AnError, codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, status.Code(toStatus(tc.err)), tc.err.Error())
	}
}
