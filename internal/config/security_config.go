package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
)

// EndpointSecurityConfig maps methods to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// BookingService - Public calendar reads
	"/ubertool.booking.v1.BookingService/CheckAvailability": SecurityPublic,
	"/ubertool.booking.v1.BookingService/GetBookedPeriods":  SecurityPublic,

	// BookingService - Access Protected
	"/ubertool.booking.v1.BookingService/CreateBooking":              SecurityAccess,
	"/ubertool.booking.v1.BookingService/ApproveBooking":             SecurityAccess,
	"/ubertool.booking.v1.BookingService/RejectBooking":              SecurityAccess,
	"/ubertool.booking.v1.BookingService/ActivateBooking":            SecurityAccess,
	"/ubertool.booking.v1.BookingService/CompleteBooking":            SecurityAccess,
	"/ubertool.booking.v1.BookingService/CancelBooking":              SecurityAccess,
	"/ubertool.booking.v1.BookingService/GetBooking":                 SecurityAccess,
	"/ubertool.booking.v1.BookingService/ListBookings":               SecurityAccess,
	"/ubertool.booking.v1.BookingService/GetCancellationEligibility": SecurityAccess,
	"/ubertool.booking.v1.BookingService/InitiatePayment":            SecurityAccess,
	"/ubertool.booking.v1.BookingService/ConfirmPayment":             SecurityAccess,

	// NotificationService - Access Protected
	"/ubertool.booking.v1.NotificationService/GetNotifications":     SecurityAccess,
	"/ubertool.booking.v1.NotificationService/MarkNotificationRead": SecurityAccess,

	// Health checks
	"/grpc.health.v1.Health/Check": SecurityPublic,
	"/grpc.health.v1.Health/List":  SecurityPublic,
	"/grpc.health.v1.Health/Watch": SecurityPublic,
}

// GetSecurityLevel returns the security level for a given method
func GetSecurityLevel(method string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[method]; exists {
		return level
	}
	// Unknown endpoints require an access token
	return SecurityAccess
}
