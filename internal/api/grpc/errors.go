package grpc

import (
	"context"
	"errors"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrAuthorization):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrConflict):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrConcurrentModification):
		code = codes.Aborted
	case errors.Is(err, domain.ErrInvalidState):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrPaymentGateway):
		code = codes.FailedPrecondition
		if domain.IsTransient(err) {
			code = codes.Unavailable
		}
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		logger.Error("Unhandled service error", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
