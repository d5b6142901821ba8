package interceptor

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ubertool-booking/internal/logger"
)

// Logging records each unary call with its status code and duration, and
// turns handler panics into Internal errors.
func Logging() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "Panic in gRPC handler", "method", info.FullMethod, "panic", r)
				err = status.Error(codes.Internal, "internal error")
			}
			code := status.Code(err)
			logger.InfoContext(ctx, "gRPC request", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
		}()
		return handler(ctx, req)
	}
}
