package grpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// userIDKey is set by the auth interceptor from the verified token.
const userIDKey = "user-id"

// GetUserIDFromContext extracts the caller's user ID from the gRPC metadata.
func GetUserIDFromContext(ctx context.Context) (int32, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, status.Errorf(codes.Unauthenticated, "metadata is not provided")
	}

	userIDs := md.Get(userIDKey)
	if len(userIDs) == 0 {
		return 0, status.Errorf(codes.Unauthenticated, "user_id is not provided in metadata")
	}

	userID, err := strconv.ParseInt(userIDs[0], 10, 32)
	if err != nil || userID <= 0 {
		return 0, status.Errorf(codes.Unauthenticated, "invalid user_id %q", userIDs[0])
	}

	return int32(userID), nil
}
