package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ubertool-booking/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-taken by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var errLockHeld = errors.New("tool lock held")

// Redis is a lock shared by every server instance. The TTL bounds how long a
// crashed holder can block a tool.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{client: client, ttl: ttl, prefix: "booking:lock:tool:"}
}

func (r *Redis) key(toolID int32) string {
	return fmt.Sprintf("%s%d", r.prefix, toolID)
}

func (r *Redis) AcquireToolLock(ctx context.Context, toolID int32) (func(), error) {
	key := r.key(toolID)
	token := uuid.NewString()

	backoff := retry.WithCappedDuration(200*time.Millisecond, retry.WithJitterPercent(20, retry.NewExponential(5*time.Millisecond)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errLockHeld)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(toolID, ctx.Err())
		}
		return nil, fmt.Errorf("failed to acquire tool lock: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be done
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				logger.Warn("Failed to release tool lock", "toolID", toolID, "error", err)
			}
		})
	}, nil
}
