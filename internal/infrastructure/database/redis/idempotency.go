// internal/infrastructure/database/redis/idempotency.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// ErrRequestInFlight is returned when the same idempotency key is still being processed
var ErrRequestInFlight = errors.New("a request with this idempotency key is already in progress")

// IdempotencyStore remembers which order an idempotency key produced
type IdempotencyStore struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewIdempotencyStore creates a store whose keys live under prefix for ttl
func NewIdempotencyStore(client *Client, prefix string, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *IdempotencyStore) key(scope, idemKey string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, idemKey)
}

// Reserve claims idemKey within scope. When the key already completed, the
// stored result id is returned with reserved=false.
func (s *IdempotencyStore) Reserve(ctx context.Context, scope, idemKey string) (resultID uint, reserved bool, err error) {
	key := s.key(scope, idemKey)

	ok, err := s.client.Redis.SetNX(ctx, key, pendingMarker, s.ttl).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	val, err := s.client.Redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET, try once more
		ok, err = s.client.Redis.SetNX(ctx, key, pendingMarker, s.ttl).Result()
		if err != nil {
			return 0, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
		}
		if ok {
			return 0, true, nil
		}
		return 0, false, ErrRequestInFlight
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if val == pendingMarker {
		return 0, false, ErrRequestInFlight
	}

	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency record %q: %w", val, err)
	}
	return uint(id), false, nil
}

// Complete records the result id for a reserved key
func (s *IdempotencyStore) Complete(ctx context.Context, scope, idemKey string, resultID uint) error {
	err := s.client.Redis.Set(ctx, s.key(scope, idemKey), strconv.FormatUint(uint64(resultID), 10), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store idempotency result: %w", err)
	}
	return nil
}

// Release drops a reservation so the request can be retried
func (s *IdempotencyStore) Release(ctx context.Context, scope, idemKey string) error {
	if err := s.client.Redis.Del(ctx, s.key(scope, idemKey)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
