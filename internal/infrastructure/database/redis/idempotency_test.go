package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	return NewIdempotencyStore(client, "checkout:idem", time.Hour), mr
}

func TestReserveCompleteReplay(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	id, reserved, err := store.Reserve(ctx, "7", "abc")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Zero(t, id)

	_, _, err = store.Reserve(ctx, "7", "abc")
	assert.ErrorIs(t, err, ErrRequestInFlight)

	require.NoError(t, store.Complete(ctx, "7", "abc", 42))
	assert.Equal(t, "42", mustGet(t, mr, "checkout:idem:7:abc"))

	id, reserved, err = store.Reserve(ctx, "7", "abc")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, uint(42), id)
}

func TestKeysAreScoped(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, reserved, err := store.Reserve(ctx, "7", "abc")
	require.NoError(t, err)
	require.True(t, reserved)

	_, reserved, err = store.Reserve(ctx, "8", "abc")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestReleaseAllowsRetry(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, _, err := store.Reserve(ctx, "7", "abc")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "7", "abc"))

	_, reserved, err := store.Reserve(ctx, "7", "abc")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestReservationExpires(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	_, _, err := store.Reserve(ctx, "7", "abc")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	_, reserved, err := store.Reserve(ctx, "7", "abc")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestCorruptRecord(t *testing.T) {
	store, mr := newStore(t)
	require.NoError(t, mr.Set("checkout:idem:7:abc", "not-a-number"))

	_, _, err := store.Reserve(context.Background(), "7", "abc")
	assert.Error(t, err)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	val, err := mr.Get(key)
	require.NoError(t, err)
	return val
}
