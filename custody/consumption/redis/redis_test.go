//go:build unit

package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(client, "")
	require.NoError(t, err)

	return store
}

func testID(b byte) custody.AuthorizationID {
	var id custody.AuthorizationID
	id[0] = b

	return id
}

func TestNewStoreRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := NewStore(nil, "")
	require.ErrorIs(t, err, ErrNilClient)
}

func TestStoreConsumeOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testStore(t)
	id := testID(0x01)

	consumed, err := store.Consumed(ctx, id)
	require.NoError(t, err)
	assert.False(t, consumed)

	won, err := store.Consume(ctx, id)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.Consume(ctx, id)
	require.NoError(t, err)
	assert.False(t, won)

	consumed, err = store.Consumed(ctx, id)
	require.NoError(t, err)
	assert.True(t, consumed)
}

func TestStoreKeyPrefixIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	mr := miniredis.RunT(t)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	first, err := NewStore(client, "validator-a:")
	require.NoError(t, err)

	second, err := NewStore(client, "validator-b:")
	require.NoError(t, err)

	won, err := first.Consume(ctx, testID(0x02))
	require.NoError(t, err)
	require.True(t, won)

	consumed, err := second.Consumed(ctx, testID(0x02))
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestStoreConsumedAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testStore(t)
	id := testID(0x03)

	at, err := store.ConsumedAt(ctx, id)
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	before := time.Now().UTC().Add(-time.Second)

	won, err := store.Consume(ctx, id)
	require.NoError(t, err)
	require.True(t, won)

	at, err = store.ConsumedAt(ctx, id)
	require.NoError(t, err)
	assert.True(t, at.After(before))
}

func TestStoreConcurrentConsumeSingleWinner(t *testing.T) {
	t.Parallel()

	const contenders = 32

	ctx := context.Background()
	store := testStore(t)
	id := testID(0xbb)

	var (
		winners int64
		start   sync.WaitGroup
		done    sync.WaitGroup
	)

	start.Add(1)

	for range contenders {
		done.Add(1)

		go func() {
			defer done.Done()
			start.Wait()

			won, err := store.Consume(ctx, id)
			assert.NoError(t, err)

			if won {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}

	start.Done()
	done.Wait()

	assert.Equal(t, int64(1), winners)
}

func TestStorePing(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	require.NoError(t, store.Ping(context.Background()))
}
