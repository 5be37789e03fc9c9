package redis

import (
	"context"
	"errors"
	"time"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/LerianStudio/lib-custody/custody/consumption"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces consumed-ID keys inside a shared Redis.
const DefaultKeyPrefix = "custody:consumed:"

// ErrNilClient is returned when a store is constructed without a Redis client.
var ErrNilClient = errors.New("redis client is required")

// Store is a consumption.Store backed by Redis. Consumed IDs are written
// without TTL: consumption is permanent, so no lease may expire and re-admit
// an already-spent approval.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ consumption.Store = (*Store)(nil)

// NewStore creates a store on an established Redis client. An empty keyPrefix
// selects DefaultKeyPrefix.
func NewStore(client redis.UniversalClient, keyPrefix string) (*Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &Store{client: client, prefix: keyPrefix}, nil
}

func (s *Store) key(id custody.AuthorizationID) string {
	return s.prefix + id.Hex()
}

// Consume implements consumption.Store. SET NX performs the atomic
// check-and-set; the stored value records when the ID was consumed.
func (s *Store) Consume(ctx context.Context, id custody.AuthorizationID) (bool, error) {
	consumedAt := time.Now().UTC().Format(time.RFC3339Nano)

	won, err := s.client.SetNX(ctx, s.key(id), consumedAt, 0).Result()
	if err != nil {
		return false, err
	}

	return won, nil
}

// Consumed implements consumption.Store.
func (s *Store) Consumed(ctx context.Context, id custody.AuthorizationID) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// ConsumedAt returns the recorded consumption time for id. The zero time with
// a nil error means the ID has not been consumed.
func (s *Store) ConsumedAt(ctx context.Context, id custody.AuthorizationID) (time.Time, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}

	if err != nil {
		return time.Time{}, err
	}

	return time.Parse(time.RFC3339Nano, raw)
}

// Ping verifies connectivity to the Redis deployment.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
