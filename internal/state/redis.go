package state

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// consumeScript returns {status, expires_at_ms}.
// status: 0 missing, 1 consumed now, 2 already used.
var consumeScript = redis.NewScript(`
local used = redis.call('HGET', KEYS[1], 'used')
if not used then
  return {0, 0}
end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at')) or 0
if used == '1' then
  return {2, exp}
end
redis.call('HSET', KEYS[1], 'used', '1')
return {1, exp}
`)

// RedisStore keeps states as hashes so every replica sees the same set.
// Keys live for twice the TTL so an expired state is reported as expired
// rather than unknown.
type RedisStore struct {
	client *redis.Client
	clock  clockwork.Clock
	ttl    time.Duration
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration, clock clockwork.Clock) *RedisStore {
	return &RedisStore{
		client: client,
		clock:  clock,
		ttl:    ttl,
		prefix: "qbgate:oauth_state:",
	}
}

func (s *RedisStore) key(state string) string {
	return s.prefix + state
}

func (s *RedisStore) Issue(ctx context.Context) (string, error) {
	value, err := newStateValue()
	if err != nil {
		return "", err
	}
	expiresAt := s.clock.Now().Add(s.ttl).UnixMilli()
	key := s.key(value)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "used", "0", "expires_at", expiresAt)
		pipe.PExpire(ctx, key, 2*s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return value, nil
}

func (s *RedisStore) Consume(ctx context.Context, state string) error {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(state)}).Int64Slice()
	if err != nil {
		return fmt.Errorf("consume oauth state: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("consume oauth state: unexpected reply %v", res)
	}

	switch res[0] {
	case 0:
		return ErrStateNotFound
	case 2:
		return ErrStateUsed
	}
	if s.clock.Now().UnixMilli() >= res[1] {
		return ErrStateExpired
	}
	return nil
}
