package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cashback:idempotency:"

// reserveScript takes the lock only when no response is cached for the key.
// KEYS[1] is the response, KEYS[2] the lock, ARGV[1] the lock TTL in ms.
var reserveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
if redis.call("SET", KEYS[2], "1", "NX", "PX", ARGV[1]) then
	return 1
end
return 0
`)

type RedisStore struct {
	client  redis.UniversalClient
	ttl     time.Duration
	lockTTL time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, lockTTL: 30 * time.Second}
}

// responseKey hash-tags key so both keys land in the same cluster slot.
func responseKey(key string) string { return keyPrefix + "{" + key + "}" }

func lockKey(key string) string { return responseKey(key) + ":lock" }

func (s *RedisStore) Get(ctx context.Context, key string) (*Response, error) {
	raw, err := s.client.Get(ctx, responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key string) (bool, error) {
	n, err := reserveScript.Run(ctx, s.client, []string{responseKey(key), lockKey(key)}, s.lockTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis reserve: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, responseKey(key), raw, s.ttl)
		p.Del(ctx, lockKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, lockKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
