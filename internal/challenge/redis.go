package challenge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// expiryGrace keeps an expired challenge readable for a while so consume
// can report Expired instead of NoActiveChallenge.
const expiryGrace = time.Minute

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "campusattend:challenge"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(principal string, purpose Purpose) string {
	return r.prefix + ":" + string(purpose) + ":" + principal
}

func (r *RedisStore) Put(ctx context.Context, c Challenge) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode challenge")
	}
	ttl := c.ExpiresAt.Sub(c.IssuedAt) + expiryGrace
	return r.client.Set(ctx, r.key(c.Principal, c.Purpose), payload, ttl).Err()
}

func (r *RedisStore) Take(ctx context.Context, principal string, purpose Purpose) (Challenge, bool, error) {
	payload, err := r.client.GetDel(ctx, r.key(principal, purpose)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Challenge{}, false, nil
	}
	if err != nil {
		return Challenge{}, false, err
	}
	var c Challenge
	if err := json.Unmarshal(payload, &c); err != nil {
		return Challenge{}, false, errors.Wrap(err, "decode challenge")
	}
	return c, true, nil
}
