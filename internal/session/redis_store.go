package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "verification:session:v1:"

type redisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Redis-backed session store. Expiry rides on the
// native key TTL and Consume maps to GETDEL, which gives the same atomic
// check-and-delete guarantee as the in-memory store.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (r *redisStore) Put(ctx context.Context, s Session, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+s.Key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *redisStore) Get(ctx context.Context, key string) (Session, error) {
	payload, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("fetch session: %w", err)
	}
	return decode(payload)
}

func (r *redisStore) Consume(ctx context.Context, key string) (Session, error) {
	payload, err := r.client.GetDel(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("consume session: %w", err)
	}
	return decode(payload)
}

func (r *redisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func decode(payload string) (Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}
