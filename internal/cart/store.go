package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists carts between requests.
type Store interface {
	Load(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps carts as JSON documents with a sliding expiry.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

// NewRedisStore builds a store. A non-positive ttl defaults to seven days.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{Client: client, TTL: ttl, Prefix: "cart:"}
}

func (s *RedisStore) key(id string) string {
	return s.Prefix + id
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, id string) (*Cart, error) {
	if s == nil || s.Client == nil {
		return nil, errors.New("cart store not configured")
	}
	raw, err := s.Client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", id, err)
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", id, err)
	}
	return &c, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, c *Cart) error {
	if s == nil || s.Client == nil {
		return errors.New("cart store not configured")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", c.ID, err)
	}
	return s.Client.Set(ctx, s.key(c.ID), raw, s.TTL).Err()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.Client == nil {
		return errors.New("cart store not configured")
	}
	return s.Client.Del(ctx, s.key(id)).Err()
}
