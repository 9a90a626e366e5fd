package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"sales-agent/internal/domain"
)

// Redis stores each session as a JSON document under "session:<id>". The TTL
// is refreshed on every read and write.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, id string) (*domain.Session, error) {
	key := keyPrefix + id
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: get %q: %w", id, err)
	}
	s, err := decode(val)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: decode %q: %w", id, err)
	}
	_ = r.client.Expire(ctx, key, r.ttl).Err()
	return s, nil
}

func (r *Redis) Save(ctx context.Context, s *domain.Session) error {
	if s == nil || s.ID == "" {
		return errors.New("sessionstore: session id is required")
	}
	val, err := encode(s)
	if err != nil {
		return fmt.Errorf("sessionstore: encode %q: %w", s.ID, err)
	}
	if err := r.client.Set(ctx, keyPrefix+s.ID, val, r.ttl).Err(); err != nil {
		return fmt.Errorf("sessionstore: set %q: %w", s.ID, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("sessionstore: delete %q: %w", id, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func encode(s *domain.Session) (string, error) {
	return sonic.MarshalString(s)
}

func decode(val string) (*domain.Session, error) {
	var s domain.Session
	if err := sonic.UnmarshalString(val, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
