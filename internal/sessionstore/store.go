// Package sessionstore persists conversation sessions between turns.
package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"sales-agent/internal/domain"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

const (
	keyPrefix  = "session:"
	defaultTTL = 24 * time.Hour
)

var (
	ErrInvalidBackend = errors.New("sessionstore: invalid backend")
	ErrInvalidConfig  = errors.New("sessionstore: invalid configuration")
)

// Store keeps one Session per id. Implementations hand out copies: mutating a
// returned Session has no effect until it is passed to Save.
type Store interface {
	// Get returns nil, nil when id is unknown.
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

type Option func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func WithRedisClient(client *redis.Client) Option {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithTTL sets how long an idle session survives in backends that expire keys.
func WithTTL(ttl time.Duration) Option {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

func New(backend Backend, opts ...Option) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	switch backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedis(cfg.redisClient, cfg.ttl), nil
	default:
		return nil, ErrInvalidBackend
	}
}
