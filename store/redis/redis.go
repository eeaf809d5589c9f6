// Package redis provides a Redis-backed Store for featuregate.
//
// Usage records are plain string values, so the store can be shared
// across app instances. Values carry a TTL so stale daily records do
// not accumulate; the ledger already treats other-day records as
// absent, the TTL only bounds storage.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pdfsmarttools/featuregate"
)

// Store is a Redis-backed featuregate.Store.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

var _ featuregate.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "featuregate:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithTTL sets the value expiry (default 48h, zero disables expiry).
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New creates a new Redis-backed Store.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "featuregate:",
		ttl:       48 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) fullKey(key string) string {
	return s.keyPrefix + key
}

// Get returns the value for key, or featuregate.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, featuregate.ErrNotFound
		}
		return nil, fmt.Errorf("featuregate/redis: get %s: %w", key, err)
	}
	return val, nil
}

// Set writes the value for key with the configured TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.fullKey(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("featuregate/redis: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("featuregate/redis: del %s: %w", key, err)
	}
	return nil
}
