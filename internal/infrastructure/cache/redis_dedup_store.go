package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// DefaultDedupPrefix namespaces webhook dedup keys
const DefaultDedupPrefix = "orderbot:webhook:seen:"

// RedisDedupStore shares webhook dedup state between instances with SETNX.
type RedisDedupStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisDedupStore wraps an existing client. The caller keeps ownership.
func NewRedisDedupStore(client redis.UniversalClient, keyPrefix string) *RedisDedupStore {
	if keyPrefix == "" {
		keyPrefix = DefaultDedupPrefix
	}
	return &RedisDedupStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed sets the key only if absent, with expiry, in one command.
func (s *RedisDedupStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark webhook key processed: %w", err)
	}
	return ok, nil
}

// IsProcessed checks key existence
func (s *RedisDedupStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check webhook key: %w", err)
	}
	return n > 0, nil
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisDedupStore) Close() error {
	return nil
}

var _ shared.IdempotencyStore = (*RedisDedupStore)(nil)
