package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const handoffKeyPrefix = "pos:handoff:"

// HandoffStore is the one-shot slot carrying an order into a terminal's cart.
type HandoffStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHandoffStore creates a new hand-off store.
func NewHandoffStore(client *redis.Client, ttl time.Duration) *HandoffStore {
	return &HandoffStore{client: client, ttl: ttl}
}

// Put writes the payload, replacing any unconsumed one.
func (s *HandoffStore) Put(ctx context.Context, tenantID, terminalID string, payload []byte) error {
	key := handoffKeyPrefix + tenantID + ":" + terminalID
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set handoff: %w", err)
	}
	return nil
}

// Take reads and deletes the slot in one step.
func (s *HandoffStore) Take(ctx context.Context, tenantID, terminalID string) ([]byte, bool, error) {
	key := handoffKeyPrefix + tenantID + ":" + terminalID
	data, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis getdel handoff: %w", err)
	}
	return data, true, nil
}
