package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
)

const cartKeyPrefix = "pos:cart:"

func cartKey(tenantID, terminalID string) string {
	return cartKeyPrefix + tenantID + ":" + terminalID
}

// CartStore implements repository.CartRepository using Redis.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartStore creates a new Redis-backed cart store.
func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	return &CartStore{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the cart of a terminal.
func (s *CartStore) Get(ctx context.Context, tenantID, terminalID string) (*domain.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(tenantID, terminalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", tenantID+"/"+terminalID)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	return &cart, nil
}

// SaveIfVersion writes the cart under WATCH so that a concurrent writer
// aborts the transaction. A missing key counts as version 0.
func (s *CartStore) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error) {
	key := cartKey(cart.TenantID, cart.TerminalID)
	saved := false

	txf := func(tx *redis.Tx) error {
		current := 0
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get cart: %w", err)
		default:
			var stored domain.Cart
			if err := json.Unmarshal(data, &stored); err != nil {
				return fmt.Errorf("unmarshal cart: %w", err)
			}
			current = stored.Version
		}

		if current != expectedVersion {
			return nil
		}

		next := *cart
		next.Version = expectedVersion + 1
		payload, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		saved = true
		return nil
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis save cart: %w", err)
	}
	if saved {
		cart.Version = expectedVersion + 1
	}
	return saved, nil
}

// Delete removes the cart of a terminal.
func (s *CartStore) Delete(ctx context.Context, tenantID, terminalID string) error {
	if err := s.client.Del(ctx, cartKey(tenantID, terminalID)).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}
