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

const pinSessionKeyPrefix = "pos:pin_session:"

// PINSessionStore keeps employee PIN sessions until they expire.
type PINSessionStore struct {
	client *redis.Client
}

// NewPINSessionStore creates a new PIN session store.
func NewPINSessionStore(client *redis.Client) *PINSessionStore {
	return &PINSessionStore{client: client}
}

// Save stores the session with a TTL derived from its ExpiresAt.
func (s *PINSessionStore) Save(ctx context.Context, session *domain.PINSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return apperrors.InvalidInput("session already expired")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal pin session: %w", err)
	}
	if err := s.client.Set(ctx, pinSessionKeyPrefix+session.Token, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set pin session: %w", err)
	}
	return nil
}

// Get returns the session for a token.
func (s *PINSessionStore) Get(ctx context.Context, token string) (*domain.PINSession, error) {
	data, err := s.client.Get(ctx, pinSessionKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("pin session", token)
		}
		return nil, fmt.Errorf("redis get pin session: %w", err)
	}

	var session domain.PINSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal pin session: %w", err)
	}
	return &session, nil
}

// Delete ends a session. Deleting an unknown token is not an error.
func (s *PINSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, pinSessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("redis del pin session: %w", err)
	}
	return nil
}
