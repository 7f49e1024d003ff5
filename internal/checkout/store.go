package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
)

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CheckoutSessionKey(sessionID string, flow string) string
}

// SessionStore persists checkout sessions in redis with a TTL. An expired
// session simply vanishes; the wizard restarts from its first stage.
type SessionStore struct {
	kv  kvStore
	ttl time.Duration
}

func NewSessionStore(kv kvStore, ttl time.Duration) (*SessionStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &SessionStore{kv: kv, ttl: ttl}, nil
}

// Load returns the stored session, or nil when none exists.
func (s *SessionStore) Load(ctx context.Context, sessionID string, flow enums.FlowKind) (*Session, error) {
	raw, err := s.kv.Get(ctx, s.kv.CheckoutSessionKey(sessionID, string(flow)))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkout session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &sess, nil
}

// Save rewrites the session and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session required")
	}
	sess.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode checkout session: %w", err)
	}
	key := s.kv.CheckoutSessionKey(sess.SessionID, string(sess.Flow))
	if err := s.kv.Set(ctx, key, string(payload), s.ttl); err != nil {
		return fmt.Errorf("save checkout session: %w", err)
	}
	return nil
}

// Delete removes the session, typically after a terminal stage.
func (s *SessionStore) Delete(ctx context.Context, sessionID string, flow enums.FlowKind) error {
	if err := s.kv.Del(ctx, s.kv.CheckoutSessionKey(sessionID, string(flow))); err != nil {
		return fmt.Errorf("delete checkout session: %w", err)
	}
	return nil
}
