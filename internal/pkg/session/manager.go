// internal/pkg/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	xerrors "unitevol-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// Manager keeps issued sessions in Redis. Redis is the source of truth:
// a token whose session key is gone is no longer valid.
type Manager struct {
	client redis.Cmdable
}

func NewManager(client redis.Cmdable) *Manager {
	return &Manager{client: client}
}

// CreateSession stores a new session until its expiry.
func (m *Manager) CreateSession(ctx context.Context, session *SessionData) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	if err := m.client.Set(ctx, m.sessionKey(session.PrincipalID, session.JTI), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

// GetSession retrieves a session; a missing key maps to ErrSessionExpired.
func (m *Manager) GetSession(ctx context.Context, principalID, jti string) (*SessionData, error) {
	data, err := m.client.Get(ctx, m.sessionKey(principalID, jti)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Touch updates the last activity timestamp, keeping the remaining TTL.
func (m *Manager) Touch(ctx context.Context, principalID, jti string) error {
	session, err := m.GetSession(ctx, principalID, jti)
	if err != nil {
		return err
	}
	session.LastActivityAt = time.Now()

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.sessionKey(principalID, jti), data, redis.KeepTTL).Err()
}

// InvalidateSession removes a session. Removing a missing session is not an error.
func (m *Manager) InvalidateSession(ctx context.Context, principalID, jti string) error {
	if err := m.client.Del(ctx, m.sessionKey(principalID, jti)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// InvalidateAllUserSessions removes all sessions for a principal
func (m *Manager) InvalidateAllUserSessions(ctx context.Context, principalID string) error {
	pattern := fmt.Sprintf("session:%s:*", principalID)

	iter := m.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := m.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// IsTokenBlacklisted checks if a token is blacklisted
func (m *Manager) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := m.client.Exists(ctx, m.blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// BlacklistToken adds a token to the blacklist
func (m *Manager) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return m.client.Set(ctx, m.blacklistKey(jti), "1", ttl).Err()
}

func (m *Manager) sessionKey(principalID, jti string) string {
	return fmt.Sprintf("session:%s:%s", principalID, jti)
}

func (m *Manager) blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}
