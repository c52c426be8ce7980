package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenManager issues and resolves opaque bearer tokens backed by Redis.
type TokenManager struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type tokenPayload struct {
	UserID   int64    `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(client *redis.Client, prefix string, ttl time.Duration) *TokenManager {
	return &TokenManager{client: client, prefix: prefix, ttl: ttl}
}

// Issue stores the identity under a fresh token and returns the token.
func (tm *TokenManager) Issue(ctx context.Context, id Identity) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(tokenPayload{UserID: id.UserID, Username: id.Username, Roles: id.Roles})
	if err != nil {
		return "", err
	}
	if err := tm.client.Set(ctx, tm.redisKey(token), payload, tm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the identity stored under token. Unknown or expired
// tokens yield ErrUnauthorized.
func (tm *TokenManager) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	raw, err := tm.client.Get(ctx, tm.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	var stored tokenPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	return &Identity{UserID: stored.UserID, Username: stored.Username, Roles: stored.Roles}, nil
}

// Refresh rewrites the stored identity for an existing token, keeping the
// token valid after role changes.
func (tm *TokenManager) Refresh(ctx context.Context, token string, id Identity) error {
	payload, err := json.Marshal(tokenPayload{UserID: id.UserID, Username: id.Username, Roles: id.Roles})
	if err != nil {
		return err
	}
	return tm.client.Set(ctx, tm.redisKey(token), payload, tm.ttl).Err()
}

// Revoke deletes the token.
func (tm *TokenManager) Revoke(ctx context.Context, token string) error {
	if err := tm.client.Del(ctx, tm.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

func (tm *TokenManager) redisKey(token string) string {
	return tm.prefix + ":" + token
}
