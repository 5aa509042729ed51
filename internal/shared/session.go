package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager stores authenticated principals in Redis keyed by a bearer
// session id. Credential verification happens upstream; this layer only
// resolves an opaque token back to the principal it was issued for.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
}

type sessionPayload struct {
	UserID         string   `json:"user_id"`
	TenantID       string   `json:"tenant_id"`
	DefaultStoreID string   `json:"default_store_id,omitempty"`
	RoleIDs        []string `json:"role_ids,omitempty"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, ttl time.Duration) *SessionManager {
	return &SessionManager{client: client, ttl: ttl}
}

// Issue creates a new session for the principal and returns its id.
func (sm *SessionManager) Issue(ctx context.Context, p Principal) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(sessionPayload{
		UserID:         p.UserID,
		TenantID:       p.TenantID,
		DefaultStoreID: p.DefaultStoreID,
		RoleIDs:        p.RoleIDs,
	})
	if err != nil {
		return "", err
	}
	if err := sm.client.Set(ctx, sm.redisKey(id), data, sm.ttl).Err(); err != nil {
		return "", err
	}
	return id, nil
}

// Resolve loads the principal bound to the given session id.
func (sm *SessionManager) Resolve(ctx context.Context, sessionID string) (*Principal, error) {
	if sessionID == "" {
		return nil, ErrUnauthenticated
	}
	data, err := sm.client.Get(ctx, sm.redisKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &Principal{
		UserID:         stored.UserID,
		TenantID:       stored.TenantID,
		DefaultStoreID: stored.DefaultStoreID,
		SessionID:      sessionID,
		RoleIDs:        stored.RoleIDs,
	}, nil
}

// ResolveRequest extracts the bearer token from the request and resolves it.
func (sm *SessionManager) ResolveRequest(ctx context.Context, r *http.Request) (*Principal, error) {
	return sm.Resolve(ctx, BearerToken(r))
}

// Revoke deletes the session. Revoking an unknown id is not an error.
func (sm *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := sm.client.Del(ctx, sm.redisKey(sessionID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

// BearerToken returns the token carried in the Authorization header, if any.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
