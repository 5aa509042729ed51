package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Conn is the transport side of one live subscription. Send must deliver
// synchronously so per-session message order is preserved; a failed Send
// marks the connection dead and it will be pruned.
type Conn interface {
	// ID identifies the underlying session.
	ID() string
	// Send delivers one message.
	Send(msg Message) error
	// Close tears the channel down with a reason visible to the client.
	Close(reason string)
}

type subscription struct {
	conn    Conn
	userID  string
	storeID string
}

// Broadcaster maintains live permission-change subscriptions and fans
// role/permission mutations out to affected sessions. Delivery is
// best-effort per session: a dead session is pruned and skipped, never
// retried, and one failure never blocks delivery to other sessions.
type Broadcaster struct {
	logger    *slog.Logger
	delivered prometheus.Counter
	pruned    prometheus.Counter

	mu      sync.RWMutex
	bySess  map[string]*subscription
	byUser  map[string]map[string]*subscription
	byStore map[string]map[string]*subscription
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:  logger,
		bySess:  make(map[string]*subscription),
		byUser:  make(map[string]map[string]*subscription),
		byStore: make(map[string]map[string]*subscription),
	}
}

// Instrument attaches delivery and prune counters.
func (b *Broadcaster) Instrument(delivered, pruned prometheus.Counter) {
	b.delivered = delivered
	b.pruned = pruned
}

// Subscribe registers the connection for the given user's permission stream.
// The authenticated user id must match the requested user id: a session may
// only subscribe to its own stream. On rejection the connection receives an
// error message and is closed without ever touching the indices.
func (b *Broadcaster) Subscribe(conn Conn, authenticatedUserID, requestedUserID, storeID string) {
	if authenticatedUserID == "" {
		_ = conn.Send(errorMessage("authentication required"))
		conn.Close("authentication required")
		return
	}
	if requestedUserID != authenticatedUserID {
		b.logger.Warn("cross-user subscription rejected",
			slog.String("session_id", conn.ID()),
			slog.String("authenticated", authenticatedUserID),
			slog.String("requested", requestedUserID),
		)
		_ = conn.Send(errorMessage("cannot subscribe to another user's permission stream"))
		conn.Close("subscription denied")
		return
	}

	sub := &subscription{conn: conn, userID: requestedUserID, storeID: storeID}
	b.mu.Lock()
	b.bySess[conn.ID()] = sub
	if b.byUser[sub.userID] == nil {
		b.byUser[sub.userID] = make(map[string]*subscription)
	}
	b.byUser[sub.userID][conn.ID()] = sub
	if sub.storeID != "" {
		if b.byStore[sub.storeID] == nil {
			b.byStore[sub.storeID] = make(map[string]*subscription)
		}
		b.byStore[sub.storeID][conn.ID()] = sub
	}
	b.mu.Unlock()

	msg := newMessage(KindSubscribeConfirmed)
	msg.UserIDs = []string{requestedUserID}
	if err := conn.Send(msg); err != nil {
		b.Unsubscribe(conn.ID())
	}
}

// Unsubscribe removes the session from all indices. Idempotent; a
// confirmation is sent when the channel is still open.
func (b *Broadcaster) Unsubscribe(sessionID string) {
	b.mu.Lock()
	sub, ok := b.bySess[sessionID]
	if ok {
		delete(b.bySess, sessionID)
		b.removeFromIndexLocked(b.byUser, sub.userID, sessionID)
		if sub.storeID != "" {
			b.removeFromIndexLocked(b.byStore, sub.storeID, sessionID)
		}
	}
	b.mu.Unlock()

	if ok {
		_ = sub.conn.Send(newMessage(KindUnsubscribeConfirmed))
	}
}

// SessionCount reports the number of live subscriptions for a user.
func (b *Broadcaster) SessionCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byUser[userID])
}

// UserPermissionsUpdated notifies the users' sessions that their effective
// permissions changed.
func (b *Broadcaster) UserPermissionsUpdated(userIDs []string, payload any) {
	b.fanOut(KindUserPermissionsUpdated, userIDs, payload)
}

// UserRoleChanged notifies the users' sessions of a role assignment change.
func (b *Broadcaster) UserRoleChanged(userIDs []string, payload any) {
	b.fanOut(KindUserRoleChanged, userIDs, payload)
}

// RolePermissionsUpdated notifies the users' sessions that a role's
// capability grants changed.
func (b *Broadcaster) RolePermissionsUpdated(userIDs []string, payload any) {
	b.fanOut(KindRolePermissionsUpdated, userIDs, payload)
}

// SecurityRoleUpdated notifies the users' sessions that a role definition
// changed.
func (b *Broadcaster) SecurityRoleUpdated(userIDs []string, payload any) {
	b.fanOut(KindSecurityRoleUpdated, userIDs, payload)
}

// fanOut delivers the payload to every live session of every target user.
// All deliveries are attempted regardless of individual failures; dead
// sessions are pruned as a side effect.
func (b *Broadcaster) fanOut(kind MessageKind, userIDs []string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("marshal broadcast payload",
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		return
	}
	msg := newMessage(kind)
	msg.UserIDs = userIDs
	msg.Payload = raw

	targets := b.collect(userIDs)
	var dead []string
	for _, sub := range targets {
		if err := sub.conn.Send(msg); err != nil {
			b.logger.Warn("broadcast delivery failed, pruning session",
				slog.String("session_id", sub.conn.ID()),
				slog.String("user_id", sub.userID),
				slog.Any("error", err),
			)
			dead = append(dead, sub.conn.ID())
			continue
		}
		if b.delivered != nil {
			b.delivered.Inc()
		}
	}
	for _, id := range dead {
		b.prune(id)
	}
}

func (b *Broadcaster) collect(userIDs []string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var subs []*subscription
	for _, userID := range userIDs {
		for _, sub := range b.byUser[userID] {
			subs = append(subs, sub)
		}
	}
	return subs
}

// prune removes a dead session without sending a confirmation.
func (b *Broadcaster) prune(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.bySess[sessionID]
	if !ok {
		return
	}
	delete(b.bySess, sessionID)
	b.removeFromIndexLocked(b.byUser, sub.userID, sessionID)
	if sub.storeID != "" {
		b.removeFromIndexLocked(b.byStore, sub.storeID, sessionID)
	}
	if b.pruned != nil {
		b.pruned.Inc()
	}
}

func (b *Broadcaster) removeFromIndexLocked(index map[string]map[string]*subscription, key, sessionID string) {
	if m, ok := index[key]; ok {
		delete(m, sessionID)
		if len(m) == 0 {
			delete(index, key)
		}
	}
}
