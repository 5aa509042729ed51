package broadcast

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type fakeConn struct {
	id string

	mu       sync.Mutex
	messages []Message
	closed   bool
	reason   string
	sendErr  error
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	c.closed = true
	c.reason = reason
	c.mu.Unlock()
}

func (c *fakeConn) kinds() []MessageKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MessageKind, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Kind)
	}
	return out
}

func newTestBroadcaster() *Broadcaster {
	return NewBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubscribeConfirms(t *testing.T) {
	b := newTestBroadcaster()
	conn := &fakeConn{id: "sess1"}

	b.Subscribe(conn, "u1", "u1", "s1")
	if got := b.SessionCount("u1"); got != 1 {
		t.Fatalf("session count = %d", got)
	}
	kinds := conn.kinds()
	if len(kinds) != 1 || kinds[0] != KindSubscribeConfirmed {
		t.Fatalf("expected subscribe confirmation, got %v", kinds)
	}
}

func TestSubscribeRejectsCrossUser(t *testing.T) {
	b := newTestBroadcaster()
	conn := &fakeConn{id: "sess1"}

	b.Subscribe(conn, "u1", "u2", "")
	if b.SessionCount("u2") != 0 || b.SessionCount("u1") != 0 {
		t.Fatal("rejected subscription must never be indexed")
	}
	kinds := conn.kinds()
	if len(kinds) != 1 || kinds[0] != KindError {
		t.Fatalf("expected error message, got %v", kinds)
	}
	if !conn.closed {
		t.Fatal("rejected connection must be closed")
	}
}

func TestSubscribeRejectsAnonymous(t *testing.T) {
	b := newTestBroadcaster()
	conn := &fakeConn{id: "sess1"}

	b.Subscribe(conn, "", "", "")
	if !conn.closed {
		t.Fatal("anonymous subscription must be closed")
	}
	if len(b.bySess) != 0 {
		t.Fatal("anonymous subscription must never be indexed")
	}
}

func TestFanOutReachesAllUserSessions(t *testing.T) {
	b := newTestBroadcaster()
	first := &fakeConn{id: "sess1"}
	second := &fakeConn{id: "sess2"}
	other := &fakeConn{id: "sess3"}

	b.Subscribe(first, "u1", "u1", "")
	b.Subscribe(second, "u1", "u1", "")
	b.Subscribe(other, "u2", "u2", "")

	b.UserPermissionsUpdated([]string{"u1"}, map[string]string{"change": "role_deleted"})

	for _, conn := range []*fakeConn{first, second} {
		kinds := conn.kinds()
		if len(kinds) != 2 || kinds[1] != KindUserPermissionsUpdated {
			t.Fatalf("session %s kinds = %v", conn.id, kinds)
		}
	}
	if kinds := other.kinds(); len(kinds) != 1 {
		t.Fatalf("unrelated user must not receive the update, got %v", kinds)
	}
}

func TestFanOutPrunesDeadSessions(t *testing.T) {
	b := newTestBroadcaster()
	live := &fakeConn{id: "sess1"}
	dead := &fakeConn{id: "sess2", sendErr: errors.New("broken pipe")}

	b.Subscribe(live, "u1", "u1", "")

	// Register the dead session directly; Subscribe would already fail its
	// confirmation send.
	sub := &subscription{conn: dead, userID: "u1"}
	b.mu.Lock()
	b.bySess["sess2"] = sub
	b.byUser["u1"]["sess2"] = sub
	b.mu.Unlock()

	b.UserRoleChanged([]string{"u1"}, map[string]string{"role_id": "r1"})

	if b.SessionCount("u1") != 1 {
		t.Fatalf("dead session must be pruned, count = %d", b.SessionCount("u1"))
	}
	kinds := live.kinds()
	if len(kinds) != 2 || kinds[1] != KindUserRoleChanged {
		t.Fatalf("live session must still receive the update, got %v", kinds)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := newTestBroadcaster()
	conn := &fakeConn{id: "sess1"}
	b.Subscribe(conn, "u1", "u1", "s1")

	b.Unsubscribe("sess1")
	b.Unsubscribe("sess1")
	b.Unsubscribe("unknown")

	if b.SessionCount("u1") != 0 {
		t.Fatal("unsubscribe must remove the session")
	}
	kinds := conn.kinds()
	if len(kinds) != 2 || kinds[1] != KindUnsubscribeConfirmed {
		t.Fatalf("expected exactly one unsubscribe confirmation, got %v", kinds)
	}
}

func TestRolePermissionsUpdatedPayload(t *testing.T) {
	b := newTestBroadcaster()
	conn := &fakeConn{id: "sess1"}
	b.Subscribe(conn, "u1", "u1", "")

	b.RolePermissionsUpdated([]string{"u1"}, map[string]string{"role_id": "r1"})

	conn.mu.Lock()
	defer conn.mu.Unlock()
	msg := conn.messages[len(conn.messages)-1]
	if msg.Kind != KindRolePermissionsUpdated {
		t.Fatalf("kind = %s", msg.Kind)
	}
	if string(msg.Payload) != `{"role_id":"r1"}` {
		t.Fatalf("payload = %s", msg.Payload)
	}
	if len(msg.UserIDs) != 1 || msg.UserIDs[0] != "u1" {
		t.Fatalf("user ids = %v", msg.UserIDs)
	}
}
