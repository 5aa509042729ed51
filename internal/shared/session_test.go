package shared

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, time.Hour), mr
}

func TestIssueAndResolve(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()

	id, err := sm.Issue(ctx, Principal{
		UserID:         "u1",
		TenantID:       "t1",
		DefaultStoreID: "s1",
		RoleIDs:        []string{"r1", "r2"},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	p, err := sm.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.UserID != "u1" || p.TenantID != "t1" || p.DefaultStoreID != "s1" {
		t.Fatalf("principal mismatch: %+v", p)
	}
	if p.SessionID != id {
		t.Fatalf("session id not filled: %q", p.SessionID)
	}
	if len(p.RoleIDs) != 2 {
		t.Fatalf("role ids = %v", p.RoleIDs)
	}
}

func TestResolveExpiredSession(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	id, err := sm.Issue(ctx, Principal{UserID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	if _, err := sm.Resolve(ctx, id); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestResolveEmptySession(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	if _, err := sm.Resolve(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()

	id, err := sm.Issue(ctx, Principal{UserID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := sm.Revoke(ctx, id); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := sm.Resolve(ctx, id); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected revoked session to resolve as expired, got %v", err)
	}
	if err := sm.Revoke(ctx, "unknown"); err != nil {
		t.Fatalf("revoking unknown id must not fail: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc123":  "abc123",
		"bearer abc123":  "abc123",
		"Basic abc123":   "",
		"Bearer":         "",
		"":               "",
		"Bearer  spaced": "spaced",
	}
	for header, want := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := BearerToken(r); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
