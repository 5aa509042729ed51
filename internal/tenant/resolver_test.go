package tenant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/storewatch/storewatch/internal/shared"
)

type stubDirectory struct {
	tenants map[string]*Context
	stores  map[string]*StoreContext

	tenantErr   error
	storeErr    error
	tenantCalls int
	storeCalls  int
}

func (d *stubDirectory) ResolveTenant(ctx context.Context, identifier string) (*Context, error) {
	d.tenantCalls++
	if d.tenantErr != nil {
		return nil, d.tenantErr
	}
	tc, ok := d.tenants[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	return tc, nil
}

func (d *stubDirectory) ResolveStore(ctx context.Context, storeID string) (*StoreContext, error) {
	d.storeCalls++
	if d.storeErr != nil {
		return nil, d.storeErr
	}
	sc, ok := d.stores[storeID]
	if !ok {
		return nil, ErrNotFound
	}
	return sc, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeTenant(id, slug string) *Context {
	return &Context{ID: id, Slug: slug, Plan: PlanPremium, Active: true, ResolvedAt: time.Now()}
}

func newTestResolver(dir *stubDirectory) *Resolver {
	cache := NewContextCache(time.Minute, time.Minute, testLogger())
	return NewResolver(ModeMulti, "storewatch.io", dir, cache, testLogger())
}

func TestCandidatePriority(t *testing.T) {
	c := Candidates{Subdomain: "sub", Header: "head", Query: "query", PrincipalTenant: "principal"}
	if c.First() != "sub" {
		t.Fatalf("subdomain must win, got %q", c.First())
	}
	c.Subdomain = ""
	if c.First() != "head" {
		t.Fatalf("header next, got %q", c.First())
	}
	c.Header = ""
	if c.First() != "query" {
		t.Fatalf("query next, got %q", c.First())
	}
	c.Query = ""
	if c.First() != "principal" {
		t.Fatalf("principal last, got %q", c.First())
	}
}

func TestCandidatesFromRequest(t *testing.T) {
	rs := newTestResolver(&stubDirectory{})

	r := httptest.NewRequest("GET", "http://acme.storewatch.io:8080/api/v1/permissions/check?tenant=querytenant", nil)
	r.Header.Set("X-Tenant-ID", "headertenant")
	r = r.WithContext(shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: "u1", TenantID: "ptenant"}))

	cand := rs.CandidatesFromRequest(r)
	if cand.Subdomain != "acme" {
		t.Fatalf("subdomain = %q", cand.Subdomain)
	}
	if cand.Header != "headertenant" || cand.Query != "querytenant" || cand.PrincipalTenant != "ptenant" {
		t.Fatalf("unexpected candidates %+v", cand)
	}
}

func TestSubdomainToken(t *testing.T) {
	rs := newTestResolver(&stubDirectory{})
	cases := map[string]string{
		"acme.storewatch.io":      "acme",
		"acme.storewatch.io:8443": "acme",
		"www.storewatch.io":       "",
		"api.storewatch.io":       "",
		"a.b.storewatch.io":       "",
		"storewatch.io":           "",
		"other.example.com":       "",
	}
	for host, want := range cases {
		if got := rs.subdomainToken(host); got != want {
			t.Fatalf("subdomainToken(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestResolveTenantRequired(t *testing.T) {
	rs := newTestResolver(&stubDirectory{})
	_, rerr := rs.ResolveTenant(context.Background(), Candidates{})
	if rerr == nil || rerr.Code != CodeTenantRequired {
		t.Fatalf("expected TENANT_REQUIRED, got %+v", rerr)
	}
}

func TestResolveTenantNotFound(t *testing.T) {
	rs := newTestResolver(&stubDirectory{tenants: map[string]*Context{}})
	_, rerr := rs.ResolveTenant(context.Background(), Candidates{Query: "ghost"})
	if rerr == nil || rerr.Code != CodeTenantNotFound {
		t.Fatalf("expected TENANT_NOT_FOUND, got %+v", rerr)
	}
}

func TestResolveTenantSuspended(t *testing.T) {
	tc := activeTenant("t1", "acme")
	tc.Active = false
	rs := newTestResolver(&stubDirectory{tenants: map[string]*Context{"acme": tc}})

	_, rerr := rs.ResolveTenant(context.Background(), Candidates{Subdomain: "acme"})
	if rerr == nil || rerr.Code != CodeTenantSuspended {
		t.Fatalf("expected TENANT_SUSPENDED, got %+v", rerr)
	}
}

func TestResolveTenantDirectoryFailure(t *testing.T) {
	rs := newTestResolver(&stubDirectory{tenantErr: errors.New("connection refused")})
	_, rerr := rs.ResolveTenant(context.Background(), Candidates{Query: "acme"})
	if rerr == nil || rerr.Code != CodeTenantResolutionError {
		t.Fatalf("expected TENANT_RESOLUTION_ERROR, got %+v", rerr)
	}
}

func TestResolveTenantUsesCache(t *testing.T) {
	dir := &stubDirectory{tenants: map[string]*Context{"acme": activeTenant("t1", "acme")}}
	rs := newTestResolver(dir)
	ctx := context.Background()

	if _, rerr := rs.ResolveTenant(ctx, Candidates{Subdomain: "acme"}); rerr != nil {
		t.Fatalf("first resolve: %+v", rerr)
	}
	// Second resolve by tenant id must hit the cache: PutTenant indexes both.
	if _, rerr := rs.ResolveTenant(ctx, Candidates{Header: "t1"}); rerr != nil {
		t.Fatalf("second resolve: %+v", rerr)
	}
	if dir.tenantCalls != 1 {
		t.Fatalf("expected 1 directory call, got %d", dir.tenantCalls)
	}
}

func TestSingleTenantModeSkipsResolution(t *testing.T) {
	dir := &stubDirectory{}
	cache := NewContextCache(time.Minute, time.Minute, testLogger())
	rs := NewResolver(ModeSingle, "", dir, cache, testLogger())

	tc, rerr := rs.ResolveTenant(context.Background(), Candidates{})
	if rerr != nil {
		t.Fatalf("single mode must never fail resolution: %+v", rerr)
	}
	if tc.ID != "default" || tc.Plan != PlanEnterprise || !tc.Features.CustomRoles {
		t.Fatalf("unexpected single-tenant context %+v", tc)
	}
	if dir.tenantCalls != 0 {
		t.Fatal("single mode must not consult the directory")
	}
}

func TestResolveStoreIDRequired(t *testing.T) {
	rs := newTestResolver(&stubDirectory{})
	_, rerr := rs.ResolveStore(context.Background(), activeTenant("t1", "acme"), StoreCandidates{})
	if rerr == nil || rerr.Code != CodeStoreIDRequired {
		t.Fatalf("expected STORE_ID_REQUIRED, got %+v", rerr)
	}
}

func TestResolveStoreNotFound(t *testing.T) {
	rs := newTestResolver(&stubDirectory{stores: map[string]*StoreContext{}})
	_, rerr := rs.ResolveStore(context.Background(), activeTenant("t1", "acme"), StoreCandidates{Route: "s1"})
	if rerr == nil || rerr.Code != CodeStoreNotFound {
		t.Fatalf("expected STORE_NOT_FOUND, got %+v", rerr)
	}
}

func TestResolveStoreCrossTenantDenied(t *testing.T) {
	// The store exists but belongs to another tenant, and it is also
	// inactive: the access check must fire first so cross-tenant callers
	// learn nothing about the store's state.
	dir := &stubDirectory{stores: map[string]*StoreContext{
		"s1": {ID: "s1", TenantID: "other", Active: false},
	}}
	rs := newTestResolver(dir)

	_, rerr := rs.ResolveStore(context.Background(), activeTenant("t1", "acme"), StoreCandidates{Route: "s1"})
	if rerr == nil || rerr.Code != CodeStoreAccessDenied {
		t.Fatalf("expected STORE_ACCESS_DENIED, got %+v", rerr)
	}
}

func TestResolveStoreInactive(t *testing.T) {
	dir := &stubDirectory{stores: map[string]*StoreContext{
		"s1": {ID: "s1", TenantID: "t1", Active: false},
	}}
	rs := newTestResolver(dir)

	_, rerr := rs.ResolveStore(context.Background(), activeTenant("t1", "acme"), StoreCandidates{Route: "s1"})
	if rerr == nil || rerr.Code != CodeStoreInactive {
		t.Fatalf("expected STORE_INACTIVE, got %+v", rerr)
	}
}

func TestResolveStoreSuccessAndCache(t *testing.T) {
	dir := &stubDirectory{stores: map[string]*StoreContext{
		"s1": {ID: "s1", TenantID: "t1", Name: "Downtown", Active: true, Managers: []string{"u9"}},
	}}
	rs := newTestResolver(dir)
	tc := activeTenant("t1", "acme")
	ctx := context.Background()

	sc, rerr := rs.ResolveStore(ctx, tc, StoreCandidates{Query: "s1"})
	if rerr != nil {
		t.Fatalf("resolve store: %+v", rerr)
	}
	if !sc.ManagedBy("u9") || sc.ManagedBy("u1") {
		t.Fatal("manager set wrong")
	}

	if _, rerr := rs.ResolveStore(ctx, tc, StoreCandidates{Query: "s1"}); rerr != nil {
		t.Fatalf("second resolve: %+v", rerr)
	}
	if dir.storeCalls != 1 {
		t.Fatalf("expected 1 directory call, got %d", dir.storeCalls)
	}
}

func TestStoreCandidatePriority(t *testing.T) {
	c := StoreCandidates{Route: "r", Query: "q", Body: "b", PrincipalDefault: "p"}
	if c.First() != "r" {
		t.Fatalf("route must win, got %q", c.First())
	}
	c.Route = ""
	if c.First() != "q" {
		t.Fatalf("query next, got %q", c.First())
	}
	c.Query = ""
	if c.First() != "b" {
		t.Fatalf("body next, got %q", c.First())
	}
	c.Body = ""
	if c.First() != "p" {
		t.Fatalf("principal default last, got %q", c.First())
	}
}
