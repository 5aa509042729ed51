package tenant

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/storewatch/storewatch/internal/shared"
)

// Mode selects between multi-tenant and single-tenant deployments.
type Mode string

const (
	// ModeMulti resolves tenants from request identifiers.
	ModeMulti Mode = "multi"
	// ModeSingle serves one well-known tenant and skips identifier parsing.
	ModeSingle Mode = "single"
)

// Candidates carries the tenant identifier candidates extracted from a
// request, in fixed priority order: subdomain, header, query parameter,
// principal binding.
type Candidates struct {
	Subdomain       string
	Header          string
	Query           string
	PrincipalTenant string
}

// First returns the highest-priority non-empty candidate.
func (c Candidates) First() string {
	for _, v := range []string{c.Subdomain, c.Header, c.Query, c.PrincipalTenant} {
		if v != "" {
			return v
		}
	}
	return ""
}

// StoreCandidates carries the store identifier candidates from a request,
// in priority order: route parameter, query, body, principal default.
type StoreCandidates struct {
	Route            string
	Query            string
	Body             string
	PrincipalDefault string
}

// First returns the highest-priority non-empty candidate.
func (c StoreCandidates) First() string {
	for _, v := range []string{c.Route, c.Query, c.Body, c.PrincipalDefault} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Resolver resolves tenant and store contexts for requests, consulting the
// ContextCache before the directory.
type Resolver struct {
	mode       Mode
	baseDomain string
	directory  Directory
	cache      *ContextCache
	logger     *slog.Logger
	flight     singleflight.Group
}

// NewResolver constructs a Resolver.
func NewResolver(mode Mode, baseDomain string, directory Directory, cache *ContextCache, logger *slog.Logger) *Resolver {
	return &Resolver{
		mode:       mode,
		baseDomain: strings.TrimPrefix(baseDomain, "."),
		directory:  directory,
		cache:      cache,
		logger:     logger,
	}
}

// CandidatesFromRequest extracts tenant identifier candidates from the
// request. In single-tenant mode no parsing happens and the zero value is
// returned.
func (rs *Resolver) CandidatesFromRequest(r *http.Request) Candidates {
	if rs.mode == ModeSingle {
		return Candidates{}
	}
	cand := Candidates{
		Header: strings.TrimSpace(r.Header.Get("X-Tenant-ID")),
		Query:  strings.TrimSpace(r.URL.Query().Get("tenant")),
	}
	cand.Subdomain = rs.subdomainToken(r.Host)
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		cand.PrincipalTenant = p.TenantID
	}
	return cand
}

// ResolveTenant resolves exactly one tenant context from the candidates, or
// fails with a typed resolution error.
func (rs *Resolver) ResolveTenant(ctx context.Context, cand Candidates) (*Context, *ResolutionError) {
	if rs.mode == ModeSingle {
		return SingleTenantContext(), nil
	}

	identifier := cand.First()
	if identifier == "" {
		return nil, errTenantRequired()
	}

	if tc, ok := rs.cache.GetTenant(identifier); ok {
		return rs.validateTenant(identifier, tc)
	}

	v, err, _ := rs.flight.Do(tenantKey(identifier), func() (any, error) {
		tc, err := rs.directory.ResolveTenant(ctx, identifier)
		if err != nil {
			return nil, err
		}
		rs.cache.PutTenant(identifier, tc)
		return tc, nil
	})
	if err != nil {
		if err == ErrNotFound {
			return nil, errTenantNotFound(identifier)
		}
		rs.logger.Error("resolve tenant", slog.String("identifier", identifier), slog.Any("error", err))
		return nil, errTenantResolution()
	}
	return rs.validateTenant(identifier, v.(*Context))
}

func (rs *Resolver) validateTenant(identifier string, tc *Context) (*Context, *ResolutionError) {
	if !tc.Active {
		return nil, errTenantSuspended(identifier)
	}
	rs.logger.Info("tenant resolved",
		slog.String("tenant_id", tc.ID),
		slog.String("tenant_slug", tc.Slug),
		slog.String("plan", tc.Plan.String()),
	)
	return tc, nil
}

// ResolveStore resolves a store under an already-resolved tenant context.
// A store owned by a different tenant always fails with STORE_ACCESS_DENIED,
// before the inactive check: cross-tenant access must never leak whether the
// store would otherwise be usable.
func (rs *Resolver) ResolveStore(ctx context.Context, tc *Context, cand StoreCandidates) (*StoreContext, *ResolutionError) {
	storeID := cand.First()
	if storeID == "" {
		return nil, errStoreIDRequired()
	}

	sc, ok := rs.cache.GetStore(storeID)
	if !ok {
		v, err, _ := rs.flight.Do(storeKey(storeID), func() (any, error) {
			sc, err := rs.directory.ResolveStore(ctx, storeID)
			if err != nil {
				return nil, err
			}
			rs.cache.PutStore(storeID, sc)
			return sc, nil
		})
		if err != nil {
			if err == ErrNotFound {
				return nil, errStoreNotFound(storeID)
			}
			rs.logger.Error("resolve store", slog.String("store_id", storeID), slog.Any("error", err))
			return nil, errStoreResolution()
		}
		sc = v.(*StoreContext)
	}

	if rs.mode != ModeSingle && sc.TenantID != tc.ID {
		return nil, errStoreAccessDenied()
	}
	if !sc.Active {
		return nil, errStoreInactive(storeID)
	}
	rs.logger.Info("store resolved",
		slog.String("tenant_id", tc.ID),
		slog.String("store_id", sc.ID),
	)
	return sc, nil
}

// subdomainToken extracts the tenant token from the request host when it is
// a subdomain of the configured base domain.
func (rs *Resolver) subdomainToken(host string) string {
	if rs.baseDomain == "" {
		return ""
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	suffix := "." + rs.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	token := strings.TrimSuffix(host, suffix)
	if token == "" || strings.Contains(token, ".") || token == "www" || token == "api" {
		return ""
	}
	return token
}
