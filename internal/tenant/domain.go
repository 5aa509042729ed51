package tenant

import "time"

// PlanTier orders subscription plans from least to most capable.
type PlanTier int

const (
	// PlanBasic is the entry tier.
	PlanBasic PlanTier = iota
	// PlanPremium unlocks AI features and larger limits.
	PlanPremium
	// PlanEnterprise removes most limits.
	PlanEnterprise
)

// String returns the lowercase plan name used in storage and payloads.
func (p PlanTier) String() string {
	switch p {
	case PlanPremium:
		return "premium"
	case PlanEnterprise:
		return "enterprise"
	default:
		return "basic"
	}
}

// ParsePlanTier maps a stored plan name to its tier. Unknown names fall back
// to the basic tier so a bad row never widens entitlements.
func ParsePlanTier(s string) PlanTier {
	switch s {
	case "premium":
		return PlanPremium
	case "enterprise":
		return PlanEnterprise
	default:
		return PlanBasic
	}
}

// Limits holds the numeric resource ceilings of a plan.
type Limits struct {
	MaxStores          int
	MaxUsersPerStore   int
	MaxCamerasPerStore int
	MaxStorageGB       int
	MaxAlertsPerMonth  int
}

// Features holds the boolean feature flags of a plan.
type Features struct {
	AIDetection       bool
	FacialRecognition bool
	BehaviorAnalysis  bool
	AdvancedAnalytics bool
	MultiStoreView    bool
	APIAccess         bool
	CustomRoles       bool
	AuditExport       bool
}

// Settings holds tenant-wide operational settings.
type Settings struct {
	RetentionDays    int
	AutoArchive      bool
	GuestAccess      bool
	RequireTwoFactor bool
}

// Context is the resolved view of a tenant for one request. It is immutable
// once resolved and rebuilt on every cache miss.
type Context struct {
	ID       string
	Slug     string
	Plan     PlanTier
	Active   bool
	Limits   Limits
	Features Features
	Settings Settings

	ResolvedAt time.Time
}

// StoreContext is the resolved view of a store under a tenant.
type StoreContext struct {
	ID       string
	TenantID string
	Name     string
	Active   bool
	Managers []string

	UserCount   int
	CameraCount int
}

// ManagedBy reports whether the given user id is in the store's manager set.
func (s StoreContext) ManagedBy(userID string) bool {
	for _, id := range s.Managers {
		if id == userID {
			return true
		}
	}
	return false
}

// SingleTenantContext returns the well-known context used when the service
// runs in single-tenant mode: maximal limits, every feature enabled.
func SingleTenantContext() *Context {
	return &Context{
		ID:     "default",
		Slug:   "default",
		Plan:   PlanEnterprise,
		Active: true,
		Limits: Limits{
			MaxStores:          1 << 30,
			MaxUsersPerStore:   1 << 30,
			MaxCamerasPerStore: 1 << 30,
			MaxStorageGB:       1 << 30,
			MaxAlertsPerMonth:  1 << 30,
		},
		Features: Features{
			AIDetection:       true,
			FacialRecognition: true,
			BehaviorAnalysis:  true,
			AdvancedAnalytics: true,
			MultiStoreView:    true,
			APIAccess:         true,
			CustomRoles:       true,
			AuditExport:       true,
		},
		Settings:   Settings{RetentionDays: 365},
		ResolvedAt: time.Now().UTC(),
	}
}
