// Package gate enforces plan-tier feature gating and resource quotas. Both
// checks are pure decision functions run before the permission engine, so a
// request that would exceed a quota never reaches the audit-heavy path.
package gate

import (
	"log/slog"

	"github.com/storewatch/storewatch/internal/tenant"
)

// Feature names the gated capabilities.
type Feature string

const (
	FeatureAIDetection       Feature = "ai_detection"
	FeatureFacialRecognition Feature = "facial_recognition"
	FeatureBehaviorAnalysis  Feature = "behavior_analysis"
	FeatureAdvancedAnalytics Feature = "advanced_analytics"
	FeatureMultiStoreView    Feature = "multi_store_view"
	FeatureAPIAccess         Feature = "api_access"
	FeatureCustomRoles       Feature = "custom_roles"
	FeatureAuditExport       Feature = "audit_export"
)

// minimumTier maps each feature to the lowest plan that unlocks it, used to
// tell a denied caller what upgrade would help.
var minimumTier = map[Feature]tenant.PlanTier{
	FeatureAIDetection:       tenant.PlanPremium,
	FeatureFacialRecognition: tenant.PlanEnterprise,
	FeatureBehaviorAnalysis:  tenant.PlanPremium,
	FeatureAdvancedAnalytics: tenant.PlanPremium,
	FeatureMultiStoreView:    tenant.PlanPremium,
	FeatureAPIAccess:         tenant.PlanBasic,
	FeatureCustomRoles:       tenant.PlanEnterprise,
	FeatureAuditExport:       tenant.PlanEnterprise,
}

// FeatureDecision is the outcome of a feature gate check.
type FeatureDecision struct {
	Allowed      bool
	Feature      Feature
	RequiredTier tenant.PlanTier
}

// FeatureGate decides feature availability from the resolved tenant context.
type FeatureGate struct {
	logger *slog.Logger
}

// NewFeatureGate constructs a FeatureGate.
func NewFeatureGate(logger *slog.Logger) *FeatureGate {
	return &FeatureGate{logger: logger}
}

// RequireFeature checks the tenant's feature flags. Unknown features are
// denied with the enterprise tier as the required plan.
func (g *FeatureGate) RequireFeature(tc *tenant.Context, feature Feature) FeatureDecision {
	decision := FeatureDecision{Feature: feature, RequiredTier: tenant.PlanEnterprise}
	if tier, ok := minimumTier[feature]; ok {
		decision.RequiredTier = tier
	}
	decision.Allowed = featureEnabled(tc.Features, feature)
	if !decision.Allowed {
		g.logger.Info("feature denied",
			slog.String("tenant_id", tc.ID),
			slog.String("feature", string(feature)),
			slog.String("required_tier", decision.RequiredTier.String()),
		)
	}
	return decision
}

func featureEnabled(f tenant.Features, feature Feature) bool {
	switch feature {
	case FeatureAIDetection:
		return f.AIDetection
	case FeatureFacialRecognition:
		return f.FacialRecognition
	case FeatureBehaviorAnalysis:
		return f.BehaviorAnalysis
	case FeatureAdvancedAnalytics:
		return f.AdvancedAnalytics
	case FeatureMultiStoreView:
		return f.MultiStoreView
	case FeatureAPIAccess:
		return f.APIAccess
	case FeatureCustomRoles:
		return f.CustomRoles
	case FeatureAuditExport:
		return f.AuditExport
	default:
		return false
	}
}
