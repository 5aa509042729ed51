package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/storewatch/storewatch/internal/tenant"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func premiumTenant() *tenant.Context {
	return &tenant.Context{
		ID:     "t1",
		Plan:   tenant.PlanPremium,
		Active: true,
		Limits: tenant.Limits{MaxStores: 3, MaxCamerasPerStore: 16},
		Features: tenant.Features{
			AIDetection:       true,
			BehaviorAnalysis:  true,
			AdvancedAnalytics: true,
			MultiStoreView:    true,
			APIAccess:         true,
		},
	}
}

func TestRequireFeature(t *testing.T) {
	g := NewFeatureGate(testLogger())
	tc := premiumTenant()

	if d := g.RequireFeature(tc, FeatureAIDetection); !d.Allowed {
		t.Fatal("premium plan includes AI detection")
	}
	d := g.RequireFeature(tc, FeatureFacialRecognition)
	if d.Allowed {
		t.Fatal("facial recognition needs enterprise")
	}
	if d.RequiredTier != tenant.PlanEnterprise {
		t.Fatalf("required tier = %v", d.RequiredTier)
	}
	d = g.RequireFeature(tc, FeatureCustomRoles)
	if d.Allowed || d.RequiredTier != tenant.PlanEnterprise {
		t.Fatalf("custom roles decision wrong: %+v", d)
	}
}

func TestRequireFeatureUnknownDenied(t *testing.T) {
	g := NewFeatureGate(testLogger())
	d := g.RequireFeature(premiumTenant(), Feature("time_travel"))
	if d.Allowed {
		t.Fatal("unknown features must be denied")
	}
	if d.RequiredTier != tenant.PlanEnterprise {
		t.Fatalf("unknown features report enterprise, got %v", d.RequiredTier)
	}
}

func newRedisCounter(t *testing.T) (*RedisUsageCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisUsageCounter(client), mr
}

func TestCheckResourceLimit(t *testing.T) {
	counter, _ := newRedisCounter(t)
	q := NewQuotaEnforcer(counter, testLogger())
	tc := premiumTenant()
	ctx := context.Background()

	// No counter yet: zero usage, under the limit of 3.
	d := q.CheckResourceLimit(ctx, tc, ResourceStores)
	if !d.Allowed || d.Usage != 0 || d.Limit != 3 {
		t.Fatalf("unexpected decision %+v", d)
	}

	for i := 0; i < 3; i++ {
		if err := counter.Increment(ctx, tc.ID, ResourceStores, 1); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	d = q.CheckResourceLimit(ctx, tc, ResourceStores)
	if d.Allowed {
		t.Fatal("at the limit the next create must be denied")
	}
	if !d.UpgradeRequired {
		t.Fatal("denial must suggest an upgrade")
	}

	if err := counter.Increment(ctx, tc.ID, ResourceStores, -1); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if d := q.CheckResourceLimit(ctx, tc, ResourceStores); !d.Allowed {
		t.Fatal("freed capacity must admit again")
	}
}

func TestCheckResourceLimitSetOverwrites(t *testing.T) {
	counter, _ := newRedisCounter(t)
	ctx := context.Background()

	if err := counter.Set(ctx, "t1", ResourceCameras, 12); err != nil {
		t.Fatalf("set: %v", err)
	}
	n, err := counter.CurrentUsage(ctx, "t1", ResourceCameras)
	if err != nil || n != 12 {
		t.Fatalf("usage = %d, %v", n, err)
	}
}

type failingCounter struct{}

func (failingCounter) CurrentUsage(ctx context.Context, tenantID string, kind ResourceKind) (int, error) {
	return 0, errors.New("redis down")
}

func TestCheckResourceLimitFailsClosed(t *testing.T) {
	q := NewQuotaEnforcer(failingCounter{}, testLogger())
	d := q.CheckResourceLimit(context.Background(), premiumTenant(), ResourceStores)
	if d.Allowed {
		t.Fatal("usage lookup failure must deny")
	}
}

func TestCheckResourceLimitUnknownKind(t *testing.T) {
	counter, _ := newRedisCounter(t)
	q := NewQuotaEnforcer(counter, testLogger())
	d := q.CheckResourceLimit(context.Background(), premiumTenant(), ResourceKind("widgets"))
	if d.Allowed || d.Limit != 0 {
		t.Fatalf("unknown kinds have a zero limit: %+v", d)
	}
}
