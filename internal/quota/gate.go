package quota

import (
	"context"
	"errors"
	"time"

	"github.com/beautynano/beautynano-backend/internal/entitlements"
	"github.com/beautynano/beautynano-backend/pkg/metrics"
)

// Decision is the outcome of the quota gate.
type Decision string

const (
	DecisionAllowedPremium Decision = "allowed_premium"
	DecisionAllowedFree    Decision = "allowed_free"
	DecisionDenied         Decision = "denied"
)

// Allowed reports whether the paid action may proceed.
func (d Decision) Allowed() bool {
	return d != DecisionDenied
}

// Status is the read-only projection served to status checks.
type Status struct {
	Premium   bool       `json:"premium"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	FreeLeft  int        `json:"free_left"`
	FreeLimit int        `json:"free_limit"`
}

// Gate is the single predicate consulted before performing the paid action.
// No other component derives entitlement from record fields.
type Gate struct {
	store   *entitlements.Store
	metrics *metrics.EntitlementMetrics
	now     func() time.Time
}

// GateParams groups dependencies for the quota gate.
type GateParams struct {
	Store   *entitlements.Store
	Metrics *metrics.EntitlementMetrics
	Now     func() time.Time
}

// NewGate builds a quota gate. Metrics may be nil.
func NewGate(params GateParams) (*Gate, error) {
	if params.Store == nil {
		return nil, errors.New("entitlement store is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{store: params.Store, metrics: params.Metrics, now: now}, nil
}

// CheckAndConsume decides access for one paid action. Premium users pass
// without touching the counter; everyone else spends a free credit if any
// remain this month.
func (g *Gate) CheckAndConsume(ctx context.Context, userID int64) Decision {
	rec := g.store.GetOrCreate(ctx, userID)
	if rec.IsPremium(g.now()) {
		g.metrics.IncQuotaDecision(string(DecisionAllowedPremium))
		return DecisionAllowedPremium
	}
	if g.store.ConsumeFree(ctx, userID) {
		g.metrics.IncQuotaDecision(string(DecisionAllowedFree))
		return DecisionAllowedFree
	}
	g.metrics.IncQuotaDecision(string(DecisionDenied))
	return DecisionDenied
}

// Describe returns the user's current standing without consuming anything.
func (g *Gate) Describe(ctx context.Context, userID int64) Status {
	rec := g.store.GetOrCreate(ctx, userID)
	status := Status{
		Premium:   rec.IsPremium(g.now()),
		FreeLimit: g.store.FreeLimit(),
	}
	if status.Premium {
		expires := rec.PremiumUntil
		status.ExpiresAt = &expires
	}
	left := g.store.FreeLimit() - rec.FreeCount
	if left < 0 {
		left = 0
	}
	status.FreeLeft = left
	return status
}
