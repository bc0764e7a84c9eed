package entitlements

import "time"

// Record is the per-user entitlement state. A zero PremiumUntil means
// premium was never granted or was revoked.
type Record struct {
	UserID                  int64
	FreeCount               int
	FreeMonth               int
	PremiumUntil            time.Time
	TrialUsed               bool
	SavedMethodHandle       string
	PlatformSubscriptionRef string
	AutorenewSuspended      bool
}

// IsPremium reports whether the record grants access at the given instant.
// This predicate is the only entitlement derivation in the system.
func (r Record) IsPremium(now time.Time) bool {
	return r.PremiumUntil.After(now)
}
