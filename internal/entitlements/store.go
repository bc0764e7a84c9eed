package entitlements

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/beautynano/beautynano-backend/pkg/db"
	"github.com/beautynano/beautynano-backend/pkg/db/models"
	"github.com/beautynano/beautynano-backend/pkg/logger"
	"github.com/beautynano/beautynano-backend/pkg/metrics"
)

// Store is the single authoritative owner of entitlement state. Records are
// created lazily and never deleted; every mutation goes through a named
// operation holding the per-user lock, so the interactive path, the webhook
// handler, and the renewal sweep never interleave on the same record.
//
// In-memory state is authoritative for the process lifetime. Writes are
// mirrored to the repository best-effort; a failed write is logged and
// counted, never surfaced to the caller.
type Store struct {
	mu      sync.Mutex
	users   map[int64]*userEntry
	applied map[string]struct{}

	repo      Repository
	logg      *logger.Logger
	metrics   *metrics.EntitlementMetrics
	freeLimit int
	now       func() time.Time
}

type userEntry struct {
	mu  sync.Mutex
	rec Record
}

// StoreParams groups dependencies for the entitlement store.
type StoreParams struct {
	Repo      Repository
	Logger    *logger.Logger
	Metrics   *metrics.EntitlementMetrics
	FreeLimit int
	Now       func() time.Time
}

// NewStore builds an entitlement store. Repo may be nil, which disables
// persistence; Metrics may be nil.
func NewStore(params StoreParams) (*Store, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.FreeLimit <= 0 {
		return nil, errors.New("free limit must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		users:     make(map[int64]*userEntry),
		applied:   make(map[string]struct{}),
		repo:      params.Repo,
		logg:      params.Logger,
		metrics:   params.Metrics,
		freeLimit: params.FreeLimit,
		now:       now,
	}, nil
}

// Warm seeds the in-memory state from the repository. Call once before
// serving; not safe to run concurrently with mutations.
func (s *Store) Warm(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	records, err := s.repo.ListRecords(ctx)
	if err != nil {
		return err
	}
	ids, err := s.repo.ListTransactionIDs(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range records {
		s.users[m.UserID] = &userEntry{rec: fromModel(m)}
	}
	for _, id := range ids {
		s.applied[id] = struct{}{}
	}
	return nil
}

// FreeLimit returns the configured monthly free-action limit.
func (s *Store) FreeLimit() int {
	return s.freeLimit
}

// GetOrCreate returns a copy of the user's record after applying the monthly
// rollover. The record itself stays owned by the store.
func (s *Store) GetOrCreate(ctx context.Context, userID int64) Record {
	e := s.entryFor(userID)
	e.mu.Lock()
	changed := s.rollover(&e.rec)
	snap := e.rec
	e.mu.Unlock()

	if changed {
		s.persist(ctx, snap)
	}
	return snap
}

// Grant extends premium additively: the new window starts at the later of now
// and the current expiry, so stacking never shortens an existing grant.
func (s *Store) Grant(ctx context.Context, userID int64, duration time.Duration, source string) time.Time {
	e := s.entryFor(userID)
	e.mu.Lock()
	s.extend(&e.rec, duration)
	snap := e.rec
	e.mu.Unlock()

	s.metrics.IncGrant(source)
	s.persist(ctx, snap)
	return snap.PremiumUntil
}

// Revoke clears premium immediately.
func (s *Store) Revoke(ctx context.Context, userID int64) {
	e := s.entryFor(userID)
	e.mu.Lock()
	e.rec.PremiumUntil = time.Time{}
	snap := e.rec
	e.mu.Unlock()

	s.persist(ctx, snap)
}

// ConsumeFree spends one free action if any remain this month. The rollover
// check and the compare-and-increment happen under the same lock.
func (s *Store) ConsumeFree(ctx context.Context, userID int64) bool {
	e := s.entryFor(userID)
	e.mu.Lock()
	s.rollover(&e.rec)
	ok := e.rec.FreeCount < s.freeLimit
	if ok {
		e.rec.FreeCount++
	}
	snap := e.rec
	e.mu.Unlock()

	if ok {
		s.persist(ctx, snap)
	}
	return ok
}

// ResetFree zeroes the counter without touching the month marker.
func (s *Store) ResetFree(ctx context.Context, userID int64) {
	e := s.entryFor(userID)
	e.mu.Lock()
	e.rec.FreeCount = 0
	snap := e.rec
	e.mu.Unlock()

	s.persist(ctx, snap)
}

// AttachSavedMethod stores a reusable charge handle for proactive renewals.
func (s *Store) AttachSavedMethod(ctx context.Context, userID int64, handle string) {
	e := s.entryFor(userID)
	e.mu.Lock()
	e.rec.SavedMethodHandle = handle
	snap := e.rec
	e.mu.Unlock()

	s.persist(ctx, snap)
}

// DetachSavedMethod removes the stored handle; future sweeps skip the user.
func (s *Store) DetachSavedMethod(ctx context.Context, userID int64) {
	e := s.entryFor(userID)
	e.mu.Lock()
	e.rec.SavedMethodHandle = ""
	snap := e.rec
	e.mu.Unlock()

	s.persist(ctx, snap)
}

// AttachPlatformSubscription records the platform-managed recurring reference.
func (s *Store) AttachPlatformSubscription(ctx context.Context, userID int64, ref string) {
	e := s.entryFor(userID)
	e.mu.Lock()
	e.rec.PlatformSubscriptionRef = ref
	snap := e.rec
	e.mu.Unlock()

	s.persist(ctx, snap)
}

// SetAutorenewSuspended toggles the platform-rail autorenew pause.
func (s *Store) SetAutorenewSuspended(ctx context.Context, userID int64, suspended bool) {
	e := s.entryFor(userID)
	e.mu.Lock()
	e.rec.AutorenewSuspended = suspended
	snap := e.rec
	e.mu.Unlock()

	s.persist(ctx, snap)
}

// ClaimTrial grants the one-time trial. The trial flag transitions false to
// true exactly once per user; the check and the grant share one lock hold.
func (s *Store) ClaimTrial(ctx context.Context, userID int64, duration time.Duration) (time.Time, bool) {
	e := s.entryFor(userID)
	e.mu.Lock()
	if e.rec.TrialUsed {
		e.mu.Unlock()
		return time.Time{}, false
	}
	e.rec.TrialUsed = true
	s.extend(&e.rec, duration)
	snap := e.rec
	e.mu.Unlock()

	s.metrics.IncGrant("trial")
	s.persist(ctx, snap)
	return snap.PremiumUntil, true
}

// Transaction describes a confirmed payment to apply exactly once.
type Transaction struct {
	ExternalID              string
	Rail                    string
	UserID                  int64
	AmountMinor             int64
	Currency                string
	Duration                time.Duration
	ExpiresAt               time.Time // authoritative expiry when non-zero
	SavedMethodHandle       string
	PlatformSubscriptionRef string
}

// ApplyTransaction grants premium for a confirmed payment, deduplicated by
// the external transaction id. The second delivery of the same id returns
// applied=false and leaves the record untouched.
func (s *Store) ApplyTransaction(ctx context.Context, txn Transaction) (time.Time, bool) {
	s.mu.Lock()
	if _, dup := s.applied[txn.ExternalID]; dup {
		s.mu.Unlock()
		return time.Time{}, false
	}
	s.applied[txn.ExternalID] = struct{}{}
	s.mu.Unlock()

	e := s.entryFor(txn.UserID)
	e.mu.Lock()
	if !txn.ExpiresAt.IsZero() {
		// Platform-reported expiry wins, but never shortens the window.
		if txn.ExpiresAt.After(e.rec.PremiumUntil) {
			e.rec.PremiumUntil = txn.ExpiresAt
		}
	} else {
		s.extend(&e.rec, txn.Duration)
	}
	if txn.SavedMethodHandle != "" {
		e.rec.SavedMethodHandle = txn.SavedMethodHandle
	}
	if txn.PlatformSubscriptionRef != "" {
		e.rec.PlatformSubscriptionRef = txn.PlatformSubscriptionRef
	}
	snap := e.rec
	e.mu.Unlock()

	s.metrics.IncGrant(txn.Rail)
	s.persist(ctx, snap)
	s.persistEvent(ctx, txn, snap.PremiumUntil)
	return snap.PremiumUntil, true
}

// RenewalCandidates snapshots every record with a saved method whose premium
// window is still open but ends within the given window. Computed once per
// sweep so a record renewed mid-sweep is not charged twice in the same pass.
func (s *Store) RenewalCandidates(window time.Duration) []Record {
	now := s.now()
	cutoff := now.Add(window)

	s.mu.Lock()
	entries := make([]*userEntry, 0, len(s.users))
	for _, e := range s.users {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	var out []Record
	for _, e := range entries {
		e.mu.Lock()
		rec := e.rec
		e.mu.Unlock()
		if rec.SavedMethodHandle == "" {
			continue
		}
		if !rec.PremiumUntil.After(now) {
			continue
		}
		if rec.PremiumUntil.After(cutoff) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *Store) entryFor(userID int64) *userEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[userID]
	if !ok {
		e = &userEntry{rec: Record{UserID: userID, FreeMonth: int(s.now().Month())}}
		s.users[userID] = e
	}
	return e
}

// rollover resets the free counter when the stored month marker no longer
// matches the current month. Callers hold the entry lock.
func (s *Store) rollover(rec *Record) bool {
	month := int(s.now().Month())
	if rec.FreeMonth == month {
		return false
	}
	rec.FreeMonth = month
	rec.FreeCount = 0
	return true
}

func (s *Store) extend(rec *Record, duration time.Duration) {
	base := s.now()
	if rec.PremiumUntil.After(base) {
		base = rec.PremiumUntil
	}
	rec.PremiumUntil = base.Add(duration)
}

func (s *Store) persist(ctx context.Context, rec Record) {
	if s.repo == nil {
		return
	}
	m := toModel(rec)
	if err := s.repo.UpsertRecord(ctx, &m); err != nil {
		s.metrics.IncPersistError()
		s.logg.Error(s.logg.WithUserID(ctx, rec.UserID), "entitlements.persist.failed", err)
	}
}

func (s *Store) persistEvent(ctx context.Context, txn Transaction, grantedUntil time.Time) {
	if s.repo == nil {
		return
	}
	event := models.PaymentEvent{
		UserID:                txn.UserID,
		Rail:                  txn.Rail,
		ExternalTransactionID: txn.ExternalID,
		AmountMinor:           txn.AmountMinor,
		Currency:              txn.Currency,
		GrantedUntil:          grantedUntil,
	}
	if err := s.repo.InsertPaymentEvent(ctx, &event); err != nil {
		// The unique column on external_transaction_id also backs dedup
		// across restarts; hitting it here is a replay, not a failure.
		if db.IsUniqueViolation(err, "") {
			s.logg.Warn(s.logg.WithUserID(ctx, txn.UserID), "entitlements.persist_event.duplicate")
			return
		}
		s.metrics.IncPersistError()
		s.logg.Error(s.logg.WithUserID(ctx, txn.UserID), "entitlements.persist_event.failed", err)
	}
}

func toModel(rec Record) models.EntitlementRecord {
	m := models.EntitlementRecord{
		UserID:             rec.UserID,
		FreeCount:          rec.FreeCount,
		FreeMonth:          rec.FreeMonth,
		TrialUsed:          rec.TrialUsed,
		AutorenewSuspended: rec.AutorenewSuspended,
	}
	if !rec.PremiumUntil.IsZero() {
		until := rec.PremiumUntil
		m.PremiumUntil = &until
	}
	if rec.SavedMethodHandle != "" {
		handle := rec.SavedMethodHandle
		m.SavedMethodHandle = &handle
	}
	if rec.PlatformSubscriptionRef != "" {
		ref := rec.PlatformSubscriptionRef
		m.PlatformSubscriptionRef = &ref
	}
	return m
}

func fromModel(m models.EntitlementRecord) Record {
	rec := Record{
		UserID:             m.UserID,
		FreeCount:          m.FreeCount,
		FreeMonth:          m.FreeMonth,
		TrialUsed:          m.TrialUsed,
		AutorenewSuspended: m.AutorenewSuspended,
	}
	if m.PremiumUntil != nil {
		rec.PremiumUntil = *m.PremiumUntil
	}
	if m.SavedMethodHandle != nil {
		rec.SavedMethodHandle = *m.SavedMethodHandle
	}
	if m.PlatformSubscriptionRef != nil {
		rec.PlatformSubscriptionRef = *m.PlatformSubscriptionRef
	}
	return rec
}
