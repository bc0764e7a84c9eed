package promos

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

// Outcome is the user-visible result of a trial or promo operation. These are
// ordinary results, not errors.
type Outcome string

const (
	OutcomeGranted     Outcome = "granted"
	OutcomeAlreadyUsed Outcome = "already_used"
	OutcomeExpired     Outcome = "expired"
	OutcomeExhausted   Outcome = "exhausted"
	OutcomeNotFound    Outcome = "not_found"
)

// Result carries the outcome plus the new expiry on a grant.
type Result struct {
	Outcome      Outcome
	BonusDays    int
	PremiumUntil time.Time
}

type granter interface {
	Grant(ctx context.Context, userID int64, duration time.Duration, source string) time.Time
	ClaimTrial(ctx context.Context, userID int64, duration time.Duration) (time.Time, bool)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the promo/trial issuer.
type ServiceParams struct {
	Repo              Repository
	Store             granter
	TransactionRunner txRunner
	Logger            *logger.Logger
	TrialDuration     time.Duration
	Now               func() time.Time
}

// Service issues one-shot grants: the single-use trial and coded promotions.
type Service struct {
	repo          Repository
	store         granter
	txRunner      txRunner
	logg          *logger.Logger
	trialDuration time.Duration
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "promo repo required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement store required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.TrialDuration <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "trial duration must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:          params.Repo,
		store:         params.Store,
		txRunner:      params.TransactionRunner,
		logg:          params.Logger,
		trialDuration: params.TrialDuration,
		now:           now,
	}, nil
}

// IssueTrial grants the one-time trial, or reports it as already used.
func (s *Service) IssueTrial(ctx context.Context, userID int64) Result {
	until, ok := s.store.ClaimTrial(ctx, userID, s.trialDuration)
	if !ok {
		return Result{Outcome: OutcomeAlreadyUsed}
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID), "promos.trial.granted")
	return Result{Outcome: OutcomeGranted, PremiumUntil: until}
}

// RedeemPromo validates and consumes a promo code, then grants its bonus
// days. The decrement commits only when a use was actually available; the
// grant itself is a total in-process operation, so a committed decrement is
// always paired with a grant.
func (s *Service) RedeemPromo(ctx context.Context, userID int64, code string) (Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}

	promo, err := s.repo.Find(ctx, code)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up promo code")
	}
	if promo == nil {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if !promo.ExpiresAt.After(s.now()) {
		return Result{Outcome: OutcomeExpired}, nil
	}

	consumed := false
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		ok, consumeErr := s.repo.WithTx(tx).ConsumeUse(ctx, code)
		if consumeErr != nil {
			return consumeErr
		}
		consumed = ok
		return nil
	})
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume promo code")
	}
	if !consumed {
		return Result{Outcome: OutcomeExhausted}, nil
	}

	until := s.store.Grant(ctx, userID, time.Duration(promo.BonusDays)*24*time.Hour, "promo")
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, userID), map[string]any{
		"code":       code,
		"bonus_days": promo.BonusDays,
	}), "promos.code.redeemed")

	return Result{Outcome: OutcomeGranted, BonusDays: promo.BonusDays, PremiumUntil: until}, nil
}
