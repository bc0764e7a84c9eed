package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/beautynano/beautynano-backend/internal/entitlements"
	"github.com/beautynano/beautynano-backend/internal/rails"
	"github.com/beautynano/beautynano-backend/pkg/logger"
	"go.uber.org/multierr"
)

const (
	defaultRenewalWindow = 6 * time.Hour
	defaultGrantDuration = 30 * 24 * time.Hour
)

// renewalStore is the slice of the entitlement store the job needs.
type renewalStore interface {
	RenewalCandidates(window time.Duration) []entitlements.Record
	ApplyTransaction(ctx context.Context, txn entitlements.Transaction) (time.Time, bool)
}

// savedMethodCharger is the rail operation used for proactive renewals.
type savedMethodCharger interface {
	Name() string
	ChargeSaved(ctx context.Context, userID int64, amountMinor int64, handle string, periodEnd time.Time) (*rails.ChargeResult, error)
}

// AutorenewJobParams configures the autorenew sweep job.
type AutorenewJobParams struct {
	Logger      *logger.Logger
	Store       renewalStore
	Rail        savedMethodCharger
	Window      time.Duration
	PriceMinor  int64
	Currency    string
	GrantLength time.Duration
}

// NewAutorenewJob builds the job that charges saved methods for premium
// windows about to lapse.
func NewAutorenewJob(params AutorenewJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("entitlement store required")
	}
	if params.Rail == nil {
		return nil, fmt.Errorf("charge rail required")
	}
	if params.PriceMinor <= 0 {
		return nil, fmt.Errorf("renewal price required")
	}
	if params.Currency == "" {
		return nil, fmt.Errorf("renewal currency required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultRenewalWindow
	}
	grantLength := params.GrantLength
	if grantLength <= 0 {
		grantLength = defaultGrantDuration
	}
	return &autorenewJob{
		logg:        params.Logger,
		store:       params.Store,
		rail:        params.Rail,
		window:      window,
		priceMinor:  params.PriceMinor,
		currency:    params.Currency,
		grantLength: grantLength,
	}, nil
}

type autorenewJob struct {
	logg        *logger.Logger
	store       renewalStore
	rail        savedMethodCharger
	window      time.Duration
	priceMinor  int64
	currency    string
	grantLength time.Duration
}

func (j *autorenewJob) Name() string { return "autorenew" }

func (j *autorenewJob) Run(ctx context.Context) error {
	snapshot := j.store.RenewalCandidates(j.window)

	var errs error
	renewed := 0
	suspended := 0
	declined := 0
	for i := range snapshot {
		switch outcome, err := j.renew(ctx, &snapshot[i]); outcome {
		case renewApplied:
			renewed++
		case renewSuspended:
			suspended++
		case renewDeclined:
			declined++
		case renewFailed:
			errs = multierr.Append(errs, err)
		}
	}
	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(snapshot),
		"renewed":    renewed,
		"suspended":  suspended,
		"declined":   declined,
	})
	j.logg.Info(reportCtx, "autorenew loop complete")
	return errs
}

type renewOutcome int

const (
	renewApplied renewOutcome = iota
	renewSuspended
	renewDeclined
	renewFailed
)

func (j *autorenewJob) renew(ctx context.Context, rec *entitlements.Record) (renewOutcome, error) {
	logCtx := j.logg.WithUserID(ctx, rec.UserID)
	if rec.AutorenewSuspended {
		return renewSuspended, nil
	}
	result, err := j.rail.ChargeSaved(ctx, rec.UserID, j.priceMinor, rec.SavedMethodHandle, rec.PremiumUntil)
	if err != nil {
		return renewFailed, fmt.Errorf("charge saved method for user %d: %w", rec.UserID, err)
	}
	if !result.Succeeded {
		j.logg.Warn(logCtx, "renewal charge declined; leaving record untouched")
		return renewDeclined, nil
	}
	until, applied := j.store.ApplyTransaction(ctx, entitlements.Transaction{
		ExternalID:        result.ExternalID,
		Rail:              j.rail.Name(),
		UserID:            rec.UserID,
		AmountMinor:       j.priceMinor,
		Currency:          j.currency,
		Duration:          j.grantLength,
		SavedMethodHandle: rec.SavedMethodHandle,
	})
	if !applied {
		// Webhook for the same payment landed first; nothing left to do.
		j.logg.Info(logCtx, "renewal already applied by webhook")
		return renewApplied, nil
	}
	j.logg.Info(j.logg.WithField(logCtx, "premium_until", until), "renewal applied")
	return renewApplied, nil
}
