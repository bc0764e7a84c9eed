package paymentswebhook

import (
	"context"
	"time"

	"github.com/beautynano/beautynano-backend/internal/entitlements"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
	"github.com/beautynano/beautynano-backend/pkg/metrics"
)

// EventTypePaymentSucceeded is the only event type that produces a grant.
const EventTypePaymentSucceeded = "payment.succeeded"

// Disposition reports what a delivery did to entitlement state.
type Disposition string

const (
	DispositionApplied Disposition = "applied"
	DispositionReplay  Disposition = "replay"
	DispositionIgnored Disposition = "ignored"
)

// Event is a confirmed payment delivered by the saved-method processor.
type Event struct {
	Type                  string
	UserID                int64
	AmountMinor           int64
	Currency              string
	ExternalTransactionID string
	SavedMethodHandle     string
}

// PlatformPayment is a successful platform-currency payment delivered in-band
// rather than via webhook. SubscriptionExpiry, when present, is authoritative
// over the locally computed standard duration.
type PlatformPayment struct {
	UserID             int64
	ExternalChargeID   string
	AmountMinor        int64
	SubscriptionExpiry *time.Time
	IsRecurring        bool
}

type transactionApplier interface {
	ApplyTransaction(ctx context.Context, txn entitlements.Transaction) (time.Time, bool)
}

// ServiceParams groups dependencies for the payment ingestion service.
type ServiceParams struct {
	Store            transactionApplier
	Logger           *logger.Logger
	Metrics          *metrics.EntitlementMetrics
	StandardDuration time.Duration
}

// Service turns external payment confirmations into exactly one store
// mutation each. Duplicate deliveries are absorbed by transaction-id dedup.
type Service struct {
	store            transactionApplier
	logg             *logger.Logger
	metrics          *metrics.EntitlementMetrics
	standardDuration time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement store required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.StandardDuration <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "standard duration must be positive")
	}
	return &Service{
		store:            params.Store,
		logg:             params.Logger,
		metrics:          params.Metrics,
		standardDuration: params.StandardDuration,
	}, nil
}

// HandleSavedMethodEvent ingests a webhook delivery from the saved-method
// rail. Event types other than payment.succeeded are acknowledged and
// ignored; a replayed transaction id is logged and absorbed.
func (s *Service) HandleSavedMethodEvent(ctx context.Context, event Event) (Disposition, error) {
	if event.Type != EventTypePaymentSucceeded {
		s.metrics.IncWebhookEvent("yookassa", string(DispositionIgnored))
		return DispositionIgnored, nil
	}
	if event.ExternalTransactionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "external transaction id missing")
	}
	if event.UserID == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id missing")
	}

	until, applied := s.store.ApplyTransaction(ctx, entitlements.Transaction{
		ExternalID:        event.ExternalTransactionID,
		Rail:              "yookassa",
		UserID:            event.UserID,
		AmountMinor:       event.AmountMinor,
		Currency:          event.Currency,
		Duration:          s.standardDuration,
		SavedMethodHandle: event.SavedMethodHandle,
	})

	lctx := s.logg.WithFields(s.logg.WithUserID(ctx, event.UserID), map[string]any{
		"transaction_id": event.ExternalTransactionID,
	})
	if !applied {
		s.metrics.IncWebhookEvent("yookassa", string(DispositionReplay))
		s.logg.Warn(lctx, "payments.webhook.duplicate")
		return DispositionReplay, nil
	}

	s.metrics.IncWebhookEvent("yookassa", string(DispositionApplied))
	s.logg.Info(s.logg.WithField(lctx, "premium_until", until), "payments.webhook.applied")
	return DispositionApplied, nil
}

// HandlePlatformPayment ingests an in-band successful payment from the
// platform-currency rail.
func (s *Service) HandlePlatformPayment(ctx context.Context, payment PlatformPayment) (Disposition, error) {
	if payment.ExternalChargeID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "external charge id missing")
	}
	if payment.UserID == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id missing")
	}

	txn := entitlements.Transaction{
		ExternalID:  payment.ExternalChargeID,
		Rail:        "stars",
		UserID:      payment.UserID,
		AmountMinor: payment.AmountMinor,
		Currency:    "XTR",
		Duration:    s.standardDuration,
	}
	if payment.SubscriptionExpiry != nil {
		txn.ExpiresAt = *payment.SubscriptionExpiry
	}
	if payment.IsRecurring {
		txn.PlatformSubscriptionRef = payment.ExternalChargeID
	}

	until, applied := s.store.ApplyTransaction(ctx, txn)

	lctx := s.logg.WithFields(s.logg.WithUserID(ctx, payment.UserID), map[string]any{
		"transaction_id": payment.ExternalChargeID,
	})
	if !applied {
		s.metrics.IncWebhookEvent("stars", string(DispositionReplay))
		s.logg.Warn(lctx, "payments.platform.duplicate")
		return DispositionReplay, nil
	}

	s.metrics.IncWebhookEvent("stars", string(DispositionApplied))
	s.logg.Info(s.logg.WithField(lctx, "premium_until", until), "payments.platform.applied")
	return DispositionApplied, nil
}
