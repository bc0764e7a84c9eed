package webhooks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"net/http"

	"github.com/beautynano/beautynano-backend/api/responses"
	"github.com/beautynano/beautynano-backend/api/validators"
	paymentswebhook "github.com/beautynano/beautynano-backend/internal/webhooks/payments"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

// PaymentEventService applies confirmed payment notifications.
type PaymentEventService interface {
	HandleSavedMethodEvent(ctx context.Context, event paymentswebhook.Event) (paymentswebhook.Disposition, error)
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type yookassaAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yookassaPaymentMethod struct {
	ID    string `json:"id"`
	Saved bool   `json:"saved"`
}

type yookassaObject struct {
	ID            string                `json:"id"`
	Status        string                `json:"status"`
	Amount        yookassaAmount        `json:"amount"`
	PaymentMethod yookassaPaymentMethod `json:"payment_method"`
	Metadata      map[string]string     `json:"metadata"`
}

type yookassaNotification struct {
	Event  string         `json:"event" validate:"required"`
	Object yookassaObject `json:"object"`
}

// YooKassaWebhook ingests payment notifications from the acquirer. Delivery
// is at-least-once, so duplicates are absorbed rather than re-applied.
func YooKassaWebhook(svc PaymentEventService, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		var payload yookassaNotification
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if payload.Object.ID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment id missing"))
			return
		}

		// Only payment.succeeded reaches the guard. Earlier lifecycle events
		// (waiting_for_capture, canceled) for the same payment id must not
		// mark it as processed.
		if payload.Event != paymentswebhook.EventTypePaymentSucceeded {
			responses.WriteSuccess(w, map[string]string{"disposition": string(paymentswebhook.DispositionIgnored)})
			return
		}

		event, err := eventFromNotification(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, payload.Object.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]string{"disposition": string(paymentswebhook.DispositionReplay)})
			return
		}

		disposition, err := svc.HandleSavedMethodEvent(ctx, event)
		if err != nil {
			_ = guard.Delete(ctx, payload.Object.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("yookassa event %s %s", payload.Object.ID, disposition))
		}
		responses.WriteSuccess(w, map[string]string{"disposition": string(disposition)})
	}
}

func eventFromNotification(payload yookassaNotification) (paymentswebhook.Event, error) {
	userID, err := strconv.ParseInt(payload.Object.Metadata["user_id"], 10, 64)
	if err != nil || userID <= 0 {
		return paymentswebhook.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "user_id metadata missing or invalid")
	}
	amountMinor, err := valueToMinor(payload.Object.Amount.Value)
	if err != nil {
		return paymentswebhook.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount value")
	}
	event := paymentswebhook.Event{
		Type:                  payload.Event,
		UserID:                userID,
		AmountMinor:           amountMinor,
		Currency:              payload.Object.Amount.Currency,
		ExternalTransactionID: payload.Object.ID,
	}
	if payload.Object.PaymentMethod.Saved {
		event.SavedMethodHandle = payload.Object.PaymentMethod.ID
	}
	return event, nil
}

// valueToMinor converts the acquirer decimal string ("299.00") to minor
// units. Values carry at most two fraction digits.
func valueToMinor(value string) (int64, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(value), ".")
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		return 0, fmt.Errorf("parse amount %q: too many fraction digits", value)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return major*100 + cents, nil
}
