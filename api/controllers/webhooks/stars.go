package webhooks

import (
	"context"
	"net/http"
	"time"

	"github.com/beautynano/beautynano-backend/api/responses"
	"github.com/beautynano/beautynano-backend/api/validators"
	paymentswebhook "github.com/beautynano/beautynano-backend/internal/webhooks/payments"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

// PlatformPaymentService applies in-band platform-currency payments.
type PlatformPaymentService interface {
	HandlePlatformPayment(ctx context.Context, payment paymentswebhook.PlatformPayment) (paymentswebhook.Disposition, error)
}

type starsPaymentRequest struct {
	UserID                     int64  `json:"user_id" validate:"required,gt=0"`
	TelegramPaymentChargeID    string `json:"telegram_payment_charge_id" validate:"required"`
	TotalAmount                int64  `json:"total_amount" validate:"required,gt=0"`
	IsRecurring                bool   `json:"is_recurring"`
	SubscriptionExpirationDate int64  `json:"subscription_expiration_date"`
}

// StarsPayment ingests a successful platform payment relayed by the bot
// process. The platform delivers these in-band, so the bot forwards the
// successful_payment update here verbatim.
func StarsPayment(svc PlatformPaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload starsPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payment := paymentswebhook.PlatformPayment{
			UserID:           payload.UserID,
			ExternalChargeID: payload.TelegramPaymentChargeID,
			AmountMinor:      payload.TotalAmount,
			IsRecurring:      payload.IsRecurring,
		}
		if payload.SubscriptionExpirationDate > 0 {
			expiry := time.Unix(payload.SubscriptionExpirationDate, 0).UTC()
			payment.SubscriptionExpiry = &expiry
		}

		disposition, err := svc.HandlePlatformPayment(ctx, payment)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"disposition": string(disposition)})
	}
}
