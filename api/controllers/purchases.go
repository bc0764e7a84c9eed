package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/beautynano/beautynano-backend/api/responses"
	"github.com/beautynano/beautynano-backend/api/validators"
	"github.com/beautynano/beautynano-backend/internal/rails"
	"github.com/beautynano/beautynano-backend/pkg/config"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

type purchaseCreateRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Rail   string `json:"rail" validate:"required,oneof=yookassa stars"`
	// IdempotencyKey lets the caller retry a timed-out request without
	// opening a second charge. Generated server-side when absent.
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=64"`
	Recurring      bool   `json:"recurring"`
}

type purchaseCreateResponse struct {
	Rail    string        `json:"rail"`
	Invoice rails.Invoice `json:"invoice"`
}

// PurchaseCreate starts a premium purchase on the requested rail and returns
// the payment link the bot forwards to the user.
func PurchaseCreate(savedRail, platformRail rails.Rail, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if savedRail == nil || platformRail == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment rails unavailable"))
			return
		}

		var payload purchaseCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var (
			rail        rails.Rail
			amountMinor int64
			currency    string
			description string
		)
		switch payload.Rail {
		case "yookassa":
			rail = savedRail
			amountMinor = cfg.YooKassa.PriceMinor
			currency = cfg.YooKassa.Currency
			description = cfg.YooKassa.Description
		case "stars":
			rail = platformRail
			amountMinor = cfg.Stars.PriceXTR
			currency = "XTR"
			description = cfg.Stars.Description
		default:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment rail"))
			return
		}

		idempotencyKey := payload.IdempotencyKey
		if idempotencyKey == "" {
			idempotencyKey = uuid.NewString()
		}
		req := rails.ChargeRequest{
			UserID:         payload.UserID,
			AmountMinor:    amountMinor,
			Currency:       currency,
			Description:    description,
			IdempotencyKey: idempotencyKey,
		}

		var (
			invoice *rails.Invoice
			err     error
		)
		if payload.Recurring {
			invoice, err = rail.CreateRecurringCharge(ctx, req)
		} else {
			invoice, err = rail.CreateCharge(ctx, req)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, purchaseCreateResponse{Rail: rail.Name(), Invoice: *invoice})
	}
}
