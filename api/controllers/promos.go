package controllers

import (
	"net/http"
	"time"

	"github.com/beautynano/beautynano-backend/api/responses"
	"github.com/beautynano/beautynano-backend/api/validators"
	"github.com/beautynano/beautynano-backend/internal/promos"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

type trialIssueRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type promoRedeemRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Code   string `json:"code" validate:"required"`
}

type grantResultResponse struct {
	Outcome      string     `json:"outcome"`
	BonusDays    int        `json:"bonus_days,omitempty"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
}

func grantResponseFrom(result promos.Result) grantResultResponse {
	resp := grantResultResponse{
		Outcome:   string(result.Outcome),
		BonusDays: result.BonusDays,
	}
	if !result.PremiumUntil.IsZero() {
		until := result.PremiumUntil
		resp.PremiumUntil = &until
	}
	return resp
}

// TrialIssue grants the single-use trial window. A repeat claim reports
// already_used rather than failing the request.
func TrialIssue(svc *promos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}
		var payload trialIssueRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, grantResponseFrom(svc.IssueTrial(ctx, payload.UserID)))
	}
}

// PromoRedeem applies a promo code. Exhausted, expired, and unknown codes
// come back as outcomes so the bot can phrase the refusal.
func PromoRedeem(svc *promos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}
		var payload promoRedeemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.RedeemPromo(ctx, payload.UserID, validators.SanitizeString(payload.Code, 64))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, grantResponseFrom(result))
	}
}
