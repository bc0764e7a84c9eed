package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/beautynano/beautynano-backend/api/responses"
	"github.com/beautynano/beautynano-backend/internal/quota"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

type quotaConsumeResponse struct {
	Decision string       `json:"decision"`
	Allowed  bool         `json:"allowed"`
	Status   quota.Status `json:"status"`
}

func userIDFromPath(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "userId")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id")
	}
	return userID, nil
}

// QuotaConsume is the gate the bot calls before running a paid generation.
// Premium bypasses the counter; otherwise one free use is consumed.
func QuotaConsume(gate *quota.Gate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if gate == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota gate unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		decision := gate.CheckAndConsume(ctx, userID)
		responses.WriteSuccess(w, quotaConsumeResponse{
			Decision: string(decision),
			Allowed:  decision.Allowed(),
			Status:   gate.Describe(ctx, userID),
		})
	}
}

// QuotaDescribe returns the current standing without consuming anything.
func QuotaDescribe(gate *quota.Gate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if gate == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota gate unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, gate.Describe(ctx, userID))
	}
}
