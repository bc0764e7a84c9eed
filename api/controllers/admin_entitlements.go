package controllers

import (
	"net/http"
	"time"

	"github.com/beautynano/beautynano-backend/api/responses"
	"github.com/beautynano/beautynano-backend/api/validators"
	"github.com/beautynano/beautynano-backend/internal/adminops"
	"github.com/beautynano/beautynano-backend/internal/entitlements"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

type adminGrantRequest struct {
	Days int `json:"days" validate:"required,gt=0"`
}

type adminAutorenewRequest struct {
	Rail    string `json:"rail" validate:"required,oneof=yookassa stars"`
	Enabled bool   `json:"enabled"`
}

type entitlementRecordResponse struct {
	UserID             int64      `json:"user_id"`
	Premium            bool       `json:"premium"`
	PremiumUntil       *time.Time `json:"premium_until,omitempty"`
	FreeCount          int        `json:"free_count"`
	TrialUsed          bool       `json:"trial_used"`
	HasSavedMethod     bool       `json:"has_saved_method"`
	HasPlatformSub     bool       `json:"has_platform_subscription"`
	AutorenewSuspended bool       `json:"autorenew_suspended"`
}

func recordResponseFrom(rec entitlements.Record) entitlementRecordResponse {
	resp := entitlementRecordResponse{
		UserID:             rec.UserID,
		Premium:            rec.IsPremium(time.Now()),
		FreeCount:          rec.FreeCount,
		TrialUsed:          rec.TrialUsed,
		HasSavedMethod:     rec.SavedMethodHandle != "",
		HasPlatformSub:     rec.PlatformSubscriptionRef != "",
		AutorenewSuspended: rec.AutorenewSuspended,
	}
	if !rec.PremiumUntil.IsZero() {
		until := rec.PremiumUntil
		resp.PremiumUntil = &until
	}
	return resp
}

// AdminEntitlementInspect returns a user's raw entitlement record.
func AdminEntitlementInspect(svc *adminops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, recordResponseFrom(svc.Inspect(ctx, userID)))
	}
}

// AdminEntitlementGrant extends a user's premium window by whole days.
func AdminEntitlementGrant(svc *adminops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload adminGrantRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rec, err := svc.Apply(ctx, adminops.GrantDays{UserID: userID, Days: payload.Days})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, recordResponseFrom(rec))
	}
}

// AdminEntitlementRevoke clears a user's premium immediately.
func AdminEntitlementRevoke(svc *adminops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rec, err := svc.Apply(ctx, adminops.Revoke{UserID: userID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, recordResponseFrom(rec))
	}
}

// AdminEntitlementResetFree zeroes a user's monthly free counter.
func AdminEntitlementResetFree(svc *adminops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rec, err := svc.Apply(ctx, adminops.ResetFree{UserID: userID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, recordResponseFrom(rec))
	}
}

// AdminEntitlementAutorenew toggles autorenew on the named rail.
func AdminEntitlementAutorenew(svc *adminops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}
		userID, err := userIDFromPath(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload adminAutorenewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rec, err := svc.Apply(ctx, adminops.SetAutorenew{UserID: userID, Rail: payload.Rail, Enabled: payload.Enabled})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, recordResponseFrom(rec))
	}
}
