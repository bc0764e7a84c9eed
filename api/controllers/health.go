package controllers

import (
	"net/http"

	"github.com/beautynano/beautynano-backend/api/responses"
	"github.com/beautynano/beautynano-backend/pkg/config"
	"github.com/beautynano/beautynano-backend/pkg/db"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
	"github.com/beautynano/beautynano-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BeautyNano-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when both backing stores answer a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-BeautyNano-Env", cfg.App.Env)

		if dbP == nil || redisP == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "readiness dependencies not wired"))
			return
		}
		if err := dbP.Ping(ctx); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database ping"))
			return
		}
		if err := redisP.Ping(ctx); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis ping"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
