package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beautynano/beautynano-backend/pkg/config"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvDev}}
	logg := logger.New(logger.Options{ServiceName: "controllers-test"})

	rec := httptest.NewRecorder()
	HealthReady(cfg, logg, stubPinger{}, stubPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-BeautyNano-Env") != config.AppEnvDev {
		t.Fatalf("expected env header set")
	}
}

func TestHealthReadyFailsWhenStoreDown(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvDev}}
	logg := logger.New(logger.Options{ServiceName: "controllers-test"})

	rec := httptest.NewRecorder()
	HealthReady(cfg, logg, stubPinger{err: errors.New("no db")}, stubPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
