package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/beautynano/beautynano-backend/internal/entitlements"
	"github.com/beautynano/beautynano-backend/internal/quota"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

func newQuotaTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "controllers-test"})
	store, err := entitlements.NewStore(entitlements.StoreParams{Logger: logg, FreeLimit: 2})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	gate, err := quota.NewGate(quota.GateParams{Store: store})
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	r := chi.NewRouter()
	r.Post("/v1/quota/{userId}/consume", QuotaConsume(gate, logg))
	r.Get("/v1/quota/{userId}", QuotaDescribe(gate, logg))
	return r
}

func TestQuotaConsumeFreeUntilDenied(t *testing.T) {
	router := newQuotaTestRouter(t)

	decisions := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/quota/42/consume", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		var envelope struct {
			Data quotaConsumeResponse `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode: %v", err)
		}
		decisions = append(decisions, envelope.Data.Decision)
	}
	if decisions[0] != "allowed_free" || decisions[1] != "allowed_free" {
		t.Fatalf("expected first two allowed_free, got %v", decisions)
	}
	if decisions[2] != "denied" {
		t.Fatalf("expected third denied, got %v", decisions)
	}
}

func TestQuotaDescribeDoesNotConsume(t *testing.T) {
	router := newQuotaTestRouter(t)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/quota/42", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/quota/42", nil))
	var envelope struct {
		Data quota.Status `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.FreeLeft != 2 {
		t.Fatalf("expected full free quota after describes, got %d", envelope.Data.FreeLeft)
	}
}

func TestQuotaConsumeRejectsBadUserID(t *testing.T) {
	router := newQuotaTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/quota/not-a-number/consume", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
