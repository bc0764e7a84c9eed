package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/beautynano/beautynano-backend/internal/adminops"
	"github.com/beautynano/beautynano-backend/internal/entitlements"
	"github.com/beautynano/beautynano-backend/internal/promos"
	"github.com/beautynano/beautynano-backend/internal/quota"
	"github.com/beautynano/beautynano-backend/internal/rails"
	paymentswebhook "github.com/beautynano/beautynano-backend/internal/webhooks/payments"
	pkgauth "github.com/beautynano/beautynano-backend/pkg/auth"
	"github.com/beautynano/beautynano-backend/pkg/config"
	"github.com/beautynano/beautynano-backend/pkg/db/models"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubRail struct {
	name string
}

func (s stubRail) Name() string { return s.name }

func (s stubRail) CreateCharge(context.Context, rails.ChargeRequest) (*rails.Invoice, error) {
	return &rails.Invoice{ExternalID: "pay-1", RedirectURL: "https://pay.example/1"}, nil
}

func (s stubRail) CreateRecurringCharge(context.Context, rails.ChargeRequest) (*rails.Invoice, error) {
	return &rails.Invoice{ExternalID: "pay-1", RedirectURL: "https://pay.example/1"}, nil
}

func (s stubRail) ChargeSaved(context.Context, int64, int64, string, time.Time) (*rails.ChargeResult, error) {
	return nil, rails.ErrChargeSavedUnsupported
}

func (s stubRail) CancelAutorenew(context.Context, int64) error { return nil }

type stubPlatformRail struct{}

func (stubPlatformRail) CancelAutorenew(context.Context, int64) error { return nil }
func (stubPlatformRail) ResumeAutorenew(context.Context, int64) error { return nil }

type stubPromoRepo struct{}

func (r stubPromoRepo) WithTx(*gorm.DB) promos.Repository { return r }

func (stubPromoRepo) Find(context.Context, string) (*models.PromoCode, error) { return nil, nil }
func (stubPromoRepo) ConsumeUse(context.Context, string) (bool, error)        { return false, nil }
func (stubPromoRepo) Create(context.Context, *models.PromoCode) error         { return nil }

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type memoryGuardStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (s *memoryGuardStore) Get(context.Context, string) (string, error) { return "", nil }

func (s *memoryGuardStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = map[string]struct{}{}
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *memoryGuardStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (s *memoryGuardStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: config.AppEnvDev, Port: "8080"},
		Admin: config.AdminConfig{
			TokenSecret: "test-secret",
			TokenIssuer: "beautynano",
		},
		Quota: config.QuotaConfig{
			FreeLimit:        5,
			StandardDuration: 720 * time.Hour,
			TrialDuration:    24 * time.Hour,
			RenewalWindow:    6 * time.Hour,
		},
		YooKassa: config.YooKassaConfig{PriceMinor: 29900, Currency: "RUB", Description: "Premium"},
		Stars:    config.StarsConfig{PriceXTR: 1200, Description: "Premium"},
	}
	logg := logger.New(logger.Options{ServiceName: "routes-test"})

	store, err := entitlements.NewStore(entitlements.StoreParams{Logger: logg, FreeLimit: cfg.Quota.FreeLimit})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	gate, err := quota.NewGate(quota.GateParams{Store: store})
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	promoService, err := promos.NewService(promos.ServiceParams{
		Repo:              stubPromoRepo{},
		Store:             store,
		TransactionRunner: stubTxRunner{},
		Logger:            logg,
		TrialDuration:     cfg.Quota.TrialDuration,
	})
	if err != nil {
		t.Fatalf("promos: %v", err)
	}
	adminService, err := adminops.NewService(adminops.ServiceParams{
		Store:        store,
		SavedRail:    stubRail{name: "yookassa"},
		PlatformRail: stubPlatformRail{},
		Logger:       logg,
	})
	if err != nil {
		t.Fatalf("adminops: %v", err)
	}
	paymentService, err := paymentswebhook.NewService(paymentswebhook.ServiceParams{
		Store:            store,
		Logger:           logg,
		StandardDuration: cfg.Quota.StandardDuration,
	})
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	guard, err := paymentswebhook.NewIdempotencyGuard(&memoryGuardStore{}, time.Minute, "yookassa-webhook")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}

	router := NewRouter(
		cfg,
		logg,
		stubPinger{},
		stubPinger{},
		gate,
		promoService,
		adminService,
		stubRail{name: "yookassa"},
		stubRail{name: "stars"},
		paymentService,
		guard,
	)
	return router, cfg
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d (%s)", path, rec.Code, rec.Body.String())
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestQuotaRoutesWired(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/quota/42/consume", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("consume: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/v1/quota/42", nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("describe: expected 200, got %d", rec2.Code)
	}
}

func TestPurchaseRouteWired(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"user_id":42,"rail":"yookassa"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/purchases", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAdminGroupRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/entitlements/42", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestAdminGroupAcceptsMintedToken(t *testing.T) {
	router, cfg := newTestRouter(t)

	token, err := pkgauth.MintOperatorToken(cfg.Admin, time.Now(), "ops@beautynano", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/entitlements/42", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestWebhookRouteAppliesPayment(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{
		"event": "payment.succeeded",
		"object": {
			"id": "pay-route-1",
			"status": "succeeded",
			"amount": {"value": "299.00", "currency": "RUB"},
			"payment_method": {"id": "pm-1", "saved": true},
			"metadata": {"user_id": "42"}
		}
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/webhooks/yookassa", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	// The quota gate must now answer premium without touching the counter.
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/v1/quota/42/consume", nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
	if !strings.Contains(rec2.Body.String(), "allowed_premium") {
		t.Fatalf("expected premium decision after payment, got %s", rec2.Body.String())
	}
}

func TestStarsPaymentRouteWired(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"user_id":77,"telegram_payment_charge_id":"chg-route-1","total_amount":1200}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/payments/stars", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
