package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beautynano/beautynano-backend/internal/rails"
	"github.com/beautynano/beautynano-backend/pkg/config"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

type fakeRail struct {
	name      string
	requests  []rails.ChargeRequest
	recurring []bool
	invoice   rails.Invoice
}

func (f *fakeRail) Name() string { return f.name }

func (f *fakeRail) CreateCharge(_ context.Context, req rails.ChargeRequest) (*rails.Invoice, error) {
	f.requests = append(f.requests, req)
	f.recurring = append(f.recurring, false)
	invoice := f.invoice
	return &invoice, nil
}

func (f *fakeRail) CreateRecurringCharge(_ context.Context, req rails.ChargeRequest) (*rails.Invoice, error) {
	f.requests = append(f.requests, req)
	f.recurring = append(f.recurring, true)
	invoice := f.invoice
	return &invoice, nil
}

func (f *fakeRail) ChargeSaved(context.Context, int64, int64, string, time.Time) (*rails.ChargeResult, error) {
	return nil, rails.ErrChargeSavedUnsupported
}

func (f *fakeRail) CancelAutorenew(context.Context, int64) error { return nil }

func purchaseTestConfig() *config.Config {
	return &config.Config{
		YooKassa: config.YooKassaConfig{PriceMinor: 29900, Currency: "RUB", Description: "Premium subscription, 30 days"},
		Stars:    config.StarsConfig{PriceXTR: 1200, Description: "Unlimited analyses"},
	}
}

func TestPurchaseCreateRoutesToSavedMethodRail(t *testing.T) {
	saved := &fakeRail{name: "yookassa", invoice: rails.Invoice{ExternalID: "pay-1", RedirectURL: "https://pay.example/1"}}
	platform := &fakeRail{name: "stars"}
	handler := PurchaseCreate(saved, platform, purchaseTestConfig(), logger.New(logger.Options{ServiceName: "controllers-test"}))

	body := `{"user_id":42,"rail":"yookassa","recurring":true}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/purchases", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(saved.requests) != 1 || len(platform.requests) != 0 {
		t.Fatalf("expected request on saved rail only")
	}
	req := saved.requests[0]
	if req.UserID != 42 || req.AmountMinor != 29900 || req.Currency != "RUB" {
		t.Fatalf("unexpected charge request: %+v", req)
	}
	if req.IdempotencyKey == "" {
		t.Fatalf("expected idempotency key set")
	}
	if !saved.recurring[0] {
		t.Fatalf("expected recurring charge")
	}

	var envelope struct {
		Data purchaseCreateResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Rail != "yookassa" || envelope.Data.Invoice.RedirectURL != "https://pay.example/1" {
		t.Fatalf("unexpected response: %+v", envelope.Data)
	}
}

func TestPurchaseCreateRoutesToPlatformRail(t *testing.T) {
	saved := &fakeRail{name: "yookassa"}
	platform := &fakeRail{name: "stars", invoice: rails.Invoice{InvoiceLink: "https://t.me/invoice/abc"}}
	handler := PurchaseCreate(saved, platform, purchaseTestConfig(), logger.New(logger.Options{ServiceName: "controllers-test"}))

	body := `{"user_id":42,"rail":"stars"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/purchases", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(platform.requests) != 1 || len(saved.requests) != 0 {
		t.Fatalf("expected request on platform rail only")
	}
	req := platform.requests[0]
	if req.AmountMinor != 1200 || req.Currency != "XTR" {
		t.Fatalf("unexpected charge request: %+v", req)
	}
	if platform.recurring[0] {
		t.Fatalf("expected one-off charge")
	}
}

func TestPurchaseCreateReusesCallerIdempotencyKey(t *testing.T) {
	saved := &fakeRail{name: "yookassa", invoice: rails.Invoice{ExternalID: "pay-1"}}
	handler := PurchaseCreate(saved, &fakeRail{name: "stars"}, purchaseTestConfig(), logger.New(logger.Options{ServiceName: "controllers-test"}))

	body := `{"user_id":42,"rail":"yookassa","idempotency_key":"purchase-42-attempt-1"}`
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/purchases", strings.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
	}
	if len(saved.requests) != 2 {
		t.Fatalf("expected both attempts forwarded, got %d", len(saved.requests))
	}
	if saved.requests[0].IdempotencyKey != "purchase-42-attempt-1" || saved.requests[1].IdempotencyKey != "purchase-42-attempt-1" {
		t.Fatalf("expected the caller key on both attempts: %q, %q", saved.requests[0].IdempotencyKey, saved.requests[1].IdempotencyKey)
	}
}

func TestPurchaseCreateRejectsUnknownRail(t *testing.T) {
	handler := PurchaseCreate(&fakeRail{name: "yookassa"}, &fakeRail{name: "stars"}, purchaseTestConfig(), logger.New(logger.Options{ServiceName: "controllers-test"}))

	body := `{"user_id":42,"rail":"paypal"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/purchases", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
