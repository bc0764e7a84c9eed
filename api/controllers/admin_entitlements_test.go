package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/beautynano/beautynano-backend/internal/adminops"
	"github.com/beautynano/beautynano-backend/internal/entitlements"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

type adminStubStore struct {
	recs map[int64]entitlements.Record
}

func newAdminStubStore() *adminStubStore {
	return &adminStubStore{recs: map[int64]entitlements.Record{}}
}

func (s *adminStubStore) GetOrCreate(_ context.Context, userID int64) entitlements.Record {
	rec, ok := s.recs[userID]
	if !ok {
		rec = entitlements.Record{UserID: userID}
		s.recs[userID] = rec
	}
	return rec
}

func (s *adminStubStore) Grant(_ context.Context, userID int64, duration time.Duration, _ string) time.Time {
	rec := s.recs[userID]
	rec.UserID = userID
	base := time.Now()
	if rec.PremiumUntil.After(base) {
		base = rec.PremiumUntil
	}
	rec.PremiumUntil = base.Add(duration)
	s.recs[userID] = rec
	return rec.PremiumUntil
}

func (s *adminStubStore) Revoke(_ context.Context, userID int64) {
	rec := s.recs[userID]
	rec.UserID = userID
	rec.PremiumUntil = time.Time{}
	s.recs[userID] = rec
}

func (s *adminStubStore) ResetFree(_ context.Context, userID int64) {
	rec := s.recs[userID]
	rec.UserID = userID
	rec.FreeCount = 0
	s.recs[userID] = rec
}

type adminStubRail struct{}

func (r *adminStubRail) CancelAutorenew(context.Context, int64) error { return nil }
func (r *adminStubRail) ResumeAutorenew(context.Context, int64) error { return nil }

func newAdminTestRouter(t *testing.T, store *adminStubStore) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "controllers-test"})
	svc, err := adminops.NewService(adminops.ServiceParams{
		Store:        store,
		SavedRail:    &adminStubRail{},
		PlatformRail: &adminStubRail{},
		Logger:       logg,
	})
	if err != nil {
		t.Fatalf("admin service: %v", err)
	}
	r := chi.NewRouter()
	r.Get("/admin/v1/entitlements/{userId}", AdminEntitlementInspect(svc, logg))
	r.Post("/admin/v1/entitlements/{userId}/grant", AdminEntitlementGrant(svc, logg))
	r.Post("/admin/v1/entitlements/{userId}/revoke", AdminEntitlementRevoke(svc, logg))
	r.Post("/admin/v1/entitlements/{userId}/reset-free", AdminEntitlementResetFree(svc, logg))
	r.Post("/admin/v1/entitlements/{userId}/autorenew", AdminEntitlementAutorenew(svc, logg))
	return r
}

func TestAdminEntitlementGrantExtendsWindow(t *testing.T) {
	store := newAdminStubStore()
	router := newAdminTestRouter(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/entitlements/42/grant", strings.NewReader(`{"days":30}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data entitlementRecordResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Premium || envelope.Data.PremiumUntil == nil {
		t.Fatalf("expected premium record, got %+v", envelope.Data)
	}
	if remaining := time.Until(*envelope.Data.PremiumUntil); remaining < 29*24*time.Hour {
		t.Fatalf("expected roughly 30 days of premium, got %v", remaining)
	}
}

func TestAdminEntitlementGrantRejectsZeroDays(t *testing.T) {
	router := newAdminTestRouter(t, newAdminStubStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/entitlements/42/grant", strings.NewReader(`{"days":0}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminEntitlementRevokeClearsPremium(t *testing.T) {
	store := newAdminStubStore()
	store.recs[42] = entitlements.Record{UserID: 42, PremiumUntil: time.Now().Add(48 * time.Hour)}
	router := newAdminTestRouter(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/entitlements/42/revoke", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data entitlementRecordResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Premium || envelope.Data.PremiumUntil != nil {
		t.Fatalf("expected revoked record, got %+v", envelope.Data)
	}
}

func TestAdminEntitlementAutorenewRequiresSavedMethod(t *testing.T) {
	store := newAdminStubStore()
	router := newAdminTestRouter(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/entitlements/42/autorenew", strings.NewReader(`{"rail":"yookassa","enabled":true}`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without saved method, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAdminEntitlementInspectReturnsRecord(t *testing.T) {
	store := newAdminStubStore()
	store.recs[42] = entitlements.Record{UserID: 42, FreeCount: 3, TrialUsed: true, SavedMethodHandle: "pm-1"}
	router := newAdminTestRouter(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/entitlements/42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var envelope struct {
		Data entitlementRecordResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.FreeCount != 3 || !envelope.Data.TrialUsed || !envelope.Data.HasSavedMethod {
		t.Fatalf("unexpected record view: %+v", envelope.Data)
	}
}
