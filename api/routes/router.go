package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beautynano/beautynano-backend/api/controllers"
	webhookcontrollers "github.com/beautynano/beautynano-backend/api/controllers/webhooks"
	"github.com/beautynano/beautynano-backend/api/middleware"
	"github.com/beautynano/beautynano-backend/internal/adminops"
	"github.com/beautynano/beautynano-backend/internal/promos"
	"github.com/beautynano/beautynano-backend/internal/quota"
	"github.com/beautynano/beautynano-backend/internal/rails"
	paymentswebhook "github.com/beautynano/beautynano-backend/internal/webhooks/payments"
	"github.com/beautynano/beautynano-backend/pkg/config"
	"github.com/beautynano/beautynano-backend/pkg/db"
	"github.com/beautynano/beautynano-backend/pkg/logger"
	"github.com/beautynano/beautynano-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	quotaGate *quota.Gate,
	promoService *promos.Service,
	adminService *adminops.Service,
	savedRail rails.Rail,
	platformRail rails.Rail,
	paymentService *paymentswebhook.Service,
	webhookGuard *paymentswebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/webhooks", func(r chi.Router) {
		r.Post("/yookassa", webhookcontrollers.YooKassaWebhook(paymentService, webhookGuard, logg))
	})

	// In-band platform payments are relayed by the bot process.
	r.Post("/v1/payments/stars", webhookcontrollers.StarsPayment(paymentService, logg))

	r.Route("/v1/quota", func(r chi.Router) {
		r.Get("/{userId}", controllers.QuotaDescribe(quotaGate, logg))
		r.Post("/{userId}/consume", controllers.QuotaConsume(quotaGate, logg))
	})

	r.Post("/v1/purchases", controllers.PurchaseCreate(savedRail, platformRail, cfg, logg))
	r.Post("/v1/trial", controllers.TrialIssue(promoService, logg))
	r.Post("/v1/promos/redeem", controllers.PromoRedeem(promoService, logg))

	r.Route("/admin/v1/entitlements", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin, logg))
		r.Get("/{userId}", controllers.AdminEntitlementInspect(adminService, logg))
		r.Post("/{userId}/grant", controllers.AdminEntitlementGrant(adminService, logg))
		r.Post("/{userId}/revoke", controllers.AdminEntitlementRevoke(adminService, logg))
		r.Post("/{userId}/reset-free", controllers.AdminEntitlementResetFree(adminService, logg))
		r.Post("/{userId}/autorenew", controllers.AdminEntitlementAutorenew(adminService, logg))
	})

	return r
}
