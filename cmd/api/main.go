package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/beautynano/beautynano-backend/api/routes"
	"github.com/beautynano/beautynano-backend/internal/adminops"
	"github.com/beautynano/beautynano-backend/internal/entitlements"
	"github.com/beautynano/beautynano-backend/internal/promos"
	"github.com/beautynano/beautynano-backend/internal/quota"
	"github.com/beautynano/beautynano-backend/internal/rails/stars"
	"github.com/beautynano/beautynano-backend/internal/rails/yookassa"
	"github.com/beautynano/beautynano-backend/internal/sweep"
	paymentswebhook "github.com/beautynano/beautynano-backend/internal/webhooks/payments"
	"github.com/beautynano/beautynano-backend/pkg/config"
	"github.com/beautynano/beautynano-backend/pkg/db"
	"github.com/beautynano/beautynano-backend/pkg/logger"
	"github.com/beautynano/beautynano-backend/pkg/metrics"
	"github.com/beautynano/beautynano-backend/pkg/migrate"
	"github.com/beautynano/beautynano-backend/pkg/redis"
)

const (
	webhookGuardTTL = 24 * time.Hour
	lockKeyFormat   = "bn:sweep:lock:%s"
	shutdownGrace   = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	entMetrics := metrics.NewEntitlementMetrics(prometheus.DefaultRegisterer)

	store, err := entitlements.NewStore(entitlements.StoreParams{
		Repo:      entitlements.NewRepository(dbClient.DB()),
		Logger:    logg,
		Metrics:   entMetrics,
		FreeLimit: cfg.Quota.FreeLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement store", err)
		os.Exit(1)
	}
	if err := store.Warm(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to warm entitlement store", err)
		os.Exit(1)
	}

	gate, err := quota.NewGate(quota.GateParams{Store: store, Metrics: entMetrics})
	if err != nil {
		logg.Error(context.Background(), "failed to create quota gate", err)
		os.Exit(1)
	}

	savedRail, err := yookassa.New(yookassa.Params{Config: cfg.YooKassa, Store: store, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create yookassa rail", err)
		os.Exit(1)
	}

	platformRail, err := stars.New(stars.Params{Config: cfg.Stars, Store: store, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create stars rail", err)
		os.Exit(1)
	}

	promoService, err := promos.NewService(promos.ServiceParams{
		Repo:              promos.NewRepository(dbClient.DB()),
		Store:             store,
		TransactionRunner: dbClient,
		Logger:            logg,
		TrialDuration:     cfg.Quota.TrialDuration,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create promo service", err)
		os.Exit(1)
	}

	adminService, err := adminops.NewService(adminops.ServiceParams{
		Store:        store,
		SavedRail:    savedRail,
		PlatformRail: platformRail,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create admin service", err)
		os.Exit(1)
	}

	paymentService, err := paymentswebhook.NewService(paymentswebhook.ServiceParams{
		Store:            store,
		Logger:           logg,
		Metrics:          entMetrics,
		StandardDuration: cfg.Quota.StandardDuration,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	webhookGuard, err := paymentswebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, "yookassa-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	// The renewal sweep runs in-process so that sweeper, webhook path and
	// quota gate all mutate the same store. The redis lock keeps concurrent
	// deployments from sweeping twice.
	autorenewJob, err := sweep.NewAutorenewJob(sweep.AutorenewJobParams{
		Logger:      logg,
		Store:       store,
		Rail:        savedRail,
		Window:      cfg.Quota.RenewalWindow,
		PriceMinor:  cfg.YooKassa.PriceMinor,
		Currency:    cfg.YooKassa.Currency,
		GrantLength: cfg.Quota.StandardDuration,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create autorenew job", err)
		os.Exit(1)
	}

	sweepLock, err := sweep.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Sweep.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	sweepService, err := sweep.NewService(sweep.ServiceParams{
		Logger:   logg,
		Registry: sweep.NewRegistry(autorenewJob),
		Lock:     sweepLock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sweep.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			gate,
			promoService,
			adminService,
			savedRail,
			platformRail,
			paymentService,
			webhookGuard,
		),
	}

	go func() {
		if err := sweepService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "sweep loop stopped unexpectedly", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}

	logg.Info(context.Background(), "api server shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
