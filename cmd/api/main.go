package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/easevote-backend/api/routes"
	"github.com/angelmondragon/easevote-backend/internal/events"
	"github.com/angelmondragon/easevote-backend/internal/fulfillment"
	"github.com/angelmondragon/easevote-backend/internal/gateways"
	"github.com/angelmondragon/easevote-backend/internal/inventory"
	"github.com/angelmondragon/easevote-backend/internal/purchases"
	"github.com/angelmondragon/easevote-backend/internal/settings"
	"github.com/angelmondragon/easevote-backend/internal/tickets"
	"github.com/angelmondragon/easevote-backend/internal/ussd"
	"github.com/angelmondragon/easevote-backend/internal/votes"
	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/db"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	"github.com/angelmondragon/easevote-backend/pkg/env"
	"github.com/angelmondragon/easevote-backend/pkg/instance"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
	"github.com/angelmondragon/easevote-backend/pkg/metrics"
	"github.com/angelmondragon/easevote-backend/pkg/migrate"
	"github.com/angelmondragon/easevote-backend/pkg/outbox"
	"github.com/angelmondragon/easevote-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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
		Level:       cfg.App.LogLevel,
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

	configured, err := gateways.Configure(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to configure payment gateways", err)
		os.Exit(1)
	}
	fallback, err := enums.ParseGatewayName(cfg.Gateway.Default)
	if err != nil {
		logg.Error(context.Background(), "invalid default gateway", err)
		os.Exit(1)
	}

	settingsRepo := settings.NewRepository(dbClient.DB())
	selector, err := gateways.NewSelector(fallback, settingsRepo, configured...)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway selector", err)
		os.Exit(1)
	}
	settingsService, err := settings.NewService(settingsRepo, selector, fallback)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}
	webhookGuard, err := gateways.NewWebhookGuard(redisClient, cfg.Gateway.WebhookDedupeTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	purchaseMetrics := metrics.NewPurchaseMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger := inventory.NewLedger()
	eventsRepo := events.NewRepository(dbClient.DB())
	purchasesRepo := purchases.NewRepository(dbClient.DB())

	engine, err := fulfillment.NewEngine(ledger, emitter)
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment engine", err)
		os.Exit(1)
	}

	reservations, err := purchases.NewReservationManager(purchases.ManagerParams{
		Tx:              dbClient,
		Repo:            purchasesRepo,
		Events:          eventsRepo,
		Ledger:          ledger,
		Gateways:        selector,
		Outbox:          emitter,
		Metrics:         purchaseMetrics,
		Logger:          logg,
		HoldDuration:    cfg.Purchases.HoldDuration,
		CallbackURL:     cfg.CallbackURL(),
		DefaultCurrency: cfg.Purchases.DefaultCurrency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation manager", err)
		os.Exit(1)
	}

	settlement, err := purchases.NewSettlementCoordinator(purchases.CoordinatorParams{
		Tx:          dbClient,
		Repo:        purchasesRepo,
		Ledger:      ledger,
		Fulfillment: engine,
		Gateways:    selector,
		Outbox:      emitter,
		Metrics:     purchaseMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement coordinator", err)
		os.Exit(1)
	}

	ticketsService, err := tickets.NewService(tickets.NewRepository(dbClient.DB()), eventsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create tickets service", err)
		os.Exit(1)
	}
	votesService, err := votes.NewService(eventsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create votes service", err)
		os.Exit(1)
	}

	ussdSessions, err := ussd.NewRedisSessionStore(redisClient, cfg.USSD.SessionTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create ussd session store", err)
		os.Exit(1)
	}
	ussdService, err := ussd.NewService(ussd.ServiceParams{
		Sessions:     ussdSessions,
		Catalog:      eventsRepo,
		Nominees:     votesService,
		Reservations: reservations,
		DefaultEmail: cfg.USSD.DefaultEmail,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ussd service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"gateways": selector.Configured(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promhttp.Handler(),
			reservations,
			settlement,
			selector,
			webhookGuard,
			ticketsService,
			votesService,
			settingsService,
			ussdService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shutting down gracefully")
}
