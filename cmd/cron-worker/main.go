package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/easevote-backend/internal/cron"
	"github.com/angelmondragon/easevote-backend/internal/events"
	"github.com/angelmondragon/easevote-backend/internal/fulfillment"
	"github.com/angelmondragon/easevote-backend/internal/gateways"
	"github.com/angelmondragon/easevote-backend/internal/inventory"
	"github.com/angelmondragon/easevote-backend/internal/purchases"
	"github.com/angelmondragon/easevote-backend/internal/settings"
	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/db"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	"github.com/angelmondragon/easevote-backend/pkg/instance"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
	"github.com/angelmondragon/easevote-backend/pkg/metrics"
	"github.com/angelmondragon/easevote-backend/pkg/migrate"
	"github.com/angelmondragon/easevote-backend/pkg/outbox"
	"github.com/angelmondragon/easevote-backend/pkg/redis"
)

const lockNameFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	settlement, err := buildSettlement(context.Background(), cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement coordinator", err)
		os.Exit(1)
	}
	purchasesRepo := purchases.NewRepository(dbClient.DB())

	reaper, err := cron.NewExpiryReaper(cron.ExpiryReaperParams{
		Logger:     logg,
		Purchases:  purchasesRepo,
		Settlement: settlement,
		BatchSize:  cfg.Purchases.ReaperBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry reaper", err)
		os.Exit(1)
	}
	eventStatus, err := cron.NewEventStatusJob(cron.EventStatusJobParams{
		Logger: logg,
		Events: events.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create event status job", err)
		os.Exit(1)
	}
	reconcile, err := cron.NewFulfillmentReconcileJob(cron.FulfillmentReconcileJobParams{
		Logger:     logg,
		Purchases:  purchasesRepo,
		Settlement: settlement,
		BatchSize:  cfg.Purchases.ReaperBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment reconcile job", err)
		os.Exit(1)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Repository:   outbox.NewRepository(dbClient.DB()),
		DLQ:          outbox.NewDLQRepository(dbClient.DB()),
		Retention:    cfg.Outbox.RetentionDays,
		DLQRetention: cfg.Outbox.DLQRetentionDays,
		MinAttempts:  cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(
		reaper,
		eventStatus,
		cron.Every(5*time.Minute, reconcile),
		cron.Every(24*time.Hour, retention),
	)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Purchases.ReaperInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"interval":    cfg.Purchases.ReaperInterval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}

// buildSettlement wires the coordinator the reaper and reconcile jobs settle through.
func buildSettlement(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (purchases.SettlementCoordinator, error) {
	configured, err := gateways.Configure(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	fallback, err := enums.ParseGatewayName(cfg.Gateway.Default)
	if err != nil {
		return nil, err
	}
	selector, err := gateways.NewSelector(fallback, settings.NewRepository(dbClient.DB()), configured...)
	if err != nil {
		return nil, err
	}
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger := inventory.NewLedger()
	engine, err := fulfillment.NewEngine(ledger, emitter)
	if err != nil {
		return nil, err
	}
	return purchases.NewSettlementCoordinator(purchases.CoordinatorParams{
		Tx:          dbClient,
		Repo:        purchases.NewRepository(dbClient.DB()),
		Ledger:      ledger,
		Fulfillment: engine,
		Gateways:    selector,
		Outbox:      emitter,
		Metrics:     metrics.NewPurchaseMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
	})
}
