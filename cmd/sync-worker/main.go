package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/aryanmotgi/Arcus-Sheets/api/controllers"
	"github.com/aryanmotgi/Arcus-Sheets/api/routes"
	"github.com/aryanmotgi/Arcus-Sheets/internal/cron"
	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	"github.com/aryanmotgi/Arcus-Sheets/internal/keys"
	"github.com/aryanmotgi/Arcus-Sheets/internal/kpi"
	"github.com/aryanmotgi/Arcus-Sheets/internal/overrides"
	"github.com/aryanmotgi/Arcus-Sheets/internal/reconcile"
	"github.com/aryanmotgi/Arcus-Sheets/internal/syncer"
	pkgbigquery "github.com/aryanmotgi/Arcus-Sheets/pkg/bigquery"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/config"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/db"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/metrics"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/migrate"
	pkgpubsub "github.com/aryanmotgi/Arcus-Sheets/pkg/pubsub"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/redis"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/sheets"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/shopify"
)

const (
	serviceName     = "sync-worker"
	overrideLockTTL = 30 * time.Second
	shutdownTimeout = 20 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"dry_run": cfg.Sync.DryRun,
		"backend": cfg.Sync.OverridesBackend,
	})

	var closers []func() error
	defer func() {
		var closeErr error
		for i := len(closers) - 1; i >= 0; i-- {
			closeErr = multierr.Append(closeErr, closers[i]())
		}
		if closeErr != nil {
			logg.Error(context.Background(), "error closing resources", closeErr)
		}
	}()
	fail := func(msg string, err error) {
		logg.Error(ctx, msg, err)
		stop()
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		fail("failed to bootstrap redis", err)
	}
	closers = append(closers, redisClient.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewSyncMetrics(reg)
	cronMetrics := metrics.NewCronJobMetrics(reg)

	store, err := destinationStore(ctx, cfg, logg)
	if err != nil {
		fail("failed to bootstrap destination", err)
	}
	writer := destination.NewWriter(store, writerConfig(cfg.Writer), logg,
		destination.WithObserver(writerObserver{m: syncMetrics}))

	source, err := shopifyClient(cfg.Shopify, logg, syncMetrics)
	if err != nil {
		fail("failed to create shopify client", err)
	}

	resolver := keys.NewResolver(writer, cfg.Sheets.RawOrdersTab, logg)

	pingers := map[string]controllers.Pinger{"redis": redisClient}
	locker := overrides.NewRedisLocker(redisClient.Locker(), redisClient.OverrideLockKey, overrideLockTTL)
	ovStore, dbClient, err := overrideStore(ctx, cfg, logg, writer, locker)
	if err != nil {
		fail("failed to bootstrap override store", err)
	}
	if dbClient != nil {
		closers = append(closers, dbClient.Close)
		pingers["database"] = dbClient
	}

	overrideSvc := overrides.NewService(ovStore, resolver, locker, logg)

	aggOpts := []kpi.Option{}
	if cfg.BigQuery.Enabled() {
		bqClient, err := pkgbigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			fail("failed to bootstrap bigquery", err)
		}
		closers = append(closers, bqClient.Close)
		pingers["bigquery"] = bqClient

		history, err := kpi.NewHistoryWriter(bqClient, cfg.BigQuery.MetricsTable, kpi.RetryPolicy{})
		if err != nil {
			fail("failed to create metric history writer", err)
		}
		aggOpts = append(aggOpts, kpi.WithHistory(history))
	}
	aggregator := kpi.NewAggregator(writer, cfg.Sheets.MetricsTab, cfg.Sync.SetupCosts(), logg, aggOpts...)

	var notifier syncer.Notifier
	if cfg.PubSub.SyncTopic != "" {
		psClient, err := pkgpubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			fail("failed to bootstrap pubsub", err)
		}
		closers = append(closers, psClient.Close)
		pingers["pubsub"] = psClient
		if n := syncer.NewPubSubNotifier(psClient.SyncPublisher()); n != nil {
			notifier = n
		}
	}

	syncSvc, err := syncer.NewService(syncer.ServiceParams{
		Writer:     writer,
		Source:     source,
		Overrides:  overrideSvc,
		Resolver:   resolver,
		Engine:     reconcile.NewEngine(logg),
		Aggregator: aggregator,
		Notifier:   notifier,
		State:      syncer.NewRedisState(redisClient),
		Metrics:    syncMetrics,
		Logger:     logg,
		Tabs: syncer.Tabs{
			RawOrders:   cfg.Sheets.RawOrdersTab,
			Orders:      cfg.Sheets.OrdersTab,
			Fulfillment: cfg.Sheets.FulfillmentTab,
			Products:    cfg.Sheets.ProductsTab,
		},
		Filters:         shopify.Filters{Status: cfg.Sync.OrderStatus, Limit: cfg.Shopify.PageSize},
		DefaultUnitCost: cfg.Sync.UnitCost(),
		BackupDir:       cfg.Sync.BackupDir,
		RunTimeout:      cfg.Sync.RunTimeout,
	})
	if err != nil {
		fail("failed to create sync service", err)
	}

	job, err := cron.NewOrderSyncJob(syncSvc)
	if err != nil {
		fail("failed to create order sync job", err)
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Sync.LockTTL())
	if err != nil {
		fail("failed to create sync lock", err)
	}
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Sync.Interval,
	})
	if err != nil {
		fail("failed to create scheduler", err)
	}

	server := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Sync:      syncSvc,
			Lock:      scheduler,
			Overrides: overrideSvc,
			Pingers:   pingers,
			Gatherer:  reg,
			Limiter:   redisClient,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		defer close(serverErr)
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			stop()
		}
	}()

	logg.Info(ctx, "starting sync worker")
	runErr := scheduler.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("shutdown ops server: %w", err))
	}
	if err := <-serverErr; err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("ops server: %w", err))
	}

	if runErr != nil {
		logg.Error(ctx, "sync worker stopped unexpectedly", runErr)
		return
	}
	logg.Info(ctx, "sync worker shutting down gracefully")
}

func destinationStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (destination.Store, error) {
	if cfg.Sync.DryRun {
		logg.Warn(ctx, "dry run: writing to an in-memory destination")
		return destination.NewMemoryStore(), nil
	}
	client, err := sheets.NewClient(ctx, cfg.GCP, cfg.Sheets.SpreadsheetID, logg)
	if err != nil {
		return nil, err
	}
	return destination.NewSheetsStore(client), nil
}

func overrideStore(ctx context.Context, cfg *config.Config, logg *logger.Logger, w *destination.Writer, locker overrides.KeyLocker) (overrides.Store, *db.Client, error) {
	if cfg.Sync.OverridesBackend != config.OverridesBackendPostgres {
		return overrides.NewSheetStore(w, cfg.Sheets.OverridesTab, logg, overrides.WithTabLocker(locker)), nil, nil
	}
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return nil, nil, multierr.Append(err, dbClient.Close())
	}
	return overrides.NewDBStore(dbClient.DB()), dbClient, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("%s:%s", serviceName, env)
}
