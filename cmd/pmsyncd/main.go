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

	"github.com/SherClockHolmes/webpush-go"

	"reservation-sync-backend/config"
	"reservation-sync-backend/internal/api"
	"reservation-sync-backend/internal/automation"
	"reservation-sync-backend/internal/db"
	"reservation-sync-backend/internal/lobbypms"
	"reservation-sync-backend/internal/notification"
	"reservation-sync-backend/internal/settings"
	"reservation-sync-backend/internal/store"
	syncsvc "reservation-sync-backend/internal/sync"
	"reservation-sync-backend/pkg/logger"
	"reservation-sync-backend/pkg/metrics"
)

func main() {
	log := logger.New()
	defer log.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalw("failed to load configuration", "path", configPath, "error", err)
	}
	log.Infow("configuration loaded", "path", configPath)

	if cfg.Encryption.Key == "" {
		log.Fatalw("settings encryption key must be configured")
	}
	cipher, err := settings.NewCipher(cfg.Encryption.Key)
	if err != nil {
		log.Fatalw("invalid settings encryption key", "error", err)
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		log.Warnw("VAPID keys not configured, staff push notifications disabled")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatalw("failed to initialize database", "error", err)
	}
	log.Infow("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	m := metrics.New("reservation_sync")
	resolver := settings.NewResolver(appStore, cipher, log)
	branches := syncsvc.NewBranchResolver(appStore, resolver, log)

	newClient := func(s *settings.Settings) *lobbypms.Client {
		return lobbypms.NewClient(s, log)
	}
	syncClientFactory := func(s *settings.Settings) syncsvc.PMSClient {
		return newClient(s)
	}

	var notifier syncsvc.Notifier
	if webpushOptions != nil {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, log)
		pool.Start(ctx)
		notifier = pool
	}

	tasks := automation.NewWebhookClient(cfg.Automation.TaskWebhookURL, log)
	mapper := syncsvc.NewMapper(appStore, m, log, automation.RandomPinIssuer{}, notifier, tasks)

	orchestrator := syncsvc.NewOrchestrator(
		appStore, resolver, branches, mapper, cfg.Sync, m, log, syncClientFactory)
	autoCancel := syncsvc.NewAutoCanceller(
		appStore, resolver, cfg.AutoCancel, m, log, syncClientFactory)

	var schedulers []*syncsvc.Scheduler
	if cfg.Sync.Enabled {
		s := syncsvc.NewScheduler("reservation-sync", cfg.Sync.Interval, func(ctx context.Context) {
			orchestrator.SyncAll(ctx)
		}, log)
		if err := s.Start(); err != nil {
			log.Fatalw("failed to start sync scheduler", "error", err)
		}
		schedulers = append(schedulers, s)
	}
	if cfg.AutoCancel.Enabled {
		s := syncsvc.NewScheduler("auto-cancel", cfg.AutoCancel.Interval, func(ctx context.Context) {
			autoCancel.Run(ctx)
		}, log)
		if err := s.Start(); err != nil {
			log.Fatalw("failed to start auto-cancel scheduler", "error", err)
		}
		schedulers = append(schedulers, s)
	}

	handler := api.NewHandler(
		appStore, resolver, branches, orchestrator, autoCancel, mapper,
		webpushOptions, newClient, log)
	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Infow("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("HTTP server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Infow("shutdown signal received, stopping services")

	for _, s := range schedulers {
		s.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("HTTP server shutdown failed", "error", err)
	}
	log.Infow("server stopped")
}
