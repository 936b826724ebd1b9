package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/AnnoyBoT/internal/api"
	"github.com/Kerhoff/AnnoyBoT/internal/config"
	"github.com/Kerhoff/AnnoyBoT/internal/metrics"
	"github.com/Kerhoff/AnnoyBoT/internal/repository"
	"github.com/Kerhoff/AnnoyBoT/internal/repository/badger"
	"github.com/Kerhoff/AnnoyBoT/internal/repository/memory"
	"github.com/Kerhoff/AnnoyBoT/internal/repository/postgres"
	"github.com/Kerhoff/AnnoyBoT/internal/service"
	"github.com/Kerhoff/AnnoyBoT/internal/storage"
	"github.com/Kerhoff/AnnoyBoT/internal/telegram"
	"github.com/Kerhoff/AnnoyBoT/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.LogFormat)
	l.Info("Starting AnnoyBoT...")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Registry store
	registry, closeStore, err := openRegistry(cfg, l)
	if err != nil {
		l.Fatalf("Failed to open registry store: %v", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			l.Errorf("Failed to close registry store: %v", err)
		}
	}()

	// Object storage for image announcements
	uploader, err := storage.NewS3Uploader(ctx, storage.Config{
		Bucket:   cfg.S3Bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
		URLTTL:   cfg.S3URLTTL,
	}, l)
	if err != nil {
		l.Fatalf("Failed to create S3 uploader: %v", err)
	}

	// Telegram bot
	bot, err := telegram.NewBot(cfg.TelegramToken, l)
	if err != nil {
		l.Fatalf("Failed to create Telegram bot: %v", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Service layer
	svc := service.New(registry, bot, bot, uploader, m, l, service.Config{
		DashboardURL: cfg.DashboardURL,
	})

	// HTTP server for the activation API, dashboard and webhook
	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		l.Fatalf("Invalid trusted proxies: %v", err)
	}
	opts := api.Options{
		Ready:          bot.Ready,
		RateLimit:      cfg.ActivationRateLimit,
		RateBurst:      cfg.ActivationRateBurst,
		TrustedProxies: proxies,
	}
	if cfg.WebhookURL != "" {
		opts.Webhook = bot.WebhookHandler(svc, cfg.WebhookSecret)
	}
	apiServer := api.NewServer(svc, l, opts)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.PrometheusPort,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serve(l, "HTTP", httpServer, stop)
	serve(l, "Metrics", metricsServer, stop)

	if cfg.WebhookURL != "" {
		if err := bot.SetWebhook(cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			l.Fatalf("Failed to set webhook: %v", err)
		}
	} else {
		// Start Telegram bot polling
		go func() {
			if err := bot.Start(ctx, svc); err != nil {
				l.Errorf("Bot error: %v", err)
				stop()
			}
		}()
	}

	l.Info("AnnoyBoT started successfully")

	<-ctx.Done()
	l.Info("Received shutdown signal...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	l.Info("Shutting down HTTP servers...")
	for _, srv := range []*http.Server{httpServer, metricsServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Errorf("Server shutdown error: %v", err)
		}
	}

	l.Info("AnnoyBoT stopped")
}

func serve(l *logrus.Logger, name string, srv *http.Server, stop context.CancelFunc) {
	go func() {
		l.Infof("%s server listening on %s", name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("%s server error: %v", name, err)
			stop()
		}
	}()
}

// openRegistry opens the store selected by STORE_DRIVER
func openRegistry(cfg *config.Config, l *logrus.Logger) (repository.RegistryRepository, func() error, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := config.NewDatabase(cfg.DatabaseURL, l)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.NewRegistryRepository(db.DB), db.Close, nil

	case config.StoreBadger:
		db, err := badger.Open(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		l.Infof("Badger store opened at %s", cfg.BadgerPath)
		return badger.NewRegistryRepository(db), db.Close, nil

	case config.StoreMemory:
		l.Warn("Using the in-memory store; state is lost on restart")
		return memory.NewRegistryRepository(), func() error { return nil }, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
