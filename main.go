package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"

	"fleetshare.app/cloud/handlers"
	"fleetshare.app/cloud/internal/billing"
	"fleetshare.app/cloud/internal/config"
	"fleetshare.app/cloud/internal/email"
	"fleetshare.app/cloud/internal/limits"
	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/plans"
	"fleetshare.app/cloud/internal/ratelimit"
	"fleetshare.app/cloud/internal/session"
	"fleetshare.app/cloud/internal/trial"
	"fleetshare.app/cloud/internal/version"
	"fleetshare.app/cloud/storage"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		logger.Error("Invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	release := version.Load("VERSION")

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Release:          release,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		logger.Error("sentry.Init failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer sentry.Flush(2 * time.Second)

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", map[string]interface{}{
			"path":  cfg.DatabasePath,
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer store.Close()

	sender, err := email.New(email.Settings{
		Service:              cfg.EmailService,
		From:                 cfg.EmailFrom,
		SMTPHost:             cfg.SMTPHost,
		SMTPPort:             cfg.SMTPPort,
		SMTPUsername:         cfg.SMTPUsername,
		SMTPPassword:         cfg.SMTPPassword,
		PostmarkServerToken:  cfg.PostmarkServerToken,
		PostmarkAccountToken: cfg.PostmarkAccountToken,
	})
	if err != nil {
		logger.Error("Failed to configure email", map[string]interface{}{
			"service": cfg.EmailService,
			"error":   err.Error(),
		})
		os.Exit(1)
	}

	catalog := plans.NewCatalog(cfg.PriceIDs())
	machine := trial.NewMachine(cfg.TrialDays, cfg.TrialPlan)
	provider := billing.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	server := handlers.NewHttpServer(handlers.Deps{
		Storage:           store,
		Catalog:           catalog,
		Limits:            limits.NewChecker(store, catalog),
		Machine:           machine,
		Sweeper:           trial.NewSweeper(store),
		Notifier:          trial.NewNotifier(store, sender, cfg.AppURL),
		Billing:           billing.NewBridge(store, provider, catalog, machine, cfg.AppURL, cfg.BillingProviderTimeout),
		Webhooks:          provider,
		Sessions:          session.NewManager(cfg.SessionSecret, cfg.SessionTTL),
		CheckoutLimiter:   ratelimit.New(cfg.CheckoutRateLimit, cfg.CheckoutRateWindow),
		CronSecret:        cfg.CronSecret,
		AllowedOrigins:    []string{cfg.AppURL},
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Version:           release,
	})

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           sentryHandler.Handle(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("FleetShare Cloud API starting", map[string]interface{}{
			"version": release,
			"port":    cfg.Port,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", map[string]interface{}{
				"error": err.Error(),
			})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	logger.Info("Server stopped")
}
