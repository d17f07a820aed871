// Command trialcron calls the API's trial endpoints on a schedule.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/version"
)

type config struct {
	BaseURL  string        `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	Secret   string        `env:"CRON_SECRET,required"`
	Schedule string        `env:"TRIAL_CRON_SCHEDULE" envDefault:"0 9 * * *"`
	Timeout  time.Duration `env:"TRIAL_CRON_TIMEOUT" envDefault:"2m"`
	LogLevel string        `env:"LOG_LEVEL" envDefault:"INFO"`
}

func main() {
	once := flag.Bool("once", false, "Run the daily trial jobs once and exit")
	flag.Parse()

	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.Error("Invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	r := newRunner(cfg.BaseURL, cfg.Secret, version.UserAgent("trialcron", version.Load("VERSION")), cfg.Timeout)

	if *once {
		if err := r.runDaily(context.Background()); err != nil {
			logger.Error("Trial jobs failed", map[string]interface{}{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(cfg.Schedule, func() {
		logger.Info("Starting daily trial jobs")
		if err := r.runDaily(context.Background()); err != nil {
			logger.Error("Daily trial jobs failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	})
	if err != nil {
		logger.Error("Failed to schedule trial jobs", map[string]interface{}{
			"schedule": cfg.Schedule,
			"error":    err.Error(),
		})
		os.Exit(1)
	}

	c.Start()
	logger.Info("Trial cron started", map[string]interface{}{
		"schedule": cfg.Schedule,
		"base_url": cfg.BaseURL,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("Trial cron stopped")
}
