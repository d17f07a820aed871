package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"fleetshare.app/cloud/models"
)

type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"fleetshare.db"`
	AppURL       string `env:"APP_URL" envDefault:"http://localhost:3000"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"INFO"`
	SentryDSN    string `env:"SENTRY_DSN"`

	StripeSecretKey        string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret    string        `env:"STRIPE_WEBHOOK_SECRET"`
	StripePricePro         string        `env:"STRIPE_PRICE_PRO"`
	StripePriceEnterprise  string        `env:"STRIPE_PRICE_ENTERPRISE"`
	BillingProviderTimeout time.Duration `env:"BILLING_PROVIDER_TIMEOUT" envDefault:"10s"`

	CronSecret    string        `env:"CRON_SECRET"`
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	TrialDays int         `env:"TRIAL_DAYS" envDefault:"14"`
	TrialPlan models.Plan `env:"TRIAL_PLAN" envDefault:"PRO"`

	CheckoutRateLimit  int           `env:"CHECKOUT_RATE_LIMIT" envDefault:"10"`
	CheckoutRateWindow time.Duration `env:"CHECKOUT_RATE_WINDOW" envDefault:"10m"`
	TrustProxyHeaders  bool          `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	EmailService         string `env:"EMAIL_SERVICE" envDefault:"log"` // "smtp", "postmark" or "log"
	EmailFrom            string `env:"EMAIL_FROM" envDefault:"billing@fleetshare.app"`
	SMTPHost             string `env:"SMTP_HOST"`
	SMTPPort             string `env:"SMTP_PORT"`
	SMTPUsername         string `env:"SMTP_USERNAME"`
	SMTPPassword         string `env:"SMTP_PASSWORD"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
}

// New reads configuration from the environment, loading a .env file first if
// one exists. Missing price ids are allowed; checkout for that tier fails with
// a configuration error instead.
func New() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.StripeSecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY environment variable is required")
	}

	if c.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET environment variable is required")
	}

	if c.CronSecret == "" {
		return errors.New("CRON_SECRET environment variable is required")
	}

	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET environment variable is required")
	}

	if !c.TrialPlan.Valid() || c.TrialPlan == models.PlanFree {
		return fmt.Errorf("TRIAL_PLAN must be PRO or ENTERPRISE, got %q", c.TrialPlan)
	}

	if c.TrialDays <= 0 {
		return errors.New("TRIAL_DAYS must be positive")
	}

	switch c.EmailService {
	case "smtp":
		if c.SMTPHost == "" || c.SMTPPort == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return errors.New("SMTP_HOST, SMTP_PORT, SMTP_USERNAME, and SMTP_PASSWORD environment variables are required when using SMTP")
		}
	case "postmark":
		if c.PostmarkServerToken == "" {
			return errors.New("POSTMARK_SERVER_TOKEN environment variable is required when using Postmark")
		}
	case "log":
	default:
		return fmt.Errorf("EMAIL_SERVICE must be smtp, postmark or log, got %q", c.EmailService)
	}

	return nil
}

// PriceIDs returns the configured provider price per purchasable tier.
func (c *Config) PriceIDs() map[models.Plan]string {
	return map[models.Plan]string{
		models.PlanPro:        c.StripePricePro,
		models.PlanEnterprise: c.StripePriceEnterprise,
	}
}
