package config

import (
	"strings"
	"testing"
	"time"

	"fleetshare.app/cloud/models"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("SESSION_SECRET", "session-secret")
}

func TestNew_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.TrialDays != 14 {
		t.Errorf("Expected 14 trial days, got %d", cfg.TrialDays)
	}
	if cfg.TrialPlan != models.PlanPro {
		t.Errorf("Expected trial plan PRO, got %s", cfg.TrialPlan)
	}
	if cfg.BillingProviderTimeout != 10*time.Second {
		t.Errorf("Expected 10s provider timeout, got %v", cfg.BillingProviderTimeout)
	}
	if cfg.EmailService != "log" {
		t.Errorf("Expected log email service, got %s", cfg.EmailService)
	}
	if cfg.TrustProxyHeaders {
		t.Error("Expected proxy headers to be untrusted by default")
	}
}

func TestNew_RequiredValues(t *testing.T) {
	tests := []struct {
		name     string
		unset    string
		errorMsg string
	}{
		{"missing stripe key", "STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY"},
		{"missing webhook secret", "STRIPE_WEBHOOK_SECRET", "STRIPE_WEBHOOK_SECRET"},
		{"missing cron secret", "CRON_SECRET", "CRON_SECRET"},
		{"missing session secret", "SESSION_SECRET", "SESSION_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := New()
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error mentioning %s, got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"free trial plan", map[string]string{"TRIAL_PLAN": "FREE"}},
		{"unknown trial plan", map[string]string{"TRIAL_PLAN": "GOLD"}},
		{"zero trial days", map[string]string{"TRIAL_DAYS": "0"}},
		{"smtp without host", map[string]string{"EMAIL_SERVICE": "smtp"}},
		{"postmark without token", map[string]string{"EMAIL_SERVICE": "postmark"}},
		{"unknown email service", map[string]string{"EMAIL_SERVICE": "fax"}},
		{"bad duration", map[string]string{"BILLING_PROVIDER_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := New(); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestConfig_PriceIDs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STRIPE_PRICE_PRO", "price_pro")

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	ids := cfg.PriceIDs()
	if ids[models.PlanPro] != "price_pro" {
		t.Errorf("Expected price_pro, got %q", ids[models.PlanPro])
	}
	if ids[models.PlanEnterprise] != "" {
		t.Errorf("Expected empty enterprise price, got %q", ids[models.PlanEnterprise])
	}
}
