package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"fleetshare.app/cloud/internal/testutil"
	"fleetshare.app/cloud/internal/trial"
	"fleetshare.app/cloud/models"
)

func TestCronEndpoints_RequireSecret(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/cron/expire-trials"},
		{http.MethodGet, "/api/cron/expire-trials"},
		{http.MethodPost, "/api/cron/trial-notifications"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			w := env.do(t, p.method, p.path, "", nil)
			assertErrorKind(t, w, http.StatusUnauthorized, "unauthorized")

			w = env.do(t, p.method, p.path, "not-the-secret", nil)
			assertErrorKind(t, w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func TestCronEndpoints_EmptySecretRejectsEverything(t *testing.T) {
	env := newTestEnv(t)
	env.server.CronSecret = ""

	w := env.do(t, http.MethodPost, "/api/cron/expire-trials", "", nil)
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestExpireTrialsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.seed(t, testutil.CreateTrialingOrganization("lapsed", now.Add(-time.Hour)), models.RoleOwner)
	env.seed(t, testutil.CreateTrialingOrganization("soon", now.Add(24*time.Hour)), models.RoleOwner)
	env.seed(t, testutil.CreateTrialingOrganization("later", now.Add(10*24*time.Hour)), models.RoleOwner)

	w := env.do(t, http.MethodGet, "/api/cron/expire-trials", testCronSecret, nil)
	assertStatus(t, w, http.StatusOK)

	var status trial.Status
	decodeBody(t, w, &status)
	if status.NeedsProcessing != 1 || status.ExpiringSoon != 1 || status.ActiveTrials != 2 {
		t.Errorf("Unexpected trial status: %+v", status)
	}

	w = env.do(t, http.MethodPost, "/api/cron/expire-trials", testCronSecret, nil)
	assertStatus(t, w, http.StatusOK)

	var result trial.SweepResult
	decodeBody(t, w, &result)
	if result.Expired != 1 {
		t.Errorf("Expected 1 expired trial, got %d", result.Expired)
	}

	org, _ := env.store.GetOrganization(context.Background(), "lapsed")
	if org.Plan != models.PlanFree || org.IsTrialing() {
		t.Errorf("Expected lapsed trial downgraded, got %+v", org)
	}

	w = env.do(t, http.MethodPost, "/api/cron/expire-trials", testCronSecret, nil)
	assertStatus(t, w, http.StatusOK)
	decodeBody(t, w, &result)
	if result.Expired != 0 {
		t.Errorf("Expected second sweep to expire nothing, got %d", result.Expired)
	}
}

func TestTrialNotificationsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.seed(t, testutil.CreateTrialingOrganization("two-days", now.Add(48*time.Hour)), models.RoleOwner, models.RoleViewer)
	env.seed(t, testutil.CreateTrialingOrganization("tomorrow", now.Add(24*time.Hour)), models.RoleOwner)
	env.seed(t, testutil.CreateTrialingOrganization("far", now.Add(10*24*time.Hour)), models.RoleOwner)
	env.seed(t, testutil.CreateTrialingOrganization("ownerless", now.Add(24*time.Hour)), models.RoleAdmin)

	w := env.do(t, http.MethodPost, "/api/cron/trial-notifications", testCronSecret, nil)
	assertStatus(t, w, http.StatusOK)

	var report trial.Report
	decodeBody(t, w, &report)
	if report.Checked != 4 {
		t.Errorf("Expected 4 trials checked, got %d", report.Checked)
	}
	if report.ExpiringInTwoDays != 1 || report.ExpiringTomorrow != 1 {
		t.Errorf("Unexpected notice counts: %+v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].OrganizationID != "ownerless" {
		t.Errorf("Expected one failure for ownerless, got %+v", report.Failures)
	}

	// Only owners are notified.
	if env.sender.Count() != 2 {
		t.Errorf("Expected 2 emails, got %d", env.sender.Count())
	}
	if len(env.sender.SentTo("two-days-user-1@two-days.example.com")) != 0 {
		t.Error("Expected viewer not to be notified")
	}
}
