package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleetshare.app/cloud/internal/billing"
	"fleetshare.app/cloud/internal/billing/billingtest"
	"fleetshare.app/cloud/internal/limits"
	"fleetshare.app/cloud/internal/plans"
	"fleetshare.app/cloud/internal/ratelimit"
	"fleetshare.app/cloud/internal/session"
	"fleetshare.app/cloud/internal/testutil"
	"fleetshare.app/cloud/internal/trial"
	"fleetshare.app/cloud/models"
	"fleetshare.app/cloud/storage"
)

const (
	testCronSecret    = "cron-secret-for-tests"
	testWebhookSecret = "whsec_handlers_test"
)

type testEnv struct {
	server   *Server
	store    *storage.MemoryStorage
	provider *billingtest.FakeProvider
	sender   *testutil.FakeSender
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := testutil.TestStorage()
	catalog := plans.NewCatalog(plans.PriceIDs{
		models.PlanPro:        "price_pro",
		models.PlanEnterprise: "price_ent",
	})
	machine := trial.NewMachine(14, models.PlanPro)
	provider := &billingtest.FakeProvider{}
	sender := testutil.NewFakeSender()
	sessions := session.NewManager("session-secret", time.Hour)

	server := NewHttpServer(Deps{
		Storage:         store,
		Catalog:         catalog,
		Limits:          limits.NewChecker(store, catalog),
		Machine:         machine,
		Sweeper:         trial.NewSweeper(store),
		Notifier:        trial.NewNotifier(store, sender, "https://app.fleetshare.test"),
		Billing:         billing.NewBridge(store, provider, catalog, machine, "https://app.fleetshare.test", time.Second),
		Webhooks:        billing.NewStripeProvider("", testWebhookSecret),
		Sessions:        sessions,
		CheckoutLimiter: ratelimit.New(100, time.Minute),
		CronSecret:      testCronSecret,
		Version:         "test",
	})

	return &testEnv{
		server:   server,
		store:    store,
		provider: provider,
		sender:   sender,
		sessions: sessions,
	}
}

// seed saves org with one member per role and returns a session token per
// member, in order.
func (e *testEnv) seed(t *testing.T, org *models.Organization, roles ...models.Role) []string {
	t.Helper()
	userIDs := testutil.SeedOrganization(t, e.store, org, roles...)

	tokens := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		token, _, err := e.sessions.Issue(id, id+"@example.com")
		if err != nil {
			t.Fatalf("Failed to issue token: %v", err)
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v (body=%q)", err, w.Body.String())
	}
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d (body=%s)", expected, w.Code, w.Body.String())
	}
}

func assertErrorKind(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	assertStatus(t, w, status)

	var response map[string]string
	decodeBody(t, w, &response)
	if response["kind"] != kind {
		t.Errorf("Expected error kind %q, got %q", kind, response["kind"])
	}
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}
