package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"fleetshare.app/cloud/internal/billing"
	"fleetshare.app/cloud/internal/limits"
	"fleetshare.app/cloud/internal/testutil"
	"fleetshare.app/cloud/models"
)

func TestSignupAndCreateOrganization(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/users", "", CreateUserRequest{Email: "Chief.Pilot@Example.com", Name: "Chief"})
	assertStatus(t, w, http.StatusCreated)

	var signup SessionResponse
	decodeBody(t, w, &signup)
	if signup.Token == "" {
		t.Fatal("Expected session token")
	}
	if signup.User.Email != "chief.pilot@example.com" {
		t.Errorf("Expected normalized email, got %s", signup.User.Email)
	}

	w = env.do(t, http.MethodPost, "/api/v1/users", "", CreateUserRequest{Email: "chief.pilot@example.com"})
	assertErrorKind(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(t, http.MethodPost, "/api/v1/organizations", signup.Token, CreateOrganizationRequest{Name: "Skyline Flying Club"})
	assertStatus(t, w, http.StatusCreated)

	var org models.Organization
	decodeBody(t, w, &org)
	if org.Plan != models.PlanPro || org.SubscriptionStatus != models.StatusTrialing {
		t.Errorf("Expected PRO trial, got plan=%s status=%s", org.Plan, org.SubscriptionStatus)
	}
	if org.TrialEndsAt == nil || org.TrialEndsAt.Sub(time.Now()) < 13*24*time.Hour {
		t.Errorf("Expected trial ending in 14 days, got %v", org.TrialEndsAt)
	}

	member, err := env.store.GetMember(context.Background(), org.ID, signup.User.ID)
	if err != nil || member == nil || member.Role != models.RoleOwner {
		t.Errorf("Expected creator to be OWNER, got %v (err=%v)", member, err)
	}
}

func TestCreateUser_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)

	for _, email := range []string{"", "not-an-email", "Pilot <pilot@example.com>"} {
		w := env.do(t, http.MethodPost, "/api/v1/users", "", CreateUserRequest{Email: email})
		assertErrorKind(t, w, http.StatusBadRequest, "validation_error")
	}
}

func TestCheckLimitEndpoint(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.seed(t, testutil.CreateTestOrganization("org1", models.PlanFree), models.RoleViewer)
	env.seed(t, testutil.CreateTestOrganization("other", models.PlanFree))

	w := env.do(t, http.MethodGet, "/api/v1/organizations/org1/limits/aircraft", tokens[0], nil)
	assertStatus(t, w, http.StatusOK)

	var result limits.Result
	decodeBody(t, w, &result)
	if !result.Allowed || result.Limit != 1 || result.CurrentCount != 0 || result.Plan != "Free" {
		t.Errorf("Unexpected limit result: %+v", result)
	}

	w = env.do(t, http.MethodGet, "/api/v1/organizations/org1/limits/hangars", tokens[0], nil)
	assertErrorKind(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(t, http.MethodGet, "/api/v1/organizations/missing/limits/aircraft", tokens[0], nil)
	assertErrorKind(t, w, http.StatusNotFound, "not_found")

	w = env.do(t, http.MethodGet, "/api/v1/organizations/other/limits/aircraft", tokens[0], nil)
	assertErrorKind(t, w, http.StatusForbidden, "forbidden")
}

func TestCreateAircraft_EnforcesPlanLimit(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.seed(t, testutil.CreateTestOrganization("org1", models.PlanFree), models.RoleManager, models.RoleViewer)
	manager, viewer := tokens[0], tokens[1]

	w := env.do(t, http.MethodPost, "/api/v1/organizations/org1/aircraft", viewer, CreateAircraftRequest{Registration: "N172SP"})
	assertErrorKind(t, w, http.StatusForbidden, "forbidden")

	w = env.do(t, http.MethodPost, "/api/v1/organizations/org1/aircraft", manager, CreateAircraftRequest{Registration: "n172sp", Model: "C172"})
	assertStatus(t, w, http.StatusCreated)

	var aircraft models.Aircraft
	decodeBody(t, w, &aircraft)
	if aircraft.Registration != "N172SP" {
		t.Errorf("Expected upper-cased registration, got %s", aircraft.Registration)
	}

	w = env.do(t, http.MethodPost, "/api/v1/organizations/org1/aircraft", manager, CreateAircraftRequest{Registration: "N9876A"})
	assertStatus(t, w, http.StatusPaymentRequired)

	var denied LimitDeniedResponse
	decodeBody(t, w, &denied)
	if denied.Error != "plan_limit_reached" || denied.Result == nil || denied.Allowed || denied.CurrentCount != 1 || denied.Message == "" {
		t.Errorf("Unexpected denial: %+v", denied)
	}

	count, _ := env.store.CountAircraft(context.Background(), "org1")
	if count != 1 {
		t.Errorf("Expected 1 aircraft stored, got %d", count)
	}
}

func TestCreateMember_EnforcesSeatLimit(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.seed(t, testutil.CreateTestOrganization("org1", models.PlanFree), models.RoleOwner, models.RoleAdmin)
	owner, admin := tokens[0], tokens[1]

	w := env.do(t, http.MethodPost, "/api/v1/organizations/org1/members", admin, CreateMemberRequest{Email: "co-owner@example.com", Role: models.RoleOwner})
	assertErrorKind(t, w, http.StatusForbidden, "forbidden")

	w = env.do(t, http.MethodPost, "/api/v1/organizations/org1/members", owner, CreateMemberRequest{Email: "renter@example.com", Role: models.RoleViewer})
	assertStatus(t, w, http.StatusCreated)

	w = env.do(t, http.MethodPost, "/api/v1/organizations/org1/members", owner, CreateMemberRequest{Email: "renter@example.com", Role: models.RoleViewer})
	assertErrorKind(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(t, http.MethodPost, "/api/v1/organizations/org1/members", owner, CreateMemberRequest{Email: "fourth@example.com", Role: models.RoleViewer})
	assertStatus(t, w, http.StatusPaymentRequired)

	w = env.do(t, http.MethodPost, "/api/v1/organizations/org1/members", owner, CreateMemberRequest{Email: "x@example.com", Role: "PILOT"})
	assertErrorKind(t, w, http.StatusBadRequest, "validation_error")
}

func TestCreateOrganization_ClaimsAnonymousCheckout(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Sessions = map[string]*billing.CheckoutSession{
		"cs_anon": {ID: "cs_anon", CustomerID: "cus_anon", Tier: models.PlanEnterprise, Complete: true},
	}

	w := env.do(t, http.MethodPost, "/api/v1/users", "", CreateUserRequest{Email: "ops@example.com", Name: "Ops"})
	assertStatus(t, w, http.StatusCreated)
	var signup SessionResponse
	decodeBody(t, w, &signup)

	w = env.do(t, http.MethodPost, "/api/v1/organizations", signup.Token, CreateOrganizationRequest{Name: "Unknown Club", CheckoutSessionID: "cs_missing"})
	assertErrorKind(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(t, http.MethodPost, "/api/v1/organizations", signup.Token, CreateOrganizationRequest{Name: "Paid Club", CheckoutSessionID: "cs_anon"})
	assertStatus(t, w, http.StatusCreated)

	var org models.Organization
	decodeBody(t, w, &org)
	if org.Plan != models.PlanEnterprise || org.SubscriptionStatus != models.StatusActive || org.TrialEndsAt != nil {
		t.Errorf("Expected active ENTERPRISE without trial, got plan=%s status=%s trial=%v", org.Plan, org.SubscriptionStatus, org.TrialEndsAt)
	}

	stored, err := env.store.FindOrganizationByStripeCustomer(context.Background(), "cus_anon")
	if err != nil || stored == nil || stored.ID != org.ID {
		t.Fatalf("Expected cus_anon linked to %s, got %v (err=%v)", org.ID, stored, err)
	}

	w = env.do(t, http.MethodPost, "/api/v1/organizations", signup.Token, CreateOrganizationRequest{Name: "Second Club", CheckoutSessionID: "cs_anon"})
	assertErrorKind(t, w, http.StatusBadRequest, "validation_error")
}
