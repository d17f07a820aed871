package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPlan_Valid(t *testing.T) {
	tests := []struct {
		plan  Plan
		valid bool
	}{
		{PlanFree, true},
		{PlanPro, true},
		{PlanEnterprise, true},
		{"", false},
		{"pro", false},
		{"GOLD", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			if got := tt.plan.Valid(); got != tt.valid {
				t.Errorf("Expected Valid()=%v for %q, got %v", tt.valid, tt.plan, got)
			}
		})
	}
}

func TestOrganization_IsTrialing(t *testing.T) {
	ends := time.Now().Add(48 * time.Hour)
	org := Organization{
		ID:                 "org1",
		Plan:               PlanPro,
		SubscriptionStatus: StatusTrialing,
		TrialEndsAt:        &ends,
	}

	if !org.IsTrialing() {
		t.Error("Expected trialing organization")
	}

	org.SubscriptionStatus = "past_due"
	if org.IsTrialing() {
		t.Error("past_due should not count as trialing")
	}
}

func TestOrganization_HasBillingAccount(t *testing.T) {
	var org Organization
	if org.HasBillingAccount() {
		t.Error("Expected no billing account on zero value")
	}

	org.StripeCustomerID = "cus_123"
	if !org.HasBillingAccount() {
		t.Error("Expected billing account once customer id is set")
	}
}

func TestOrganization_JSONOmitsEmptySubscription(t *testing.T) {
	org := Organization{ID: "org1", Name: "Flying Club", Plan: PlanFree}

	data, err := json.Marshal(org)
	if err != nil {
		t.Fatalf("Failed to marshal organization: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal organization: %v", err)
	}

	for _, key := range []string{"subscription_status", "trial_ends_at", "stripe_customer_id"} {
		if _, ok := raw[key]; ok {
			t.Errorf("Expected %s to be omitted, got %v", key, raw[key])
		}
	}

	if raw["plan"] != "FREE" {
		t.Errorf("Expected plan FREE, got %v", raw["plan"])
	}
}
