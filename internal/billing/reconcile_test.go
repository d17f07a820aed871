package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetshare.app/cloud/internal/billing"
	"fleetshare.app/cloud/internal/trial"
	"fleetshare.app/cloud/models"
)

func TestHandleEvent_CheckoutCompletedConvertsTrial(t *testing.T) {
	f := newFixture(t, configuredPrices)
	ctx := context.Background()

	outcome, err := f.bridge.HandleEvent(ctx, &billing.Event{
		ID:             "evt_1",
		Type:           billing.EventCheckoutCompleted,
		OrganizationID: "org1",
		CustomerID:     "cus_from_checkout",
		Tier:           models.PlanEnterprise,
		Status:         models.StatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, outcome)

	org, _ := f.store.GetOrganization(ctx, "org1")
	assert.Equal(t, models.PlanEnterprise, org.Plan)
	assert.Equal(t, trial.StateSubscribed, trial.StateOf(org, time.Now()))
	assert.Nil(t, org.TrialEndsAt)
	assert.Equal(t, "cus_from_checkout", org.StripeCustomerID)
}

func TestHandleEvent_AnonymousCheckoutIsAcknowledged(t *testing.T) {
	f := newFixture(t, configuredPrices)

	outcome, err := f.bridge.HandleEvent(context.Background(), &billing.Event{
		Type: billing.EventCheckoutCompleted,
		Tier: models.PlanPro,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeIgnored, outcome)
}

func TestHandleEvent_SubscriptionLifecycle(t *testing.T) {
	f := newFixture(t, configuredPrices)
	ctx := context.Background()
	_, err := f.store.SetStripeCustomerID(ctx, "org1", "cus_1")
	require.NoError(t, err)

	outcome, err := f.bridge.HandleEvent(ctx, &billing.Event{
		Type:       billing.EventSubscriptionUpdated,
		CustomerID: "cus_1",
		Status:     "past_due",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, outcome)

	org, _ := f.store.GetOrganization(ctx, "org1")
	assert.Equal(t, models.SubscriptionStatus("past_due"), org.SubscriptionStatus)
	assert.Nil(t, org.TrialEndsAt)

	_, err = f.bridge.HandleEvent(ctx, &billing.Event{
		Type:       billing.EventSubscriptionDeleted,
		CustomerID: "cus_1",
		Status:     models.StatusCanceled,
	})
	require.NoError(t, err)

	org, _ = f.store.GetOrganization(ctx, "org1")
	assert.Equal(t, models.PlanFree, org.Plan)
	assert.Equal(t, models.StatusCanceled, org.SubscriptionStatus)
}

func TestHandleEvent_UnmatchedAndUnknownEvents(t *testing.T) {
	f := newFixture(t, configuredPrices)
	ctx := context.Background()

	outcome, err := f.bridge.HandleEvent(ctx, &billing.Event{
		Type:       billing.EventSubscriptionUpdated,
		CustomerID: "cus_nobody",
		Status:     models.StatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeIgnored, outcome)

	outcome, err = f.bridge.HandleEvent(ctx, &billing.Event{Type: "invoice.paid"})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeIgnored, outcome)
}

func TestHandleEvent_SubscriptionTierFollowsPrice(t *testing.T) {
	f := newFixture(t, configuredPrices)
	ctx := context.Background()
	_, err := f.store.SetStripeCustomerID(ctx, "org1", "cus_x")
	require.NoError(t, err)

	_, err = f.bridge.HandleEvent(ctx, &billing.Event{
		Type:       billing.EventSubscriptionUpdated,
		CustomerID: "cus_x",
		Tier:       models.PlanEnterprise,
		PriceID:    "price_ent",
		Status:     models.StatusActive,
	})
	require.NoError(t, err)
	org, _ := f.store.GetOrganization(ctx, "org1")
	require.Equal(t, models.PlanEnterprise, org.Plan)

	// Downgraded in the billing portal; the metadata still names the old tier.
	outcome, err := f.bridge.HandleEvent(ctx, &billing.Event{
		Type:       billing.EventSubscriptionUpdated,
		CustomerID: "cus_x",
		Tier:       models.PlanEnterprise,
		PriceID:    "price_pro",
		Status:     models.StatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, outcome)

	org, _ = f.store.GetOrganization(ctx, "org1")
	assert.Equal(t, models.PlanPro, org.Plan)
	assert.Equal(t, models.StatusActive, org.SubscriptionStatus)
}

func TestHandleEvent_UnknownPriceFallsBackToMetadata(t *testing.T) {
	f := newFixture(t, configuredPrices)
	ctx := context.Background()
	_, err := f.store.SetStripeCustomerID(ctx, "org1", "cus_x")
	require.NoError(t, err)

	_, err = f.bridge.HandleEvent(ctx, &billing.Event{
		Type:       billing.EventSubscriptionUpdated,
		CustomerID: "cus_x",
		Tier:       models.PlanEnterprise,
		PriceID:    "price_legacy",
		Status:     models.StatusActive,
	})
	require.NoError(t, err)

	org, _ := f.store.GetOrganization(ctx, "org1")
	assert.Equal(t, models.PlanEnterprise, org.Plan)
}
