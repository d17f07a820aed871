package billing

import (
	"context"
	"fmt"

	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/metrics"
	"fleetshare.app/cloud/models"
)

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
)

// HandleEvent applies a verified provider callback to the matching
// organization. Events that cannot be matched are acknowledged and ignored so
// the provider does not retry them forever.
func (b *Bridge) HandleEvent(ctx context.Context, event *Event) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch event.Type {
	case EventCheckoutCompleted:
		outcome, err = b.applyCheckout(ctx, event)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		outcome, err = b.applySubscription(ctx, event)
	case EventSubscriptionDeleted:
		outcome, err = b.applyCancellation(ctx, event)
	default:
		outcome = OutcomeIgnored
	}

	result := string(outcome)
	if err != nil {
		result = "error"
	}
	metrics.WebhookEvents.WithLabelValues(event.Type, result).Inc()

	logger.Info("Billing event processed", map[string]interface{}{
		"event_id":        event.ID,
		"event_type":      event.Type,
		"organization_id": event.OrganizationID,
		"outcome":         result,
	})
	return outcome, err
}

func (b *Bridge) applyCheckout(ctx context.Context, event *Event) (Outcome, error) {
	if event.OrganizationID == "" {
		// Anonymous checkout; the organization is created at signup.
		return OutcomeIgnored, nil
	}

	org, err := b.Store.GetOrganization(ctx, event.OrganizationID)
	if err != nil {
		return "", fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil {
		logger.Warn("Checkout completed for unknown organization", map[string]interface{}{
			"organization_id": event.OrganizationID,
			"event_id":        event.ID,
		})
		return OutcomeIgnored, nil
	}

	if err := b.Machine.Convert(org, event.Tier, models.StatusActive, b.Now()); err != nil {
		return "", err
	}
	if org.StripeCustomerID == "" {
		org.StripeCustomerID = event.CustomerID
	}
	if err := b.Store.SaveOrganization(ctx, org); err != nil {
		return "", fmt.Errorf("failed to save organization: %w", err)
	}
	return OutcomeApplied, nil
}

func (b *Bridge) applySubscription(ctx context.Context, event *Event) (Outcome, error) {
	org, err := b.findEventOrganization(ctx, event)
	if err != nil || org == nil {
		return OutcomeIgnored, err
	}

	now := b.Now()
	tier := b.eventTier(event)
	if event.Status == models.StatusActive && tier.Valid() {
		err = b.Machine.Convert(org, tier, event.Status, now)
	} else {
		err = b.Machine.Sync(org, event.Status, event.TrialEnd, now)
	}
	if err != nil {
		return "", err
	}

	if err := b.Store.SaveOrganization(ctx, org); err != nil {
		return "", fmt.Errorf("failed to save organization: %w", err)
	}
	return OutcomeApplied, nil
}

func (b *Bridge) applyCancellation(ctx context.Context, event *Event) (Outcome, error) {
	org, err := b.findEventOrganization(ctx, event)
	if err != nil || org == nil {
		return OutcomeIgnored, err
	}

	b.Machine.Cancel(org, b.Now())
	if err := b.Store.SaveOrganization(ctx, org); err != nil {
		return "", fmt.Errorf("failed to save organization: %w", err)
	}
	return OutcomeApplied, nil
}

// eventTier prefers the tier of the subscribed price, falling back to the
// metadata written at checkout when the price is not configured.
func (b *Bridge) eventTier(event *Event) models.Plan {
	if plan, ok := b.Catalog.ForPrice(event.PriceID); ok {
		return plan.Tier
	}
	return event.Tier
}

// findEventOrganization matches by customer id first, then by metadata.
func (b *Bridge) findEventOrganization(ctx context.Context, event *Event) (*models.Organization, error) {
	org, err := b.Store.FindOrganizationByStripeCustomer(ctx, event.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find organization by customer: %w", err)
	}
	if org != nil || event.OrganizationID == "" {
		return org, nil
	}

	org, err = b.Store.GetOrganization(ctx, event.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	return org, nil
}
