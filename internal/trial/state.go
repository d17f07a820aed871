// Package trial implements the organization trial and subscription lifecycle:
// starting trials, converting them to paid plans, expiring them and warning
// owners before they lapse.
package trial

import (
	"time"

	"fleetshare.app/cloud/internal/apperror"
	"fleetshare.app/cloud/models"
)

type State string

const (
	StateNoTrial      State = "NO_TRIAL"
	StateTrialing     State = "TRIALING"
	StateTrialExpired State = "TRIAL_EXPIRED"
	StateSubscribed   State = "SUBSCRIBED"
)

// StateOf derives the lifecycle state from stored fields. A trial whose end
// has passed but has not been swept yet reports TRIAL_EXPIRED.
func StateOf(org *models.Organization, now time.Time) State {
	switch {
	case org.SubscriptionStatus == models.StatusActive:
		return StateSubscribed
	case org.IsTrialing() && org.TrialEndsAt != nil && org.TrialEndsAt.Before(now):
		return StateTrialExpired
	case org.IsTrialing():
		return StateTrialing
	default:
		return StateNoTrial
	}
}

const DefaultTrialDays = 14

// Machine applies lifecycle transitions to an organization in memory. Callers
// persist the result.
type Machine struct {
	TrialDays int
	TrialPlan models.Plan
}

func NewMachine(trialDays int, trialPlan models.Plan) *Machine {
	if trialDays <= 0 {
		trialDays = DefaultTrialDays
	}
	if trialPlan == "" {
		trialPlan = models.PlanPro
	}
	return &Machine{TrialDays: trialDays, TrialPlan: trialPlan}
}

// Begin starts a trial on a newly created organization.
func (m *Machine) Begin(org *models.Organization, now time.Time) {
	ends := now.UTC().AddDate(0, 0, m.TrialDays)
	org.Plan = m.TrialPlan
	org.SubscriptionStatus = models.StatusTrialing
	org.TrialEndsAt = &ends
	org.UpdatedAt = now.UTC()
}

// Convert moves an organization onto a purchased tier with the provider's
// subscription status. Any pending trial end is cleared.
func (m *Machine) Convert(org *models.Organization, tier models.Plan, status models.SubscriptionStatus, now time.Time) error {
	if !tier.Valid() {
		return apperror.Validation("unknown plan %q", tier)
	}
	org.Plan = tier
	org.SubscriptionStatus = status
	org.TrialEndsAt = nil
	org.UpdatedAt = now.UTC()
	return nil
}

// Sync records a provider status change. A provider-side trial keeps its end
// date so the trialing invariant holds; any other status clears it.
func (m *Machine) Sync(org *models.Organization, status models.SubscriptionStatus, trialEnd *time.Time, now time.Time) error {
	if status == models.StatusTrialing {
		if trialEnd == nil {
			return apperror.Validation("trialing subscription without trial end")
		}
		ends := trialEnd.UTC()
		org.TrialEndsAt = &ends
	} else {
		org.TrialEndsAt = nil
	}
	org.SubscriptionStatus = status
	org.UpdatedAt = now.UTC()
	return nil
}

// Cancel drops the organization to FREE after its subscription ends.
func (m *Machine) Cancel(org *models.Organization, now time.Time) {
	org.Plan = models.PlanFree
	org.SubscriptionStatus = models.StatusCanceled
	org.TrialEndsAt = nil
	org.UpdatedAt = now.UTC()
}
