package models

import "time"

type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

// Valid reports whether p is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// SubscriptionStatus is passed through from the payment provider as-is. Only
// StatusTrialing is interpreted locally; an empty value means no status.
type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = ""
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusCanceled SubscriptionStatus = "canceled"
)

type Organization struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Plan               Plan               `json:"plan"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status,omitempty"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	StripeCustomerID   string             `json:"stripe_customer_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (o *Organization) IsTrialing() bool {
	return o.SubscriptionStatus == StatusTrialing
}

func (o *Organization) HasBillingAccount() bool {
	return o.StripeCustomerID != ""
}
