package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"

	"fleetshare.app/cloud/models"
)

// Metadata keys attached to provider objects so callbacks can be matched back
// to an organization.
const (
	MetadataOrganizationID = "organization_id"
	MetadataPlan           = "plan"
)

type CustomerParams struct {
	OrganizationID string
	Name           string
	Email          string
}

type CheckoutParams struct {
	PriceID        string
	Tier           models.Plan
	CustomerID     string // empty for anonymous checkout
	OrganizationID string // empty for anonymous checkout
	SuccessURL     string
	CancelURL      string
}

// Event is a verified provider callback reduced to the fields reconciliation
// needs. For subscription events PriceID is the price of the first item; it
// follows plan switches made in the billing portal, which leave Tier (from
// metadata) untouched.
type Event struct {
	ID             string
	Type           string
	OrganizationID string
	CustomerID     string
	Tier           models.Plan
	PriceID        string
	Status         models.SubscriptionStatus
	TrialEnd       *time.Time
}

// CheckoutSession is a provider checkout as seen when a buyer returns from it.
type CheckoutSession struct {
	ID             string
	CustomerID     string
	OrganizationID string
	Tier           models.Plan
	Complete       bool
}

var ErrCheckoutSessionNotFound = errors.New("checkout session not found")

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Provider is the payment provider as seen by the bridge.
type Provider interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type StripeProvider struct {
	webhookSecret string
}

func NewStripeProvider(apiKey, webhookSecret string) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{webhookSecret: webhookSecret}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	customerParams := &stripe.CustomerParams{
		Name: stripe.String(params.Name),
		Metadata: map[string]string{
			MetadataOrganizationID: params.OrganizationID,
		},
	}
	if params.Email != "" {
		customerParams.Email = stripe.String(params.Email)
	}
	customerParams.Context = ctx

	c, err := customer.New(customerParams)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	metadata := map[string]string{MetadataPlan: string(params.Tier)}
	if params.OrganizationID != "" {
		metadata[MetadataOrganizationID] = params.OrganizationID
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata:   metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if params.CustomerID != "" {
		sessionParams.Customer = stripe.String(params.CustomerID)
	}
	if params.OrganizationID != "" {
		sessionParams.ClientReferenceID = stripe.String(params.OrganizationID)
	}
	sessionParams.Context = ctx

	s, err := checkoutsession.New(sessionParams)
	if err != nil {
		return "", fmt.Errorf("create stripe checkout session: %w", err)
	}
	return s.URL, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe portal session: %w", err)
	}
	return s.URL, nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrCheckoutSessionNotFound
		}
		return nil, fmt.Errorf("get stripe checkout session: %w", err)
	}

	session := &CheckoutSession{
		ID:             s.ID,
		OrganizationID: s.Metadata[MetadataOrganizationID],
		Tier:           models.Plan(s.Metadata[MetadataPlan]),
		Complete:       s.Status == stripe.CheckoutSessionStatusComplete,
	}
	if session.OrganizationID == "" {
		session.OrganizationID = s.ClientReferenceID
	}
	if s.Customer != nil {
		session.CustomerID = s.Customer.ID
	}
	return session, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if p.webhookSecret == "" {
		return nil, fmt.Errorf("webhook secret not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	return decodeEvent(event)
}

func decodeEvent(event stripe.Event) (*Event, error) {
	out := &Event{ID: event.ID, Type: string(event.Type)}

	switch out.Type {
	case EventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out.OrganizationID = s.Metadata[MetadataOrganizationID]
		if out.OrganizationID == "" {
			out.OrganizationID = s.ClientReferenceID
		}
		out.Tier = models.Plan(s.Metadata[MetadataPlan])
		if s.Customer != nil {
			out.CustomerID = s.Customer.ID
		}
		out.Status = models.StatusActive

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		out.OrganizationID = sub.Metadata[MetadataOrganizationID]
		out.Tier = models.Plan(sub.Metadata[MetadataPlan])
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			out.PriceID = sub.Items.Data[0].Price.ID
		}
		out.Status = models.SubscriptionStatus(sub.Status)
		if sub.TrialEnd > 0 {
			ends := time.Unix(sub.TrialEnd, 0).UTC()
			out.TrialEnd = &ends
		}
	}

	return out, nil
}
