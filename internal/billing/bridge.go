// Package billing connects organizations to the payment provider: starting
// checkouts, opening the self-service portal and applying provider callbacks.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fleetshare.app/cloud/internal/apperror"
	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/metrics"
	"fleetshare.app/cloud/internal/plans"
	"fleetshare.app/cloud/internal/trial"
	"fleetshare.app/cloud/models"
	"fleetshare.app/cloud/storage"
)

const DefaultProviderTimeout = 10 * time.Second

// Actor is the authenticated user making a billing request. A nil *Actor is an
// anonymous visitor.
type Actor struct {
	UserID string
	Email  string
}

type Bridge struct {
	Store    storage.Storage
	Provider Provider
	Catalog  *plans.Catalog
	Machine  *trial.Machine
	AppURL   string
	Timeout  time.Duration
	Now      func() time.Time
}

func NewBridge(store storage.Storage, provider Provider, catalog *plans.Catalog, machine *trial.Machine, appURL string, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Bridge{
		Store:    store,
		Provider: provider,
		Catalog:  catalog,
		Machine:  machine,
		AppURL:   strings.TrimRight(appURL, "/"),
		Timeout:  timeout,
		Now:      time.Now,
	}
}

// StartCheckout returns the provider URL where the buyer completes payment for
// tier. Anonymous checkouts land on signup afterwards; authenticated ones are
// tied to orgID and require a billing role.
func (b *Bridge) StartCheckout(ctx context.Context, actor *Actor, orgID string, tier models.Plan) (string, error) {
	plan, err := b.Catalog.Purchasable(tier)
	if err != nil {
		return "", err
	}

	params := CheckoutParams{
		PriceID: plan.PriceID,
		Tier:    plan.Tier,
	}

	if actor == nil {
		params.SuccessURL = fmt.Sprintf("%s/signup?plan=%s&session_id={CHECKOUT_SESSION_ID}", b.AppURL, url.QueryEscape(string(plan.Tier)))
		params.CancelURL = b.AppURL + "/pricing"
	} else {
		org, err := b.authorize(ctx, actor, orgID)
		if err != nil {
			return "", err
		}
		customerID, err := b.ensureCustomer(ctx, actor, org)
		if err != nil {
			return "", err
		}
		params.CustomerID = customerID
		params.OrganizationID = org.ID
		params.SuccessURL = b.orgBillingURL(org.ID) + "?checkout=success"
		params.CancelURL = b.orgBillingURL(org.ID) + "?checkout=canceled"
	}

	var checkoutURL string
	err = b.call(ctx, "create_checkout_session", func(ctx context.Context) error {
		var err error
		checkoutURL, err = b.Provider.CreateCheckoutSession(ctx, params)
		return err
	})
	if err != nil {
		return "", err
	}

	metrics.CheckoutSessions.WithLabelValues(string(plan.Tier)).Inc()
	logger.Info("Checkout session created", map[string]interface{}{
		"plan":            plan.Tier,
		"organization_id": params.OrganizationID,
		"anonymous":       actor == nil,
	})
	return checkoutURL, nil
}

// OpenBillingPortal returns the provider's self-service portal URL. An
// organization that never completed a checkout has nothing to manage, so no
// provider call is made.
func (b *Bridge) OpenBillingPortal(ctx context.Context, actor *Actor, orgID string) (string, error) {
	if actor == nil {
		return "", apperror.Unauthorized("authentication required")
	}
	org, err := b.authorize(ctx, actor, orgID)
	if err != nil {
		return "", err
	}
	if !org.HasBillingAccount() {
		return "", apperror.PreconditionFailed("organization %s has no billing account; complete a checkout first", org.ID)
	}

	var portalURL string
	err = b.call(ctx, "create_portal_session", func(ctx context.Context) error {
		var err error
		portalURL, err = b.Provider.CreatePortalSession(ctx, org.StripeCustomerID, b.orgBillingURL(org.ID))
		return err
	})
	if err != nil {
		return "", err
	}
	return portalURL, nil
}

// ClaimCheckout resolves a completed anonymous checkout and moves org, which
// has not been stored yet, onto the purchased tier. It returns the provider
// customer to link with LinkCustomer once org is saved.
func (b *Bridge) ClaimCheckout(ctx context.Context, org *models.Organization, sessionID string) (string, error) {
	var session *CheckoutSession
	err := b.call(ctx, "get_checkout_session", func(ctx context.Context) error {
		var err error
		session, err = b.Provider.GetCheckoutSession(ctx, sessionID)
		return err
	})
	if errors.Is(err, ErrCheckoutSessionNotFound) {
		return "", apperror.Validation("checkout session %s not found", sessionID)
	}
	if err != nil {
		return "", err
	}

	if !session.Complete {
		return "", apperror.PreconditionFailed("checkout session %s is not complete", sessionID)
	}
	if session.OrganizationID != "" || session.CustomerID == "" {
		return "", apperror.Validation("checkout session %s cannot be claimed", sessionID)
	}

	linked, err := b.Store.FindOrganizationByStripeCustomer(ctx, session.CustomerID)
	if err != nil {
		return "", fmt.Errorf("failed to find organization by customer: %w", err)
	}
	if linked != nil {
		return "", apperror.Validation("checkout session %s was already claimed", sessionID)
	}

	plan, ok := b.Catalog.Lookup(session.Tier)
	if !ok || plan.Tier == models.PlanFree {
		return "", apperror.Validation("checkout session %s has no purchasable plan", sessionID)
	}
	if err := b.Machine.Convert(org, plan.Tier, models.StatusActive, b.Now()); err != nil {
		return "", err
	}

	logger.Info("Checkout claimed at signup", map[string]interface{}{
		"organization_id": org.ID,
		"plan":            plan.Tier,
	})
	return session.CustomerID, nil
}

// LinkCustomer stores the provider customer of a claimed checkout.
func (b *Bridge) LinkCustomer(ctx context.Context, orgID, customerID string) error {
	stored, err := b.Store.SetStripeCustomerID(ctx, orgID, customerID)
	if err != nil {
		return fmt.Errorf("failed to store customer: %w", err)
	}
	if !stored {
		logger.Warn("Organization already has a billing customer", map[string]interface{}{
			"organization_id": orgID,
			"discarded":       customerID,
		})
	}
	return nil
}

func (b *Bridge) authorize(ctx context.Context, actor *Actor, orgID string) (*models.Organization, error) {
	org, err := b.Store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil {
		return nil, apperror.NotFound("organization %s not found", orgID)
	}

	member, err := b.Store.GetMember(ctx, orgID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if member == nil || !member.Role.CanManageBilling() {
		return nil, apperror.Forbidden("only owners and admins can manage billing")
	}
	return org, nil
}

// ensureCustomer returns the organization's provider customer, creating it on
// first use. The id is stored only after the provider call succeeds and only
// if no other request stored one first.
func (b *Bridge) ensureCustomer(ctx context.Context, actor *Actor, org *models.Organization) (string, error) {
	if org.HasBillingAccount() {
		return org.StripeCustomerID, nil
	}

	var customerID string
	err := b.call(ctx, "create_customer", func(ctx context.Context) error {
		var err error
		customerID, err = b.Provider.CreateCustomer(ctx, CustomerParams{
			OrganizationID: org.ID,
			Name:           org.Name,
			Email:          actor.Email,
		})
		return err
	})
	if err != nil {
		return "", err
	}

	stored, err := b.Store.SetStripeCustomerID(ctx, org.ID, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to store customer: %w", err)
	}
	if stored {
		return customerID, nil
	}

	current, err := b.Store.GetOrganization(ctx, org.ID)
	if err != nil {
		return "", fmt.Errorf("failed to reload organization %s: %w", org.ID, err)
	}
	if current == nil {
		return "", apperror.NotFound("organization %s not found", org.ID)
	}
	logger.Warn("Discarding duplicate billing customer", map[string]interface{}{
		"organization_id": org.ID,
		"kept":            current.StripeCustomerID,
		"discarded":       customerID,
	})
	return current.StripeCustomerID, nil
}

// call runs a provider operation under the configured timeout and converts
// failures into billing provider errors.
func (b *Bridge) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}

	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)
	metrics.BillingProviderErrors.WithLabelValues(op).Inc()
	logger.Error("Billing provider call failed", map[string]interface{}{
		"operation": op,
		"timeout":   timedOut,
		"error":     err.Error(),
	})
	return apperror.BillingProvider(op, err, timedOut)
}

func (b *Bridge) orgBillingURL(orgID string) string {
	return fmt.Sprintf("%s/organizations/%s/billing", b.AppURL, url.PathEscape(orgID))
}
