// Package billingtest provides an in-memory payment provider for tests.
package billingtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"fleetshare.app/cloud/internal/billing"
)

// FakeProvider records every call. Set Err to make all calls fail, or Block
// to make calls wait for the context to end.
type FakeProvider struct {
	mu sync.Mutex

	Customers []billing.CustomerParams
	Checkouts []billing.CheckoutParams
	Portals   []string
	Lookups   []string

	// Sessions are returned by GetCheckoutSession, keyed by id.
	Sessions map[string]*billing.CheckoutSession

	Err   error
	Block bool
}

func (f *FakeProvider) wait(ctx context.Context) error {
	if f.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.Err
}

func (f *FakeProvider) CreateCustomer(ctx context.Context, params billing.CustomerParams) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Customers = append(f.Customers, params)
	return fmt.Sprintf("cus_test_%d", len(f.Customers)), nil
}

func (f *FakeProvider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Checkouts = append(f.Checkouts, params)
	return fmt.Sprintf("https://checkout.stripe.test/c/%d", len(f.Checkouts)), nil
}

func (f *FakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Portals = append(f.Portals, customerID)
	return "https://billing.stripe.test/p/" + customerID, nil
}

func (f *FakeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lookups = append(f.Lookups, sessionID)
	session, ok := f.Sessions[sessionID]
	if !ok {
		return nil, billing.ErrCheckoutSessionNotFound
	}
	copied := *session
	return &copied, nil
}

// ParseWebhook accepts a JSON-encoded billing.Event. The signature must be
// "valid".
func (f *FakeProvider) ParseWebhook(payload []byte, signature string) (*billing.Event, error) {
	if signature != "valid" {
		return nil, fmt.Errorf("invalid signature")
	}
	var event billing.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Calls returns the total number of provider calls made.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Customers) + len(f.Checkouts) + len(f.Portals) + len(f.Lookups)
}
