package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fleetshare.app/cloud/models"
	"fleetshare.app/cloud/storage"
)

// TestStorage creates an empty memory storage
func TestStorage() *storage.MemoryStorage {
	return storage.NewMemoryStorage()
}

// CreateTestOrganization creates an organization on the given plan with no
// subscription
func CreateTestOrganization(id string, plan models.Plan) *models.Organization {
	now := time.Now().UTC()
	return &models.Organization{
		ID:        id,
		Name:      "Org " + id,
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateTrialingOrganization creates a PRO trial ending at endsAt
func CreateTrialingOrganization(id string, endsAt time.Time) *models.Organization {
	org := CreateTestOrganization(id, models.PlanPro)
	ends := endsAt.UTC()
	org.SubscriptionStatus = models.StatusTrialing
	org.TrialEndsAt = &ends
	return org
}

// SeedOrganization saves org together with one member per role given,
// returning the created user ids in order
func SeedOrganization(t *testing.T, s storage.Storage, org *models.Organization, roles ...models.Role) []string {
	t.Helper()
	ctx := context.Background()

	if err := s.SaveOrganization(ctx, org); err != nil {
		t.Fatalf("Failed to save organization %s: %v", org.ID, err)
	}

	userIDs := make([]string, 0, len(roles))
	for i, role := range roles {
		userID := fmt.Sprintf("%s-user-%d", org.ID, i)
		user := &models.User{
			ID:        userID,
			Email:     fmt.Sprintf("%s@%s.example.com", userID, org.ID),
			Name:      "User " + userID,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.SaveUser(ctx, user); err != nil {
			t.Fatalf("Failed to save user %s: %v", userID, err)
		}
		member := &models.Member{
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           role,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.SaveMember(ctx, member); err != nil {
			t.Fatalf("Failed to save member %s: %v", userID, err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs
}

type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// FakeSender records sent emails. Recipients listed in FailFor get an error.
type FakeSender struct {
	mu      sync.Mutex
	Sent    []SentEmail
	FailFor map[string]bool
}

func NewFakeSender() *FakeSender {
	return &FakeSender{FailFor: make(map[string]bool)}
}

func (f *FakeSender) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailFor[to] {
		return errors.New("mailbox unavailable")
	}
	f.Sent = append(f.Sent, SentEmail{To: to, Subject: subject, Body: body})
	return nil
}

// SentTo returns the emails delivered to the given address
func (f *FakeSender) SentTo(to string) []SentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []SentEmail
	for _, e := range f.Sent {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

func (f *FakeSender) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// FixedClock returns a Now func that always reports t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
