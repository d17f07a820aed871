package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fleetshare.app/cloud/models"
)

// Storage is the persistent store for organizations and the resources they
// own. Lookups return (nil, nil) when the record does not exist.
type Storage interface {
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	FindOrganizationByStripeCustomer(ctx context.Context, customerID string) (*models.Organization, error)
	SaveOrganization(ctx context.Context, org *models.Organization) error
	// SetStripeCustomerID stores customerID only if the organization has none
	// yet and reports whether it was stored.
	SetStripeCustomerID(ctx context.Context, orgID, customerID string) (bool, error)
	ListTrialingOrganizations(ctx context.Context) ([]*models.Organization, error)
	// ExpireTrials moves every trialing organization whose trial ended before
	// now back to FREE in a single atomic update.
	ExpireTrials(ctx context.Context, now time.Time) (int64, error)

	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error

	GetMember(ctx context.Context, orgID, userID string) (*models.Member, error)
	SaveMember(ctx context.Context, member *models.Member) error
	CountMembers(ctx context.Context, orgID string) (int64, error)
	ListOwners(ctx context.Context, orgID string) ([]*models.User, error)

	SaveAircraft(ctx context.Context, aircraft *models.Aircraft) error
	CountAircraft(ctx context.Context, orgID string) (int64, error)

	Close() error
}

type memberKey struct {
	orgID  string
	userID string
}

type MemoryStorage struct {
	mu            sync.RWMutex
	organizations map[string]models.Organization
	users         map[string]models.User
	members       map[memberKey]models.Member
	aircraft      map[string]models.Aircraft
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		organizations: make(map[string]models.Organization),
		users:         make(map[string]models.User),
		members:       make(map[memberKey]models.Member),
		aircraft:      make(map[string]models.Aircraft),
	}
}

func copyOrganization(org models.Organization) *models.Organization {
	if org.TrialEndsAt != nil {
		ends := *org.TrialEndsAt
		org.TrialEndsAt = &ends
	}
	return &org
}

func (m *MemoryStorage) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	org, exists := m.organizations[id]
	if !exists {
		return nil, nil
	}
	return copyOrganization(org), nil
}

func (m *MemoryStorage) FindOrganizationByStripeCustomer(ctx context.Context, customerID string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, org := range m.organizations {
		if customerID != "" && org.StripeCustomerID == customerID {
			return copyOrganization(org), nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) SaveOrganization(ctx context.Context, org *models.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.organizations[org.ID] = *copyOrganization(*org)
	return nil
}

func (m *MemoryStorage) SetStripeCustomerID(ctx context.Context, orgID, customerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	org, exists := m.organizations[orgID]
	if !exists {
		return false, fmt.Errorf("organization %s not found", orgID)
	}
	if org.StripeCustomerID != "" {
		return false, nil
	}
	org.StripeCustomerID = customerID
	org.UpdatedAt = time.Now().UTC()
	m.organizations[orgID] = org
	return true, nil
}

func (m *MemoryStorage) ListTrialingOrganizations(ctx context.Context) ([]*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orgs []*models.Organization
	for _, org := range m.organizations {
		if org.SubscriptionStatus == models.StatusTrialing {
			orgs = append(orgs, copyOrganization(org))
		}
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
	return orgs, nil
}

func (m *MemoryStorage) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The write lock makes the whole batch visible at once.
	var affected int64
	for id, org := range m.organizations {
		if org.SubscriptionStatus != models.StatusTrialing || org.TrialEndsAt == nil || !org.TrialEndsAt.Before(now) {
			continue
		}
		org.Plan = models.PlanFree
		org.SubscriptionStatus = models.StatusNone
		org.TrialEndsAt = nil
		org.UpdatedAt = now.UTC()
		m.organizations[id] = org
		affected++
	}
	return affected, nil
}

func (m *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, nil
	}
	return &user, nil
}

func (m *MemoryStorage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) SaveUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.users {
		if id != user.ID && strings.EqualFold(existing.Email, user.Email) {
			return fmt.Errorf("email %s already registered", user.Email)
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *MemoryStorage) GetMember(ctx context.Context, orgID, userID string) (*models.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, exists := m.members[memberKey{orgID, userID}]
	if !exists {
		return nil, nil
	}
	return &member, nil
}

func (m *MemoryStorage) SaveMember(ctx context.Context, member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.organizations[member.OrganizationID]; !exists {
		return fmt.Errorf("organization %s not found", member.OrganizationID)
	}
	if _, exists := m.users[member.UserID]; !exists {
		return fmt.Errorf("user %s not found", member.UserID)
	}
	m.members[memberKey{member.OrganizationID, member.UserID}] = *member
	return nil
}

func (m *MemoryStorage) CountMembers(ctx context.Context, orgID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for key := range m.members {
		if key.orgID == orgID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStorage) ListOwners(ctx context.Context, orgID string) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var owners []*models.User
	for key, member := range m.members {
		if key.orgID != orgID || member.Role != models.RoleOwner {
			continue
		}
		if user, exists := m.users[key.userID]; exists {
			userCopy := user
			owners = append(owners, &userCopy)
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].Email < owners[j].Email })
	return owners, nil
}

func (m *MemoryStorage) SaveAircraft(ctx context.Context, aircraft *models.Aircraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.organizations[aircraft.OrganizationID]; !exists {
		return fmt.Errorf("organization %s not found", aircraft.OrganizationID)
	}
	m.aircraft[aircraft.ID] = *aircraft
	return nil
}

func (m *MemoryStorage) CountAircraft(ctx context.Context, orgID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, a := range m.aircraft {
		if a.OrganizationID == orgID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
