package limits

import (
	"context"
	"fmt"

	"fleetshare.app/cloud/internal/apperror"
	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/plans"
	"fleetshare.app/cloud/storage"
)

type Resource string

const (
	ResourceAircraft Resource = "aircraft"
	ResourceUsers    Resource = "users"
)

func (r Resource) Valid() bool {
	return r == ResourceAircraft || r == ResourceUsers
}

// Result is the outcome of a limit check. Limit is -1 for unlimited tiers.
type Result struct {
	Allowed      bool        `json:"allowed"`
	Plan         string      `json:"plan"`
	Limit        plans.Limit `json:"limit"`
	CurrentCount int64       `json:"current_count"`
	Message      string      `json:"message,omitempty"`
}

type Checker struct {
	Store   storage.Storage
	Catalog *plans.Catalog
}

func NewChecker(store storage.Storage, catalog *plans.Catalog) *Checker {
	return &Checker{Store: store, Catalog: catalog}
}

// Check reports whether the organization may create one more resource of the
// given kind. It never writes. Two concurrent creations may both pass the
// check; enforcement is advisory.
func (c *Checker) Check(ctx context.Context, orgID string, resource Resource) (*Result, error) {
	if !resource.Valid() {
		return nil, apperror.Validation("unknown resource %q", resource)
	}

	org, err := c.Store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil {
		return nil, apperror.NotFound("organization %s not found", orgID)
	}

	plan, ok := c.Catalog.Lookup(org.Plan)
	if !ok {
		return nil, apperror.Configuration("organization %s has unknown plan %q", orgID, org.Plan)
	}

	var (
		count int64
		limit plans.Limit
	)
	switch resource {
	case ResourceAircraft:
		count, err = c.Store.CountAircraft(ctx, orgID)
		limit = plan.AircraftLimit
	case ResourceUsers:
		count, err = c.Store.CountMembers(ctx, orgID)
		limit = plan.SeatLimit
	}
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", resource, err)
	}

	result := &Result{
		Allowed:      limit.Allows(count),
		Plan:         plan.Name,
		Limit:        limit,
		CurrentCount: count,
	}
	if !result.Allowed {
		result.Message = denialMessage(plan, resource, limit)
		logger.Info("Plan limit reached", map[string]interface{}{
			"organization_id": orgID,
			"plan":            plan.Tier,
			"resource":        resource,
			"limit":           limit,
			"count":           count,
		})
	}
	return result, nil
}

func denialMessage(plan plans.Plan, resource Resource, limit plans.Limit) string {
	noun := "aircraft"
	if resource == ResourceUsers {
		noun = "team members"
	}
	return fmt.Sprintf("Your %s plan allows up to %d %s. Upgrade your plan to add more.", plan.Name, limit, noun)
}
