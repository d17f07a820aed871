package plans

import (
	"fleetshare.app/cloud/internal/apperror"
	"fleetshare.app/cloud/models"
)

// Limit is a resource ceiling. Unlimited is a sentinel that no count can reach.
type Limit int64

const Unlimited Limit = -1

// Allows reports whether one more resource may be created when count already exist.
func (l Limit) Allows(count int64) bool {
	if l == Unlimited {
		return true
	}
	return count < int64(l)
}

type Plan struct {
	Tier             models.Plan
	Name             string
	AircraftLimit    Limit
	SeatLimit        Limit
	BasePrice        int64 // whole currency units per month
	IncludedAircraft int64
	AddonPrice       int64 // per aircraft beyond IncludedAircraft
	PriceID          string
}

func (p Plan) Pricing() Pricing {
	return Pricing{
		Base:             p.BasePrice,
		IncludedAircraft: p.IncludedAircraft,
		AddonPerAircraft: p.AddonPrice,
	}
}

// PriceIDs maps purchasable tiers to payment-provider price identifiers.
type PriceIDs map[models.Plan]string

type Catalog struct {
	plans map[models.Plan]Plan
}

var defaultPlans = []Plan{
	{
		Tier:          models.PlanFree,
		Name:          "Free",
		AircraftLimit: 1,
		SeatLimit:     3,
	},
	{
		Tier:             models.PlanPro,
		Name:             "Pro",
		AircraftLimit:    10,
		SeatLimit:        25,
		BasePrice:        397,
		IncludedAircraft: 2,
		AddonPrice:       97,
	},
	{
		Tier:             models.PlanEnterprise,
		Name:             "Enterprise",
		AircraftLimit:    Unlimited,
		SeatLimit:        Unlimited,
		BasePrice:        997,
		IncludedAircraft: 10,
		AddonPrice:       77,
	},
}

// NewCatalog returns the default tiers with the given price ids attached.
// FREE never gets a price id, even if one is supplied.
func NewCatalog(priceIDs PriceIDs) *Catalog {
	c := &Catalog{plans: make(map[models.Plan]Plan, len(defaultPlans))}
	for _, p := range defaultPlans {
		if p.Tier != models.PlanFree {
			p.PriceID = priceIDs[p.Tier]
		}
		c.plans[p.Tier] = p
	}
	return c
}

func (c *Catalog) Lookup(tier models.Plan) (Plan, bool) {
	p, ok := c.plans[tier]
	return p, ok
}

// ForPrice returns the purchasable plan whose configured price id is priceID.
func (c *Catalog) ForPrice(priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range c.plans {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// Purchasable returns the plan for tier if it can be bought through checkout.
// An unknown tier is a validation error; FREE or a tier without a configured
// price id is a configuration error.
func (c *Catalog) Purchasable(tier models.Plan) (Plan, error) {
	p, ok := c.plans[tier]
	if !ok {
		return Plan{}, apperror.Validation("unknown plan %q", tier)
	}
	if p.Tier == models.PlanFree {
		return Plan{}, apperror.Configuration("plan %s is not purchasable", tier)
	}
	if p.PriceID == "" {
		return Plan{}, apperror.Configuration("no price configured for plan %s", tier)
	}
	return p, nil
}
