package plans

type Pricing struct {
	Base             int64
	IncludedAircraft int64
	AddonPerAircraft int64
}

// DefaultPricing is the advertised per-aircraft pricing.
var DefaultPricing = Pricing{Base: 397, IncludedAircraft: 2, AddonPerAircraft: 97}

// ExtraAircraft returns how many aircraft fall outside the included allotment.
func (p Pricing) ExtraAircraft(aircraftCount int64) int64 {
	if aircraftCount <= p.IncludedAircraft {
		return 0
	}
	return aircraftCount - p.IncludedAircraft
}

func (p Pricing) MonthlyFee(aircraftCount int64) int64 {
	return p.Base + p.ExtraAircraft(aircraftCount)*p.AddonPerAircraft
}

func MonthlyFee(aircraftCount int64) int64 {
	return DefaultPricing.MonthlyFee(aircraftCount)
}

func ExtraAircraft(aircraftCount int64) int64 {
	return DefaultPricing.ExtraAircraft(aircraftCount)
}
