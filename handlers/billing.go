package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fleetshare.app/cloud/internal/apperror"
	"fleetshare.app/cloud/models"
)

type PricingResponse struct {
	Plan             models.Plan `json:"plan"`
	Aircraft         int64       `json:"aircraft"`
	BasePrice        int64       `json:"base_price"`
	IncludedAircraft int64       `json:"included_aircraft"`
	AddonPrice       int64       `json:"addon_price"`
	ExtraAircraft    int64       `json:"extra_aircraft"`
	MonthlyFee       int64       `json:"monthly_fee"`
}

// Pricing quotes the monthly fee for a fleet size. Defaults to PRO.
func (s *Server) Pricing(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	tier := models.PlanPro
	if p := query.Get("plan"); p != "" {
		tier = models.Plan(p)
	}
	plan, ok := s.Catalog.Lookup(tier)
	if !ok {
		writeError(w, r, apperror.Validation("unknown plan %q", tier))
		return
	}

	aircraft := plan.IncludedAircraft
	if raw := query.Get("aircraft"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, r, apperror.Validation("aircraft must be a non-negative integer"))
			return
		}
		aircraft = n
	}

	pricing := plan.Pricing()
	writeJSON(w, http.StatusOK, PricingResponse{
		Plan:             plan.Tier,
		Aircraft:         aircraft,
		BasePrice:        pricing.Base,
		IncludedAircraft: pricing.IncludedAircraft,
		AddonPrice:       pricing.AddonPerAircraft,
		ExtraAircraft:    pricing.ExtraAircraft(aircraft),
		MonthlyFee:       pricing.MonthlyFee(aircraft),
	})
}

type CheckoutRequest struct {
	Plan           models.Plan `json:"plan"`
	OrganizationID string      `json:"organization_id,omitempty"`
}

type RedirectResponse struct {
	URL string `json:"url"`
}

// StartCheckout starts a checkout for an organization when the caller is
// signed in, or an anonymous checkout otherwise.
func (s *Server) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFrom(r)
	if actor != nil && req.OrganizationID == "" {
		writeError(w, r, apperror.Validation("organization_id is required when signed in"))
		return
	}

	url, err := s.Billing.StartCheckout(r.Context(), actor, req.OrganizationID, req.Plan)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RedirectResponse{URL: url})
}

func (s *Server) OpenBillingPortal(w http.ResponseWriter, r *http.Request) {
	url, err := s.Billing.OpenBillingPortal(r.Context(), actorFrom(r), chi.URLParam(r, "orgID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RedirectResponse{URL: url})
}
