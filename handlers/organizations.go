package handlers

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fleetshare.app/cloud/internal/apperror"
	"fleetshare.app/cloud/internal/limits"
	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/metrics"
	"fleetshare.app/cloud/models"
)

type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type SessionResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	existing, err := s.Storage.FindUserByEmail(ctx, email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing != nil {
		writeError(w, r, apperror.Validation("email %s is already registered", email))
		return
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Storage.SaveUser(ctx, user); err != nil {
		writeError(w, r, err)
		return
	}

	token, expiresAt, err := s.Sessions.Issue(user.ID, user.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("User registered", map[string]interface{}{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusCreated, SessionResponse{User: user, Token: token, ExpiresAt: expiresAt})
}

type CreateOrganizationRequest struct {
	Name              string `json:"name"`
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
}

// CreateOrganization creates an organization with the caller as its owner. It
// starts in trial, or on the purchased plan when the request claims a
// completed anonymous checkout.
func (s *Server) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, apperror.Validation("name is required"))
		return
	}

	ctx := r.Context()
	actor := actorFrom(r)
	user, err := s.Storage.GetUser(ctx, actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, r, apperror.Unauthorized("unknown user"))
		return
	}

	now := time.Now().UTC()
	org := &models.Organization{
		ID:        uuid.NewString(),
		Name:      name,
		Plan:      models.PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Machine.Begin(org, now)

	var customerID string
	if sessionID := strings.TrimSpace(req.CheckoutSessionID); sessionID != "" {
		customerID, err = s.Billing.ClaimCheckout(ctx, org, sessionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	if err := s.Storage.SaveOrganization(ctx, org); err != nil {
		writeError(w, r, err)
		return
	}
	owner := &models.Member{
		OrganizationID: org.ID,
		UserID:         user.ID,
		Role:           models.RoleOwner,
		CreatedAt:      now,
	}
	if err := s.Storage.SaveMember(ctx, owner); err != nil {
		writeError(w, r, err)
		return
	}
	if customerID != "" {
		if err := s.Billing.LinkCustomer(ctx, org.ID, customerID); err != nil {
			writeError(w, r, err)
			return
		}
		org.StripeCustomerID = customerID
	}

	logger.Info("Organization created", map[string]interface{}{
		"organization_id": org.ID,
		"plan":            org.Plan,
		"trial_ends_at":   org.TrialEndsAt,
	})
	writeJSON(w, http.StatusCreated, org)
}

func (s *Server) CheckLimit(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if _, err := s.requireMember(r, orgID); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.check(r, orgID, limits.Resource(chi.URLParam(r, "resource")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type CreateAircraftRequest struct {
	Registration string `json:"registration"`
	Model        string `json:"model"`
}

func (s *Server) CreateAircraft(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	member, err := s.requireMember(r, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !member.Role.CanManageFleet() {
		writeError(w, r, apperror.Forbidden("role %s cannot add aircraft", member.Role))
		return
	}

	var req CreateAircraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	registration := strings.ToUpper(strings.TrimSpace(req.Registration))
	if registration == "" {
		writeError(w, r, apperror.Validation("registration is required"))
		return
	}

	result, err := s.check(r, orgID, limits.ResourceAircraft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Allowed {
		writeLimitDenied(w, result)
		return
	}

	aircraft := &models.Aircraft{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Registration:   registration,
		Model:          strings.TrimSpace(req.Model),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Storage.SaveAircraft(r.Context(), aircraft); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, aircraft)
}

type CreateMemberRequest struct {
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  models.Role `json:"role"`
}

// CreateMember adds a user to the organization, registering the user first if
// the email is new.
func (s *Server) CreateMember(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	actor, err := s.requireMember(r, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !actor.Role.CanManageBilling() {
		writeError(w, r, apperror.Forbidden("only owners and admins can add members"))
		return
	}

	var req CreateMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Role.Valid() {
		writeError(w, r, apperror.Validation("unknown role %q", req.Role))
		return
	}
	if req.Role == models.RoleOwner && actor.Role != models.RoleOwner {
		writeError(w, r, apperror.Forbidden("only owners can add owners"))
		return
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	user, err := s.Storage.FindUserByEmail(ctx, email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user != nil {
		existing, err := s.Storage.GetMember(ctx, orgID, user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if existing != nil {
			writeError(w, r, apperror.Validation("%s is already a member", email))
			return
		}
	}

	result, err := s.check(r, orgID, limits.ResourceUsers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Allowed {
		writeLimitDenied(w, result)
		return
	}

	now := time.Now().UTC()
	if user == nil {
		user = &models.User{
			ID:        uuid.NewString(),
			Email:     email,
			Name:      strings.TrimSpace(req.Name),
			CreatedAt: now,
		}
		if err := s.Storage.SaveUser(ctx, user); err != nil {
			writeError(w, r, err)
			return
		}
	}

	member := &models.Member{
		OrganizationID: orgID,
		UserID:         user.ID,
		Role:           req.Role,
		CreatedAt:      now,
	}
	if err := s.Storage.SaveMember(ctx, member); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// requireMember returns the caller's membership in orgID. A missing
// organization is NotFound; a non-member is Forbidden.
func (s *Server) requireMember(r *http.Request, orgID string) (*models.Member, error) {
	ctx := r.Context()
	org, err := s.Storage.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, apperror.NotFound("organization %s not found", orgID)
	}

	actor := actorFrom(r)
	member, err := s.Storage.GetMember(ctx, orgID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperror.Forbidden("not a member of organization %s", orgID)
	}
	return member, nil
}

func (s *Server) check(r *http.Request, orgID string, resource limits.Resource) (*limits.Result, error) {
	result, err := s.Limits.Check(r.Context(), orgID, resource)
	if err != nil {
		return nil, err
	}
	outcome := "allowed"
	if !result.Allowed {
		outcome = "denied"
	}
	metrics.LimitChecks.WithLabelValues(string(resource), outcome).Inc()
	return result, nil
}

type LimitDeniedResponse struct {
	Error string `json:"error"`
	*limits.Result
}

func writeLimitDenied(w http.ResponseWriter, result *limits.Result) {
	writeJSON(w, http.StatusPaymentRequired, LimitDeniedResponse{
		Error:  "plan_limit_reached",
		Result: result,
	})
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", apperror.Validation("invalid email address %q", raw)
	}
	return strings.ToLower(addr.Address), nil
}
