package handlers

import (
	"crypto/subtle"
	"net/http"

	"fleetshare.app/cloud/internal/apperror"
	"fleetshare.app/cloud/internal/billing"
	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/session"
)

// requireSession rejects requests without a valid bearer session token.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := session.BearerToken(r)
		if !ok {
			writeError(w, r, apperror.Unauthorized("authentication required"))
			return
		}
		claims, err := s.Sessions.Parse(token)
		if err != nil {
			writeError(w, r, apperror.Unauthorized("invalid session"))
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithClaims(r.Context(), claims)))
	})
}

// optionalSession attaches claims when a token is present. A present but
// invalid token is still rejected.
func (s *Server) optionalSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := session.BearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := s.Sessions.Parse(token)
		if err != nil {
			writeError(w, r, apperror.Unauthorized("invalid session"))
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithClaims(r.Context(), claims)))
	})
}

// requireCronSecret gates the scheduled endpoints behind the shared secret.
// An unset secret rejects every call.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := session.BearerToken(r)
		if !ok || s.CronSecret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.CronSecret)) != 1 {
			logger.Warn("Rejected cron request", map[string]interface{}{
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})
			writeError(w, r, apperror.Unauthorized("invalid cron secret"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actorFrom returns the authenticated user, or nil for anonymous requests.
func actorFrom(r *http.Request) *billing.Actor {
	claims, ok := session.FromContext(r.Context())
	if !ok {
		return nil
	}
	return &billing.Actor{UserID: claims.Subject, Email: claims.Email}
}
