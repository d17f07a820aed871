package handlers

import (
	"net/http"
)

// ExpireTrials runs the trial sweep.
func (s *Server) ExpireTrials(w http.ResponseWriter, r *http.Request) {
	result, err := s.Sweeper.Expire(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TrialStatus reports trial counts without changing anything.
func (s *Server) TrialStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Sweeper.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// TrialNotifications sends the daily trial notices. Per-organization failures
// are part of the 200 response.
func (s *Server) TrialNotifications(w http.ResponseWriter, r *http.Request) {
	report, err := s.Notifier.Run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
