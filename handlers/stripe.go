package handlers

import (
	"io"
	"net/http"

	"fleetshare.app/cloud/internal/apperror"
	"fleetshare.app/cloud/internal/logger"
)

const maxWebhookBytes = int64(65536)

// Stripe receives payment provider callbacks and applies them to the matching
// organization.
func (s *Server) Stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger.Info("Stripe webhook received", map[string]interface{}{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.Header.Get("User-Agent"),
	})

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusServiceUnavailable, "Failed to read payload")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := s.Webhooks.ParseWebhook(payload, signature)
	if err != nil {
		logger.Error("Webhook verification failed", map[string]interface{}{
			"error":        err.Error(),
			"payload_size": len(payload),
		})
		writeErrorResponse(w, http.StatusBadRequest, "Invalid webhook")
		return
	}

	logger.Info("Stripe event parsed", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	outcome, err := s.Billing.HandleEvent(ctx, event)
	if err != nil {
		logger.Error("Failed to apply webhook event", map[string]interface{}{
			"error":      err.Error(),
			"event_type": event.Type,
			"event_id":   event.ID,
		})
		if apperror.KindOf(err) == apperror.KindValidation {
			// Malformed metadata will not improve on retry.
			writeJSON(w, http.StatusOK, map[string]string{"received": "true", "outcome": "rejected"})
			return
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true", "outcome": string(outcome)})
}
