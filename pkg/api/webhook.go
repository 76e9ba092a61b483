package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/burrowhq/burrow/pkg/events"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/types"
)

// handleWebhook ingests one hub change notification. The response is
// always fast: the heavy lifting (planning, job creation) happens in
// the orchestrator and the workers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret != "" {
		secret := r.Header.Get("x-webhook-secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.WebhookSecret)) != 1 {
			metrics.WebhookEventsTotal.WithLabelValues("unknown", "unauthorized").Inc()
			s.writeError(w, types.NewCodedError(
				types.CodeExternalUnauthenticated, http.StatusUnauthorized, "invalid webhook secret", nil))
			return
		}
	}

	var payload types.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		s.writeError(w, types.NewInvalidParameterError("malformed webhook payload", err))
		return
	}
	event := string(payload.Event)

	// Only dataset repositories belong here; models and spaces are a
	// misconfigured webhook on the hub side
	if payload.Repo.Type != "dataset" {
		metrics.WebhookEventsTotal.WithLabelValues(event, "rejected").Inc()
		s.writeError(w, types.NewCodedError(types.CodeInvalidParameter, http.StatusBadRequest,
			fmt.Sprintf("unsupported repository type %q", payload.Repo.Type), nil))
		return
	}
	if payload.Repo.Name == "" {
		metrics.WebhookEventsTotal.WithLabelValues(event, "malformed").Inc()
		s.writeError(w, types.NewParameterMissingError("webhook payload has no repository name"))
		return
	}

	if err := s.orch.OnHubEvent(r.Context(), &payload); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(event, "error").Inc()
		s.logger.Error().Err(err).
			Str("dataset", payload.Repo.Name).
			Str("event", event).
			Msg("webhook processing failed")
		s.writeError(w, err)
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(event, "ok").Inc()
	s.publishHubEvent(&payload)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) publishHubEvent(payload *types.WebhookPayload) {
	if s.broker == nil {
		return
	}
	eventType := events.EventDatasetUpdated
	switch payload.Event {
	case types.HubEventRemove, types.HubEventDoesNotExist:
		eventType = events.EventDatasetDeleted
	case types.HubEventMove:
		eventType = events.EventDatasetMoved
	}
	s.broker.Publish(&events.Event{
		Type:    eventType,
		Dataset: payload.Repo.Name,
		Message: string(payload.Event),
	})
}
