// Package network - audit.go
// Audit trail endpoint - JSON export of the custody history.
//
// Supervisors and compliance reviewers replay the immutable record of
// arrests, fines and sentence transitions from here.
package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-rp/custody-server/internal/events"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
)

// AuditHandler provides the custody audit API.
type AuditHandler struct {
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewAuditHandler creates a new audit trail handler.
func NewAuditHandler(el *events.EventLog, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		eventLog: el,
		logger:   log,
	}
}

// AuditEvent is a sanitized event for review.
type AuditEvent struct {
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	TickUnit  int64                  `json:"tick_unit"`
	Type      string                 `json:"type"`
	ActorName string                 `json:"actor_name"`
	SubjectID string                 `json:"subject_id,omitempty"`
	Summary   string                 `json:"summary"`
	Outcome   string                 `json:"outcome"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditResponse is the API response for an audit query.
type AuditResponse struct {
	TotalEvents int          `json:"total_events"`
	FilteredBy  string       `json:"filtered_by,omitempty"`
	GeneratedAt string       `json:"generated_at"`
	Events      []AuditEvent `json:"events"`
}

// HandleAudit returns the filtered custody history.
// GET /api/audit?subject=XXX&type=SENTENCE_STARTED
func (ah *AuditHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subject")
	eventType := r.URL.Query().Get("type")

	allEvents := ah.eventLog.Replay()

	var auditEvents []AuditEvent
	filterDesc := ""

	for _, e := range allEvents {
		if subjectID != "" {
			if e.SubjectID != subjectID {
				continue
			}
			filterDesc = "Subject " + subjectID
		}

		if eventType != "" && string(e.Type) != eventType {
			continue
		}

		// Ticks are bookkeeping, not custody actions.
		if e.Type == events.EventTypeTimeTick {
			continue
		}

		auditEvents = append(auditEvents, ah.convertToAuditEvent(e))
	}

	response := AuditResponse{
		TotalEvents: len(auditEvents),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      auditEvents,
	}

	ah.logger.Event("AUDIT_EXPORT", subjectID, "Events:"+strconv.Itoa(len(auditEvents)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleEventDetail returns details of a specific event.
// GET /api/audit/event/{eventID}
func (ah *AuditHandler) HandleEventDetail(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		ah.jsonError(w, "Missing event_id", http.StatusBadRequest)
		return
	}

	allEvents := ah.eventLog.Replay()
	for _, e := range allEvents {
		if e.ID == eventID {
			detail := ah.convertToAuditEvent(e)
			if payload, ok := e.Payload.(map[string]interface{}); ok {
				detail.Details = payload
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(detail)
			return
		}
	}

	ah.jsonError(w, "Event not found", http.StatusNotFound)
}

// HandleStats returns aggregate statistics for the custody record.
// GET /api/audit/stats
func (ah *AuditHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	allEvents := ah.eventLog.Replay()

	stats := map[string]int{
		"total_events":        len(allEvents),
		"arrests":             0,
		"fines_assessed":      0,
		"sentences_completed": 0,
		"sentences_stopped":   0,
		"releases":            0,
	}

	for _, e := range allEvents {
		switch e.Type {
		case events.EventTypeArrest:
			stats["arrests"]++
		case events.EventTypeFineAssessed:
			stats["fines_assessed"]++
		case events.EventTypeSentenceCompleted:
			stats["sentences_completed"]++
		case events.EventTypeSentenceStopped:
			stats["sentences_stopped"]++
		case events.EventTypeRelease:
			stats["releases"]++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"stats":        stats,
	})
}

// RegisterRoutes sets up the audit API routes.
func (ah *AuditHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/audit", ah.HandleAudit)
	r.Get("/api/audit/event/{eventID}", ah.HandleEventDetail)
	r.Get("/api/audit/stats", ah.HandleStats)
}

// convertToAuditEvent transforms an internal event to the review format.
func (ah *AuditHandler) convertToAuditEvent(e events.CustodyEvent) AuditEvent {
	actorName := e.ActorID
	switch e.ActorID {
	case "SYSTEM_CLOCK":
		actorName = "Simulation clock"
	case "SYSTEM_WARDEN":
		actorName = "Automated warden"
	}

	return AuditEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		TickUnit:  e.TickUnit,
		Type:      string(e.Type),
		ActorName: actorName,
		SubjectID: e.SubjectID,
		Summary:   ah.summarizeEvent(e),
		Outcome:   ah.classifyOutcome(e),
	}
}

// summarizeEvent creates a human-readable summary.
func (ah *AuditHandler) summarizeEvent(e events.CustodyEvent) string {
	switch e.Type {
	case events.EventTypeArrest:
		return "Subject was booked into custody."
	case events.EventTypeFineAssessed:
		return "A fine was assessed against the subject."
	case events.EventTypeSentenceStarted:
		return "A sentence countdown was started."
	case events.EventTypeSentenceCompleted:
		return "The sentence was served in full."
	case events.EventTypeSentenceStopped:
		return "The sentence was ended early."
	case events.EventTypeRelease:
		return "The subject was released from custody."
	case events.EventTypeTimeTick:
		return "Simulated time advanced."
	default:
		return "Unclassified custody event."
	}
}

// classifyOutcome tags the event by its effect on the subject's liberty.
func (ah *AuditHandler) classifyOutcome(e events.CustodyEvent) string {
	switch e.Type {
	case events.EventTypeArrest, events.EventTypeFineAssessed, events.EventTypeSentenceStarted:
		return "RESTRICTIVE"
	case events.EventTypeSentenceCompleted, events.EventTypeSentenceStopped, events.EventTypeRelease:
		return "RESTORATIVE"
	default:
		return "NEUTRAL"
	}
}

// jsonError sends an error response.
func (ah *AuditHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
