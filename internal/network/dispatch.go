// Package network - dispatch.go
// DispatchBridge - REST API for dispatch and MDT integration.
//
// Officers book arrests and releases through here; the engine's dispatch
// loop does the actual processing off the event log.
package network

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-rp/custody-server/internal/engine"
	"github.com/custodia-rp/custody-server/internal/events"
	"github.com/custodia-rp/custody-server/internal/infra/cache"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
)

// DispatchBridge handles officer-facing HTTP interactions.
type DispatchBridge struct {
	engine   *engine.Engine
	eventLog *events.EventLog
	cache    *cache.StatusCache
	logger   *logger.Logger
}

// NewDispatchBridge creates a new dispatch interaction handler. statusCache
// may be nil when Redis is not configured.
func NewDispatchBridge(eng *engine.Engine, el *events.EventLog, statusCache *cache.StatusCache, log *logger.Logger) *DispatchBridge {
	return &DispatchBridge{
		engine:   eng,
		eventLog: el,
		cache:    statusCache,
		logger:   log,
	}
}

// ReleaseRequest is the payload for an early release order.
type ReleaseRequest struct {
	SubjectID string `json:"subject_id"`
	OfficerID string `json:"officer_id"`
	Reason    string `json:"reason,omitempty"`
}

// HandleArrest books a subject into custody.
// POST /api/arrest
func (db *DispatchBridge) HandleArrest(w http.ResponseWriter, r *http.Request) {
	var req engine.ArrestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		db.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SubjectID == "" || req.OfficerID == "" {
		db.jsonError(w, "Missing subject_id or officer_id", http.StatusBadRequest)
		return
	}

	db.eventLog.Append(events.CustodyEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeArrest,
		ActorID:   req.OfficerID,
		SubjectID: req.SubjectID,
		Payload:   req,
		TickUnit:  db.engine.CurrentTick(),
	})

	db.logger.Event("DISPATCH_ARREST", req.SubjectID, "Booked by "+req.OfficerID)
	db.invalidateCache(r.Context(), req.SubjectID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted":   true,
		"subject_id": req.SubjectID,
	})
}

// HandleRelease stops a sentence early.
// POST /api/release
func (db *DispatchBridge) HandleRelease(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		db.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SubjectID == "" {
		db.jsonError(w, "Missing subject_id", http.StatusBadRequest)
		return
	}

	registry := db.engine.GetRegistry()
	if !registry.IsTracking(req.SubjectID) && !registry.IsInJail(req.SubjectID) {
		db.jsonError(w, "Subject is not in custody", http.StatusNotFound)
		return
	}

	served := registry.GetTimeServed(req.SubjectID)
	db.engine.GetBooking().Release(req.SubjectID)

	db.logger.Event("DISPATCH_RELEASE", req.SubjectID, "Released early by "+req.OfficerID)
	db.invalidateCache(r.Context(), req.SubjectID)

	db.jsonSuccess(w, map[string]interface{}{
		"released":       true,
		"subject_id":     req.SubjectID,
		"served_minutes": served,
	})
}

// HandleStatus returns the current custody state for a subject.
// GET /api/custody/{subject}
func (db *DispatchBridge) HandleStatus(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subject")
	if subjectID == "" {
		db.jsonError(w, "Missing subject", http.StatusBadRequest)
		return
	}

	if cached, ok := db.cache.GetStatus(r.Context(), subjectID); ok {
		db.jsonSuccess(w, cached)
		return
	}

	registry := db.engine.GetRegistry()
	status := cache.CustodyStatus{
		SubjectID:          subjectID,
		InJail:             registry.IsInJail(subjectID),
		RemainingMinutes:   registry.GetRemainingTime(subjectID),
		FormattedRemaining: registry.FormatRemainingTime(subjectID),
		ServedMinutes:      registry.GetTimeServed(subjectID),
		FineTotal:          db.assessedFineTotal(subjectID),
		LastSync:           time.Now().Unix(),
	}

	if err := db.cache.SetStatus(r.Context(), status); err != nil {
		db.logger.Warnf("Failed to cache custody status for %s: %v", subjectID, err)
	}

	db.jsonSuccess(w, status)
}

// HandleClearSnapshot acknowledges a finished sentence, returning the subject
// to the untracked state.
// DELETE /api/custody/{subject}/snapshot
func (db *DispatchBridge) HandleClearSnapshot(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subject")
	if subjectID == "" {
		db.jsonError(w, "Missing subject", http.StatusBadRequest)
		return
	}

	registry := db.engine.GetRegistry()
	snap, ok := registry.CompletedSnapshot(subjectID)
	if !ok {
		db.jsonError(w, "No finished sentence pending for subject", http.StatusNotFound)
		return
	}

	registry.ClearCompletedSnapshot(subjectID)
	db.logger.Event("SNAPSHOT_CLEARED", subjectID, "Finished sentence acknowledged")

	db.jsonSuccess(w, map[string]interface{}{
		"cleared":          true,
		"subject_id":       subjectID,
		"original_minutes": snap.OriginalMinutes,
		"served_minutes":   snap.ServedMinutes,
	})
}

// RegisterRoutes sets up the dispatch API routes.
func (db *DispatchBridge) RegisterRoutes(r chi.Router) {
	r.Post("/api/arrest", db.HandleArrest)
	r.Post("/api/release", db.HandleRelease)
	r.Get("/api/custody/{subject}", db.HandleStatus)
	r.Delete("/api/custody/{subject}/snapshot", db.HandleClearSnapshot)
}

// assessedFineTotal sums the subject's assessed fines from the event log.
// Payloads recovered from the database arrive as generic maps.
func (db *DispatchBridge) assessedFineTotal(subjectID string) int64 {
	var total int64
	for _, e := range db.eventLog.GetBySubject(subjectID) {
		if e.Type != events.EventTypeFineAssessed {
			continue
		}
		switch p := e.Payload.(type) {
		case engine.FineAssessedPayload:
			total += p.Amount
		case map[string]interface{}:
			if amount, ok := p["amount"].(float64); ok {
				total += int64(amount)
			}
		}
	}
	return total
}

func (db *DispatchBridge) invalidateCache(ctx context.Context, subjectID string) {
	if err := db.cache.Invalidate(ctx, subjectID); err != nil {
		db.logger.Warnf("Failed to invalidate cached status for %s: %v", subjectID, err)
	}
}

// jsonError sends an error response.
func (db *DispatchBridge) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func (db *DispatchBridge) jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
