package network

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-rp/custody-server/internal/custody"
	"github.com/custodia-rp/custody-server/internal/engine"
	"github.com/custodia-rp/custody-server/internal/events"
	"github.com/custodia-rp/custody-server/internal/fines"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
	"github.com/custodia-rp/custody-server/internal/platform/metrics"
)

func newDispatchFixture() (*engine.Engine, *events.EventLog, *chi.Mux) {
	log := logger.NewLogger()
	el := events.NewEventLog(nil)
	m := metrics.NewWith(prometheus.NewRegistry())
	reg := custody.NewRegistry(time.Minute, log)
	counter := fines.NewMemoryCounter()
	booking := engine.NewBookingSystem(el, reg, counter, nil, m, log, 1.0)
	eng := engine.NewEngine(el, reg, booking, m, log, time.Minute)

	bridge := NewDispatchBridge(eng, el, nil, log)
	r := chi.NewRouter()
	bridge.RegisterRoutes(r)
	return eng, el, r
}

func TestHandleArrestAppendsEvent(t *testing.T) {
	_, el, router := newDispatchFixture()

	body := `{
		"subject_id": "S1",
		"officer_id": "UNIT_1",
		"offenses": [{"kind": "THEFT", "count": 2}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/arrest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want 202", rec.Code)
	}

	arrests := el.GetByType(events.EventTypeArrest)
	if len(arrests) != 1 {
		t.Fatalf("Got %d arrest events, want 1", len(arrests))
	}
	if arrests[0].SubjectID != "S1" || arrests[0].ActorID != "UNIT_1" {
		t.Errorf("Arrest event = %+v, want S1 booked by UNIT_1", arrests[0])
	}
}

func TestHandleArrestRejectsMissingIdentity(t *testing.T) {
	_, _, router := newDispatchFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/arrest", strings.NewReader(`{"offenses": []}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400 for missing identifiers", rec.Code)
	}
}

func TestHandleStatusReportsRegistryState(t *testing.T) {
	eng, _, router := newDispatchFixture()

	eng.GetRegistry().SetInJail("S1")
	eng.GetRegistry().Start("S1", 90, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/custody/S1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var status struct {
		SubjectID          string `json:"subject_id"`
		InJail             bool   `json:"in_jail"`
		RemainingMinutes   int    `json:"remaining_minutes"`
		FormattedRemaining string `json:"formatted_remaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !status.InJail || status.RemainingMinutes != 90 {
		t.Errorf("Status = %+v, want in jail with 90 remaining", status)
	}
	if status.FormattedRemaining != "1h 30m" {
		t.Errorf("FormattedRemaining = %q, want 1h 30m", status.FormattedRemaining)
	}
}

func TestHandleStatusIncludesFineTotal(t *testing.T) {
	eng, _, router := newDispatchFixture()

	eng.GetBooking().OnArrest(events.CustodyEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeArrest,
		SubjectID: "S1",
		Payload: engine.ArrestPayload{
			SubjectID: "S1",
			OfficerID: "UNIT_1",
			Offenses:  []engine.ReportedOffense{{Kind: "ROBBERY"}},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/custody/S1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var status struct {
		FineTotal int64 `json:"fine_total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.FineTotal != 2000 {
		t.Errorf("FineTotal = %d, want the 2000 robbery fine", status.FineTotal)
	}
}

func TestHandleReleaseStopsSentence(t *testing.T) {
	eng, el, router := newDispatchFixture()

	eng.GetRegistry().SetInJail("S1")
	eng.GetBooking().OnArrest(events.CustodyEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeArrest,
		SubjectID: "S1",
		Payload: engine.ArrestPayload{
			SubjectID: "S1",
			OfficerID: "UNIT_1",
			Offenses:  []engine.ReportedOffense{{Kind: "ROBBERY"}},
		},
	})

	body := `{"subject_id": "S1", "officer_id": "UNIT_2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/release", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if eng.GetRegistry().IsTracking("S1") {
		t.Error("Release must stop the sentence")
	}
	if got := len(el.GetByType(events.EventTypeSentenceStopped)); got != 1 {
		t.Errorf("Got %d stopped events, want 1", got)
	}
}

func TestHandleReleaseUnknownSubject(t *testing.T) {
	_, _, router := newDispatchFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/release", strings.NewReader(`{"subject_id": "GHOST"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404 for a subject not in custody", rec.Code)
	}
}

func TestHandleClearSnapshot(t *testing.T) {
	eng, _, router := newDispatchFixture()

	eng.GetRegistry().Start("S1", 1, nil)
	eng.GetRegistry().Tick()

	req := httptest.NewRequest(http.MethodDelete, "/api/custody/S1/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if _, ok := eng.GetRegistry().CompletedSnapshot("S1"); ok {
		t.Error("Snapshot should be cleared after acknowledgement")
	}

	// A second acknowledgement has nothing to clear.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/custody/S1/snapshot", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404 once the snapshot is gone", rec.Code)
	}
}
