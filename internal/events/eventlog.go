// Package events provides the append-only event log for the custody server.
// Every arrest, fine assessment and sentence transition is recorded here.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a custody event.
type EventType string

const (
	EventTypeTimeTick          EventType = "TIME_TICK"
	EventTypeArrest            EventType = "ARREST"
	EventTypeFineAssessed      EventType = "FINE_ASSESSED"
	EventTypeSentenceStarted   EventType = "SENTENCE_STARTED"
	EventTypeSentenceCompleted EventType = "SENTENCE_COMPLETED"
	EventTypeSentenceStopped   EventType = "SENTENCE_STOPPED"
	EventTypeRelease           EventType = "RELEASE"
)

// CustodyEvent represents an immutable record of an action on a subject.
type CustodyEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`   // Who performed the action
	SubjectID string      `json:"subject_id"` // Who was affected (optional)
	Payload   interface{} `json:"payload"`    // Event-specific data
	TickUnit  int64       `json:"tick_unit"`  // Simulated-time unit at emission
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event CustodyEvent) error
}

// EventLog is the in-memory append-only log of custody events.
// Durability is delegated to the optional persister (SQLite or Postgres).
type EventLog struct {
	mu        sync.RWMutex
	events    []CustodyEvent
	persister EventPersister
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]CustodyEvent, 0),
		persister: persister,
	}
}

// Append adds a new event to the log. Events are immutable once appended.
func (el *EventLog) Append(event CustodyEvent) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.events = append(el.events, event)

	if el.persister != nil {
		// Write through to persistent storage
		go func(e CustodyEvent) {
			_ = el.persister.Append(e)
		}(event)
	}
}

// GetBySubject returns all events affecting a specific subject.
func (el *EventLog) GetBySubject(subjectID string) []CustodyEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []CustodyEvent
	for _, e := range el.events {
		if e.SubjectID == subjectID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of a specific type.
func (el *EventLog) GetByType(eventType EventType) []CustodyEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []CustodyEvent
	for _, e := range el.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns the full history of events for state reconstruction.
func (el *EventLog) Replay() []CustodyEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.events
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
