// Package storage provides the persistence layer for the custody server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"
)

// StoredEvent mirrors the domain event structure for persistence.
// The domain package should NOT import this; use interfaces instead.
type StoredEvent struct {
	ID        string                 `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	SubjectID string                 `json:"subject_id" db:"subject_id"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
	TickUnit  int64                  `json:"tick_unit" db:"tick_unit"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable log.
	Append(ctx context.Context, event StoredEvent) error

	// GetAll retrieves the full event history in chronological order.
	GetAll(ctx context.Context) ([]StoredEvent, error)

	// GetBySubject retrieves all events affecting a subject.
	GetBySubject(ctx context.Context, subjectID string) ([]StoredEvent, error)

	// GetByEventType retrieves all events of a specific type.
	GetByEventType(ctx context.Context, eventType string) ([]StoredEvent, error)
}

// OffenseEntry is one row of the authoritative offense ledger: a single
// offense instance booked against a subject.
type OffenseEntry struct {
	SubjectID  string    `json:"subject_id" db:"subject_id"`
	Kind       string    `json:"kind" db:"kind"`
	VictimType string    `json:"victim_type" db:"victim_type"`
	BookedAt   time.Time `json:"booked_at" db:"booked_at"`
}

// OffenseRepository defines the interface for the offense ledger.
type OffenseRepository interface {
	// AppendEntries books offense instances against a subject.
	AppendEntries(ctx context.Context, entries []OffenseEntry) error

	// GetBySubject retrieves the subject's full ledger in booking order.
	GetBySubject(ctx context.Context, subjectID string) ([]OffenseEntry, error)
}

// SentenceRecord is the audit row for a finished sentence.
type SentenceRecord struct {
	SubjectID       string    `json:"subject_id" db:"subject_id"`
	OriginalMinutes int       `json:"original_minutes" db:"original_minutes"`
	ServedMinutes   int       `json:"served_minutes" db:"served_minutes"`
	Outcome         string    `json:"outcome" db:"outcome"` // "COMPLETED" or "STOPPED"
	RecordedAt      time.Time `json:"recorded_at" db:"recorded_at"`
}

// SentenceRepository defines the interface for the sentence audit trail.
type SentenceRepository interface {
	// Insert records a finished sentence.
	Insert(ctx context.Context, record SentenceRecord) error

	// GetBySubject retrieves a subject's sentence history, newest first.
	GetBySubject(ctx context.Context, subjectID string) ([]SentenceRecord, error)
}
