// Package storage - postgres.go
// PostgreSQL implementation of EventRepository for multi-node deployments.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// OpenPostgres connects to PostgreSQL and ensures the event schema exists.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			payload JSONB NOT NULL,
			tick_unit BIGINT NOT NULL DEFAULT 0
		)
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create postgres schema: %w", err)
	}

	return db, nil
}

// PostgresEventRepository implements EventRepository using PostgreSQL.
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository creates a new PostgreSQL event repository.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// Append inserts a new event into the immutable log.
func (r *PostgresEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, actor_id, subject_id, payload, tick_unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.ActorID,
		event.SubjectID,
		payloadJSON,
		event.TickUnit,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// GetAll retrieves the full event history in chronological order.
func (r *PostgresEventRepository) GetAll(ctx context.Context) ([]StoredEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, subject_id, payload, tick_unit
		FROM events
		ORDER BY timestamp ASC
	`

	return r.queryEvents(ctx, query)
}

// GetBySubject retrieves all events affecting a subject.
func (r *PostgresEventRepository) GetBySubject(ctx context.Context, subjectID string) ([]StoredEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, subject_id, payload, tick_unit
		FROM events
		WHERE subject_id = $1
		ORDER BY timestamp ASC
	`

	return r.queryEvents(ctx, query, subjectID)
}

// GetByEventType retrieves all events of a specific type.
func (r *PostgresEventRepository) GetByEventType(ctx context.Context, eventType string) ([]StoredEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, subject_id, payload, tick_unit
		FROM events
		WHERE event_type = $1
		ORDER BY timestamp ASC
	`

	return r.queryEvents(ctx, query, eventType)
}

// queryEvents is a helper to execute queries and scan results.
func (r *PostgresEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payloadJSON []byte
		var subjectID sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.EventType,
			&e.ActorID,
			&subjectID,
			&payloadJSON,
			&e.TickUnit,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if subjectID.Valid {
			e.SubjectID = subjectID.String
		}

		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}

		events = append(events, e)
	}

	return events, rows.Err()
}
