package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, actor_id, subject_id, payload, tick_unit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.ActorID,
		event.SubjectID, string(payloadBytes), event.TickUnit,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payloadStr string
		err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.ActorID,
			&e.SubjectID, &payloadStr, &e.TickUnit,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetAll(ctx context.Context) ([]StoredEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, subject_id, payload, tick_unit FROM events ORDER BY timestamp ASC`
	return r.getMany(ctx, query)
}

func (r *SQLiteEventRepository) GetBySubject(ctx context.Context, subjectID string) ([]StoredEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, subject_id, payload, tick_unit FROM events WHERE subject_id = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, subjectID)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, eventType string) ([]StoredEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, subject_id, payload, tick_unit FROM events WHERE event_type = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, eventType)
}

// ---------------------------------------------------------
// SQLiteOffenseRepository
// ---------------------------------------------------------

// SQLiteOffenseRepository implements the authoritative offense ledger.
type SQLiteOffenseRepository struct {
	db *sql.DB
}

func NewSQLiteOffenseRepository(db *sql.DB) *SQLiteOffenseRepository {
	return &SQLiteOffenseRepository{db: db}
}

func (r *SQLiteOffenseRepository) AppendEntries(ctx context.Context, entries []OffenseEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO offenses (subject_id, kind, victim_type, booked_at) VALUES (?, ?, ?, ?)`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, entry.SubjectID, entry.Kind, entry.VictimType, entry.BookedAt); err != nil {
			return fmt.Errorf("failed to book offense: %w", err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteOffenseRepository) GetBySubject(ctx context.Context, subjectID string) ([]OffenseEntry, error) {
	query := `SELECT subject_id, kind, victim_type, booked_at FROM offenses WHERE subject_id = ? ORDER BY rowid_seq ASC`
	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []OffenseEntry
	for rows.Next() {
		var e OffenseEntry
		if err := rows.Scan(&e.SubjectID, &e.Kind, &e.VictimType, &e.BookedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---------------------------------------------------------
// SQLiteSentenceRepository
// ---------------------------------------------------------

// SQLiteSentenceRepository implements the sentence audit trail.
type SQLiteSentenceRepository struct {
	db *sql.DB
}

func NewSQLiteSentenceRepository(db *sql.DB) *SQLiteSentenceRepository {
	return &SQLiteSentenceRepository{db: db}
}

func (r *SQLiteSentenceRepository) Insert(ctx context.Context, record SentenceRecord) error {
	query := `
		INSERT INTO sentences (subject_id, original_minutes, served_minutes, outcome, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.SubjectID, record.OriginalMinutes, record.ServedMinutes, record.Outcome, record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sentence record: %w", err)
	}
	return nil
}

func (r *SQLiteSentenceRepository) GetBySubject(ctx context.Context, subjectID string) ([]SentenceRecord, error) {
	query := `SELECT subject_id, original_minutes, served_minutes, outcome, recorded_at FROM sentences WHERE subject_id = ? ORDER BY rowid_seq DESC`
	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SentenceRecord
	for rows.Next() {
		var rec SentenceRecord
		if err := rows.Scan(&rec.SubjectID, &rec.OriginalMinutes, &rec.ServedMinutes, &rec.Outcome, &rec.RecordedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
