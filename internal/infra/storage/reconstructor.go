// Package storage - reconstructor.go
// Rebuilds custody state from the event log after a restart: state = f(events).
package storage

import (
	"context"
	"fmt"
)

// Reconstructor rebuilds in-flight custody state from the persisted event
// log so a restarted server resumes countdowns instead of losing them.
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new state reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// ResumedSentence is an active sentence recovered from the log. Remaining is
// estimated from the simulated-time units that elapsed between the sentence
// start and the last persisted tick; the wall-clock driver corrects any
// residual drift after resume.
type ResumedSentence struct {
	SubjectID        string
	TotalMinutes     int
	RemainingMinutes int
}

// RebuildActiveSentences scans the log for sentences that started but never
// completed or stopped.
func (r *Reconstructor) RebuildActiveSentences(ctx context.Context) ([]ResumedSentence, error) {
	events, err := r.eventRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for reconstruction: %w", err)
	}

	type openSentence struct {
		total     int
		startTick int64
	}
	open := make(map[string]openSentence)
	var lastTick int64

	for _, e := range events {
		switch e.EventType {
		case "TIME_TICK":
			if e.TickUnit > lastTick {
				lastTick = e.TickUnit
			}
		case "SENTENCE_STARTED":
			total := specTotalMinutes(e.Payload)
			if total > 0 {
				open[e.SubjectID] = openSentence{total: total, startTick: e.TickUnit}
			}
		case "SENTENCE_COMPLETED", "SENTENCE_STOPPED":
			delete(open, e.SubjectID)
		}
	}

	var resumed []ResumedSentence
	for subjectID, s := range open {
		elapsed := int(lastTick - s.startTick)
		if elapsed < 0 {
			elapsed = 0
		}
		remaining := s.total - elapsed
		if remaining <= 0 {
			// Served out while the server was down; resume with a single
			// unit so the normal completion path fires the release.
			remaining = 1
		}
		resumed = append(resumed, ResumedSentence{
			SubjectID:        subjectID,
			TotalMinutes:     s.total,
			RemainingMinutes: remaining,
		})
	}
	return resumed, nil
}

// RebuildInJail scans the log for subjects arrested but never released.
func (r *Reconstructor) RebuildInJail(ctx context.Context) ([]string, error) {
	events, err := r.eventRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for reconstruction: %w", err)
	}

	held := make(map[string]bool)
	for _, e := range events {
		switch e.EventType {
		case "ARREST":
			if e.SubjectID != "" {
				held[e.SubjectID] = true
			}
		case "RELEASE":
			delete(held, e.SubjectID)
		}
	}

	var subjects []string
	for subjectID := range held {
		subjects = append(subjects, subjectID)
	}
	return subjects, nil
}

// LastTick returns the highest persisted simulated-time unit.
func (r *Reconstructor) LastTick(ctx context.Context) (int64, error) {
	events, err := r.eventRepo.GetByEventType(ctx, "TIME_TICK")
	if err != nil {
		return 0, err
	}

	var last int64
	for _, e := range events {
		if e.TickUnit > last {
			last = e.TickUnit
		}
	}
	return last, nil
}

// specTotalMinutes digs the derived total out of a SENTENCE_STARTED payload
// recovered from JSON.
func specTotalMinutes(payload map[string]interface{}) int {
	spec, ok := payload["spec"].(map[string]interface{})
	if !ok {
		return 0
	}
	total, ok := spec["total_minutes"].(float64)
	if !ok {
		return 0
	}
	return int(total)
}
