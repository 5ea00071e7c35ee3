// Package custody owns the per-subject sentence state machine:
// NotTracked → Active → {Completed | Stopped} → NotTracked.
//
// Two independent drivers decrement each active countdown: the simulated-time
// tick feed and a wall-clock poll calibrated so that one poll period equals
// one simulated-time unit. Reconciliation is monotonic-min: whichever driver
// has progressed further governs, and remaining time only ever moves toward
// zero. Removal of the active entry is the exclusivity guard that makes the
// completion callback fire exactly once.
package custody

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-rp/custody-server/internal/domain/sentence"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
)

// CompletionCallback is invoked with the subject identity on natural sentence
// completion. It is never invoked for an early Stop.
type CompletionCallback func(subjectID string)

// ActiveSentence is the mutable countdown state for one tracked subject.
// Mutated only by the two drivers and by Stop, always under the registry lock.
type ActiveSentence struct {
	SubjectID        string
	TotalMinutes     int
	RemainingMinutes int
	StartInstant     time.Time
	onComplete       CompletionCallback
}

// Registry owns the concurrent subject→sentence map, the completed-snapshot
// store and the independent in-jail membership set.
type Registry struct {
	mu        sync.Mutex
	active    map[string]*ActiveSentence
	completed map[string]sentence.CompletedSnapshot
	inJail    map[string]bool

	unit   time.Duration // wall-clock length of one simulated-time unit
	logger *logger.Logger
	now    func() time.Time
}

// NewRegistry creates a sentence registry. unit is the wall-clock duration of
// one simulated-time unit, used by the poll driver and the live served-time
// query.
func NewRegistry(unit time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		active:    make(map[string]*ActiveSentence),
		completed: make(map[string]sentence.CompletedSnapshot),
		inJail:    make(map[string]bool),
		unit:      unit,
		logger:    log,
		now:       time.Now,
	}
}

// Start begins tracking a sentence of totalMinutes simulated-time units.
// If the subject is already Active, the prior entry is discarded without
// invoking its callback. Replacing instead of rejecting mirrors the observed
// behavior of the system this was ported from; the dropped callback is a
// known limitation.
func (r *Registry) Start(subjectID string, totalMinutes int, onComplete CompletionCallback) {
	if subjectID == "" {
		r.logger.Warn("Start called with blank subject, ignoring")
		return
	}
	if totalMinutes <= 0 {
		r.logger.Warnf("Start called for %s with non-positive duration %d, ignoring", subjectID, totalMinutes)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[subjectID]; exists {
		r.logger.Warnf("Start called for already-tracked subject %s, discarding prior sentence without callback", subjectID)
	}
	// A stale pending snapshot from an earlier sentence is superseded.
	delete(r.completed, subjectID)

	r.active[subjectID] = &ActiveSentence{
		SubjectID:        subjectID,
		TotalMinutes:     totalMinutes,
		RemainingMinutes: totalMinutes,
		StartInstant:     r.now(),
		onComplete:       onComplete,
	}
	r.logger.Event("SENTENCE_TRACKED", subjectID, sentence.FormatMinutes(totalMinutes)+" to serve")
}

// Resume restores a recovered sentence with part of it already served. The
// start instant is backdated so the wall-clock driver sees a consistent
// elapsed time.
func (r *Registry) Resume(subjectID string, totalMinutes, remainingMinutes int, onComplete CompletionCallback) {
	if subjectID == "" || totalMinutes <= 0 {
		r.logger.Warn("Resume called with unusable arguments, ignoring")
		return
	}
	if remainingMinutes > totalMinutes {
		remainingMinutes = totalMinutes
	}
	if remainingMinutes <= 0 {
		remainingMinutes = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	served := totalMinutes - remainingMinutes
	r.active[subjectID] = &ActiveSentence{
		SubjectID:        subjectID,
		TotalMinutes:     totalMinutes,
		RemainingMinutes: remainingMinutes,
		StartInstant:     r.now().Add(-time.Duration(served) * r.unit),
		onComplete:       onComplete,
	}
	r.logger.Event("SENTENCE_RESUMED", subjectID, sentence.FormatMinutes(remainingMinutes)+" left to serve")
}

type completion struct {
	subjectID  string
	onComplete CompletionCallback
}

// Tick is driver A: one elapsed simulated-time unit. Every active countdown
// loses one unit; entries that reach zero complete.
func (r *Registry) Tick() {
	r.mu.Lock()
	var done []completion
	for id, s := range r.active {
		s.RemainingMinutes--
		if s.RemainingMinutes <= 0 {
			s.RemainingMinutes = 0
			done = append(done, r.completeLocked(id, s))
		}
	}
	r.mu.Unlock()

	r.fire(done)
}

// PollWallClock is driver B: one reconciliation pass against the wall clock.
// candidate = total − elapsed-units; remaining adopts min(remaining,
// candidate) so a stalled tick feed cannot hold a sentence open forever and a
// stalled poll cannot rewind one.
func (r *Registry) PollWallClock() {
	r.mu.Lock()
	var done []completion
	for id, s := range r.active {
		elapsedUnits := int(r.now().Sub(s.StartInstant) / r.unit)
		candidate := s.TotalMinutes - elapsedUnits
		if candidate < s.RemainingMinutes {
			s.RemainingMinutes = candidate
		}
		if s.RemainingMinutes <= 0 {
			s.RemainingMinutes = 0
			done = append(done, r.completeLocked(id, s))
		}
	}
	r.mu.Unlock()

	r.fire(done)
}

// completeLocked snapshots and removes an entry. Caller holds the lock.
func (r *Registry) completeLocked(id string, s *ActiveSentence) completion {
	r.completed[id] = sentence.CompletedSnapshot{
		SubjectID:       id,
		OriginalMinutes: s.TotalMinutes,
		ServedMinutes:   s.TotalMinutes,
	}
	delete(r.active, id)
	return completion{subjectID: id, onComplete: s.onComplete}
}

// fire invokes completion callbacks outside the lock so a callback may call
// back into the registry.
func (r *Registry) fire(done []completion) {
	for _, c := range done {
		r.logger.Event("SENTENCE_COMPLETE", c.subjectID, "sentence served in full")
		if c.onComplete != nil {
			c.onComplete(c.subjectID)
		}
	}
}

// RunWallClockPoll runs driver B on its calibrated cadence until the context
// is cancelled. Call in a goroutine.
func (r *Registry) RunWallClockPoll(ctx context.Context) {
	ticker := time.NewTicker(r.unit)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Wall-clock poll driver stopped.")
			return
		case <-ticker.C:
			r.PollWallClock()
		}
	}
}

// Stop ends tracking early. The snapshot records the time actually served;
// no completion callback fires — early release is distinct from natural
// completion. Returns synchronously once the transition is applied.
func (r *Registry) Stop(subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.active[subjectID]
	if !exists {
		r.logger.Warnf("Stop called for untracked subject %s, ignoring", subjectID)
		return
	}

	r.completed[subjectID] = sentence.CompletedSnapshot{
		SubjectID:       subjectID,
		OriginalMinutes: s.TotalMinutes,
		ServedMinutes:   s.TotalMinutes - s.RemainingMinutes,
	}
	delete(r.active, subjectID)
	r.logger.Event("SENTENCE_STOPPED", subjectID, "released early")
}

// ClearCompletedSnapshot discards the stored snapshot once the consumer has
// finished reading it, returning the subject to NotTracked.
func (r *Registry) ClearCompletedSnapshot(subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.completed, subjectID)
}

// GetTimeServed returns served simulated-time units. For an Active subject
// the value is recomputed live from wall-clock elapsed (clamped to total) for
// responsiveness between discrete ticks; otherwise the stored snapshot's
// served value; otherwise 0.
func (r *Registry) GetTimeServed(subjectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.active[subjectID]; ok {
		elapsedUnits := int(r.now().Sub(s.StartInstant) / r.unit)
		if elapsedUnits < 0 {
			elapsedUnits = 0
		}
		if elapsedUnits > s.TotalMinutes {
			elapsedUnits = s.TotalMinutes
		}
		return elapsedUnits
	}
	if snap, ok := r.completed[subjectID]; ok {
		return snap.ServedMinutes
	}
	return 0
}

// GetRemainingTime returns the remaining simulated-time units, 0 when not
// Active.
func (r *Registry) GetRemainingTime(subjectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.active[subjectID]; ok {
		return s.RemainingMinutes
	}
	return 0
}

// FormatRemainingTime renders the remaining time for the presentation layer.
func (r *Registry) FormatRemainingTime(subjectID string) string {
	return sentence.FormatMinutes(r.GetRemainingTime(subjectID))
}

// IsTracking reports whether the subject has an Active sentence.
func (r *Registry) IsTracking(subjectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[subjectID]
	return ok
}

// ActiveCount returns the number of Active sentences.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// CompletedSnapshot returns the pending snapshot for a subject, if any.
func (r *Registry) CompletedSnapshot(subjectID string) (sentence.CompletedSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.completed[subjectID]
	return snap, ok
}

// SetInJail marks the subject as held. Membership is independent of sentence
// tracking: set at arrest, cleared at release, never implied by either.
func (r *Registry) SetInJail(subjectID string) {
	if subjectID == "" {
		r.logger.Warn("SetInJail called with blank subject, ignoring")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inJail[subjectID] = true
}

// ClearInJail removes the subject from the in-jail set.
func (r *Registry) ClearInJail(subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inJail, subjectID)
}

// IsInJail reports in-jail membership.
func (r *Registry) IsInJail(subjectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inJail[subjectID]
}
