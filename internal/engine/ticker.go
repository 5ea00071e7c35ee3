// Package engine contains the scheduler loop and custody orchestration.
//
// ARCHITECTURAL RULE: The Engine does NOT mutate sentence state directly.
// It emits TimeTickEvents to the EventLog; the dispatch loop feeds them to
// the sentence registry as the discrete-time driver.
package engine

import (
	"context"
	"time"

	"github.com/custodia-rp/custody-server/internal/events"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
)

// DefaultTickRate is the wall-clock length of one simulated-time unit when
// no configuration overrides it.
const DefaultTickRate = 1 * time.Minute

// TimeTickPayload is the data attached to each TimeTickEvent.
type TimeTickPayload struct {
	TickNumber int64 `json:"tick_number"`
}

// Ticker emits the simulated-time heartbeat. It does NOT know about subjects
// or sentences — only time progression.
type Ticker struct {
	eventLog   *events.EventLog
	logger     *logger.Logger
	tickNumber int64
	rate       time.Duration
	stopChan   chan struct{}
}

// NewTicker creates the simulated-time ticker.
func NewTicker(eventLog *events.EventLog, log *logger.Logger, rate time.Duration) *Ticker {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Ticker{
		eventLog:   eventLog,
		logger:     log,
		tickNumber: 0,
		rate:       rate,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the heartbeat loop. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info("Simulated-time ticker started.")

	ticker := time.NewTicker(t.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Simulated-time ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Simulated-time ticker stopped manually.")
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	close(t.stopChan)
}

// tick emits a single simulated-time unit to the event log.
func (t *Ticker) tick() {
	t.tickNumber++

	t.eventLog.Append(events.CustodyEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeTimeTick,
		ActorID:   "SYSTEM_CLOCK",
		Payload:   TimeTickPayload{TickNumber: t.tickNumber},
		TickUnit:  t.tickNumber,
	})
}

// SetTick allows bootstrapping code to restore the clock after a restart.
func (t *Ticker) SetTick(n int64) {
	t.tickNumber = n
}

// CurrentTick returns the current simulated-time unit count.
func (t *Ticker) CurrentTick() int64 {
	return t.tickNumber
}
