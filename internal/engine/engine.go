package engine

import (
	"context"
	"time"

	"github.com/custodia-rp/custody-server/internal/custody"
	"github.com/custodia-rp/custody-server/internal/events"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
	"github.com/custodia-rp/custody-server/internal/platform/metrics"
)

// Engine is the central orchestrator that wires the event log to the custody
// mechanics. It owns both countdown drivers: the ticker feeds discrete
// simulated-time units through the dispatch loop, and the registry's
// wall-clock poll runs on its own cadence.
type Engine struct {
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Metrics
	ticker   *Ticker

	registry *custody.Registry
	booking  *BookingSystem

	lastProcessedEvent int
}

// NewEngine initializes the custody systems and dependencies. tickRate is
// the wall-clock length of one simulated-time unit.
func NewEngine(eventLog *events.EventLog, reg *custody.Registry, booking *BookingSystem, m *metrics.Metrics, log *logger.Logger, tickRate time.Duration) *Engine {
	return &Engine{
		eventLog:           eventLog,
		logger:             log,
		metrics:            m,
		ticker:             NewTicker(eventLog, log, tickRate),
		registry:           reg,
		booking:            booking,
		lastProcessedEvent: 0,
	}
}

// Start spawns the ticker, the wall-clock poll driver and the dispatch loop.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting custody engine...")

	go e.ticker.Start(ctx)
	go e.registry.RunWallClockPoll(ctx)
	go e.processEvents(ctx)
}

// OverrideTick allows bootstrapping code to restore the clock after restart.
func (e *Engine) OverrideTick(n int64) {
	e.ticker.SetTick(n)
}

// CurrentTick returns the current simulated-time unit count.
func (e *Engine) CurrentTick() int64 {
	return e.ticker.CurrentTick()
}

// GetRegistry exposes the sentence registry for API endpoints.
func (e *Engine) GetRegistry() *custody.Registry {
	return e.registry
}

// GetBooking exposes the booking system for API endpoints.
func (e *Engine) GetBooking() *BookingSystem {
	return e.booking
}

// GetEventLog exposes the event log for external producers.
func (e *Engine) GetEventLog() *events.EventLog {
	return e.eventLog
}

// processEvents follows the EventLog and dispatches new items. All mutation
// of custody state is serialized through this single consumer, apart from the
// registry's own lock-guarded wall-clock driver.
func (e *Engine) processEvents(ctx context.Context) {
	pollInterval := time.NewTicker(100 * time.Millisecond)
	defer pollInterval.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Event dispatcher stopped.")
			return
		case <-pollInterval.C:
			allEvents := e.eventLog.Replay()
			if len(allEvents) > e.lastProcessedEvent {
				newEvents := allEvents[e.lastProcessedEvent:]
				for _, event := range newEvents {
					e.dispatch(event)
				}
				e.lastProcessedEvent = len(allEvents)
			}
		}
	}
}

// dispatch routes a custody event to the appropriate systems based on type.
func (e *Engine) dispatch(event events.CustodyEvent) {
	switch event.Type {
	case events.EventTypeTimeTick:
		start := time.Now()
		e.registry.Tick()
		e.metrics.ObserveTick(time.Since(start))
		e.metrics.SetActiveSentences(e.registry.ActiveCount())

	case events.EventTypeArrest:
		e.booking.OnArrest(event)

	case events.EventTypeSentenceCompleted, events.EventTypeSentenceStopped:
		e.metrics.SetActiveSentences(e.registry.ActiveCount())
	}
}
