package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/custodia-rp/custody-server/internal/custody"
	"github.com/custodia-rp/custody-server/internal/domain/offense"
	"github.com/custodia-rp/custody-server/internal/domain/sentence"
	"github.com/custodia-rp/custody-server/internal/events"
	"github.com/custodia-rp/custody-server/internal/fines"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
	"github.com/custodia-rp/custody-server/internal/platform/metrics"
)

// ReportedOffense is one offense as reported by the arresting party, before
// classification into the closed catalogue.
type ReportedOffense struct {
	Kind       string `json:"kind"`
	Count      int    `json:"count"`
	VictimType string `json:"victim_type,omitempty"`
}

// ArrestPayload is the data for EventTypeArrest.
type ArrestPayload struct {
	SubjectID    string            `json:"subject_id"`
	OfficerID    string            `json:"officer_id"`
	Offenses     []ReportedOffense `json:"offenses"`
	EvadedArrest bool              `json:"evaded_arrest"`
	Witnesses    int               `json:"witnesses"`
	OnParole     bool              `json:"on_parole"`
}

// SentenceStartedPayload is the data for EventTypeSentenceStarted.
type SentenceStartedPayload struct {
	SubjectID string        `json:"subject_id"`
	Spec      sentence.Spec `json:"spec"`
}

// FineAssessedPayload is the data for EventTypeFineAssessed.
type FineAssessedPayload struct {
	SubjectID string `json:"subject_id"`
	Amount    int64  `json:"amount"`
}

// LedgerProvider returns the authoritative post-arrest offense ledger for a
// subject, and accepts newly booked instances into it.
type LedgerProvider interface {
	AppendInstances(ctx context.Context, subjectID string, instances []offense.Instance) error
	GetLedger(ctx context.Context, subjectID string) (*fines.Ledger, error)
}

// BookingSystem processes arrests end to end: it fills the raw counter,
// assembles the authoritative ledger, assesses the fine, derives the sentence
// spec and starts the countdown. It also owns the release transitions.
type BookingSystem struct {
	eventLog   *events.EventLog
	registry   *custody.Registry
	calculator *fines.Calculator
	counter    *fines.MemoryCounter
	ledgers    LedgerProvider
	metrics    *metrics.Metrics
	logger     *logger.Logger

	globalMultiplier float64
}

// NewBookingSystem wires the booking pipeline. ledgers may be nil, in which
// case fines are assessed from the raw counter without a repeat multiplier.
func NewBookingSystem(eventLog *events.EventLog, reg *custody.Registry, counter *fines.MemoryCounter, ledgers LedgerProvider, m *metrics.Metrics, log *logger.Logger, globalMultiplier float64) *BookingSystem {
	if globalMultiplier <= 0 {
		globalMultiplier = 1.0
	}
	return &BookingSystem{
		eventLog:         eventLog,
		registry:         reg,
		calculator:       fines.NewCalculator(counter, log),
		counter:          counter,
		ledgers:          ledgers,
		metrics:          m,
		logger:           log,
		globalMultiplier: globalMultiplier,
	}
}

// Calculator exposes the fine calculator for query endpoints.
func (b *BookingSystem) Calculator() *fines.Calculator {
	return b.calculator
}

// OnArrest books a subject: raw counter first (pre-processing), then the
// authoritative ledger, then fine and sentence.
func (b *BookingSystem) OnArrest(event events.CustodyEvent) {
	payload, ok := arrestPayloadFrom(event)
	if !ok || payload.SubjectID == "" {
		b.logger.Warn("Arrest event with unusable payload, ignoring")
		return
	}

	subject := payload.SubjectID
	b.registry.SetInJail(subject)

	var instances []offense.Instance
	for _, rep := range payload.Offenses {
		kind := offense.Kind(rep.Kind)
		count := rep.Count
		if count <= 0 {
			count = 1
		}
		b.counter.Record(subject, kind, count)
		for i := 0; i < count; i++ {
			instances = append(instances, offense.Instance{
				Kind:       kind,
				VictimType: offense.VictimType(rep.VictimType),
			})
		}
	}
	b.counter.SetEvadedArrest(subject, payload.EvadedArrest)

	ledger := b.assembleLedger(subject, instances)

	fine := b.calculator.CalculateTotalFine(subject, ledger)
	b.metrics.AddFineAssessed(fine)
	b.eventLog.Append(events.CustodyEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeFineAssessed,
		ActorID:   payload.OfficerID,
		SubjectID: subject,
		Payload:   FineAssessedPayload{SubjectID: subject, Amount: fine},
	})

	spec := b.deriveSpec(payload, ledger, fine)
	if spec.TotalMinutes > 0 {
		b.registry.Start(subject, spec.TotalMinutes, b.onComplete)
		b.metrics.IncArrests()
		b.eventLog.Append(events.CustodyEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      events.EventTypeSentenceStarted,
			ActorID:   payload.OfficerID,
			SubjectID: subject,
			Payload:   SentenceStartedPayload{SubjectID: subject, Spec: spec},
		})
	}

	// The ledger supersedes the pre-processing tally once assembled.
	if ledger != nil {
		b.counter.Clear(subject)
	}
}

// assembleLedger persists the booked instances and reads back the subject's
// full authoritative ledger. Storage failures degrade to the fallback source.
func (b *BookingSystem) assembleLedger(subject string, instances []offense.Instance) *fines.Ledger {
	if b.ledgers == nil {
		return nil
	}

	ctx := context.Background()
	if len(instances) > 0 {
		if err := b.ledgers.AppendInstances(ctx, subject, instances); err != nil {
			b.logger.Errorf("Failed to append offenses to ledger for %s: %v", subject, err)
		}
	}

	ledger, err := b.ledgers.GetLedger(ctx, subject)
	if err != nil {
		b.logger.Errorf("Failed to load ledger for %s, falling back to raw counter: %v", subject, err)
		return nil
	}
	return ledger
}

// deriveSpec applies the sentence multiplier chain to the base confinement
// time of the booked offenses.
func (b *BookingSystem) deriveSpec(payload ArrestPayload, ledger *fines.Ledger, fine int64) sentence.Spec {
	baseMinutes := 0
	severity := 1.0
	for _, rep := range payload.Offenses {
		kind := offense.Kind(rep.Kind)
		count := rep.Count
		if count <= 0 {
			count = 1
		}
		baseMinutes += offense.BaseJailMinutes(kind) * count
		if kind == offense.KindHomicide {
			severity = 1.5
		}
	}

	repeat := fines.RepeatMultiplier(ledger.InstanceCount())

	witness := 1.0 + 0.1*float64(payload.Witnesses)
	if witness > 1.5 {
		witness = 1.5
	}

	parole := 1.0
	if payload.OnParole {
		parole = 2.0
	}

	return sentence.NewSpec(baseMinutes, severity, repeat, witness, parole, b.globalMultiplier, fine)
}

// ResumeSentence restores a recovered sentence with the normal completion
// path attached, so a countdown that finishes after restart still releases.
func (b *BookingSystem) ResumeSentence(subjectID string, totalMinutes, remainingMinutes int) {
	b.registry.Resume(subjectID, totalMinutes, remainingMinutes, b.onComplete)
}

// onComplete is the exactly-once natural completion path.
func (b *BookingSystem) onComplete(subjectID string) {
	b.registry.ClearInJail(subjectID)
	b.metrics.IncReleases()

	now := time.Now()
	b.eventLog.Append(events.CustodyEvent{
		ID:        events.GenerateEventID(),
		Timestamp: now,
		Type:      events.EventTypeSentenceCompleted,
		ActorID:   "SYSTEM_WARDEN",
		SubjectID: subjectID,
	})
	b.eventLog.Append(events.CustodyEvent{
		ID:        events.GenerateEventID(),
		Timestamp: now,
		Type:      events.EventTypeRelease,
		ActorID:   "SYSTEM_WARDEN",
		SubjectID: subjectID,
	})
}

// Release stops a sentence early. No completion callback fires; the snapshot
// records the time actually served.
func (b *BookingSystem) Release(subjectID string) {
	if !b.registry.IsTracking(subjectID) {
		b.logger.Warnf("Release requested for untracked subject %s", subjectID)
		return
	}

	b.registry.Stop(subjectID)
	b.registry.ClearInJail(subjectID)
	b.metrics.IncReleases()

	now := time.Now()
	b.eventLog.Append(events.CustodyEvent{
		ID:        events.GenerateEventID(),
		Timestamp: now,
		Type:      events.EventTypeSentenceStopped,
		ActorID:   "SYSTEM_WARDEN",
		SubjectID: subjectID,
	})
	b.eventLog.Append(events.CustodyEvent{
		ID:        events.GenerateEventID(),
		Timestamp: now,
		Type:      events.EventTypeRelease,
		ActorID:   "SYSTEM_WARDEN",
		SubjectID: subjectID,
	})
}

// arrestPayloadFrom accepts both the typed payload and the generic map form
// produced when events are recovered from the database.
func arrestPayloadFrom(event events.CustodyEvent) (ArrestPayload, bool) {
	if p, ok := event.Payload.(ArrestPayload); ok {
		return p, true
	}

	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return ArrestPayload{}, false
	}
	var p ArrestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ArrestPayload{}, false
	}
	return p, p.SubjectID != ""
}
