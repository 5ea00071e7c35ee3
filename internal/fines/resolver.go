// Package fines computes monetary penalties from a subject's recorded
// offenses. Two sources can describe the same arrest: the authoritative
// post-processing ledger and the raw pre-processing counter. The resolver
// picks exactly one of them; the calculator prices the result.
package fines

import (
	"sort"

	"github.com/custodia-rp/custody-server/internal/domain/offense"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
)

// Ledger is the authoritative, post-processing list of offense instances for
// a subject, assembled after the arrest is booked. A nil Ledger means no
// handle is available at all; an empty instance list means the handle exists
// but carries nothing yet.
type Ledger struct {
	SubjectID string
	Instances []*offense.Instance
}

// InstanceCount returns the number of usable (non-nil) instances.
func (l *Ledger) InstanceCount() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, inst := range l.Instances {
		if inst != nil {
			n++
		}
	}
	return n
}

// RawCounterProvider exposes the pre-processing fallback source: a plain
// kind→count mapping plus a standalone evaded-arrest flag. The third return
// reports whether the provider has any record of the subject.
type RawCounterProvider interface {
	Counts(subjectID string) (counts map[offense.Kind]int, evadedArrest bool, ok bool)
}

// Resolution is the resolver's output: an ordered list of (kind, count)
// records, the evaded-arrest flag (always false when the ledger was the
// source), and an explicit Empty marker distinct from a computed zero.
type Resolution struct {
	Records      []offense.Record
	EvadedArrest bool
	Empty        bool
}

// Resolver picks one offense source by priority and produces per-kind counts.
type Resolver struct {
	raw    RawCounterProvider
	logger *logger.Logger
}

// NewResolver creates a resolver over the fallback counter source.
func NewResolver(raw RawCounterProvider, log *logger.Logger) *Resolver {
	return &Resolver{raw: raw, logger: log}
}

// Resolve groups the subject's offenses from the highest-priority available
// source. The ledger, when non-nil and non-empty, is the sole source; the raw
// counter is only consulted otherwise.
func (r *Resolver) Resolve(subjectID string, ledger *Ledger) Resolution {
	if ledger != nil && len(ledger.Instances) > 0 {
		return r.resolveFromLedger(subjectID, ledger)
	}
	return r.resolveFromCounter(subjectID)
}

// resolveFromLedger groups ledger instances by kind, preserving the order of
// first appearance. Homicide instances are further split by victim type so
// the victim-specific table can price each group.
func (r *Resolver) resolveFromLedger(subjectID string, ledger *Ledger) Resolution {
	type groupKey struct {
		kind   offense.Kind
		victim offense.VictimType
	}

	var order []groupKey
	counts := make(map[groupKey]int)

	for _, inst := range ledger.Instances {
		if inst == nil {
			r.logger.Warnf("Null offense instance in ledger for subject %s, skipping", subjectID)
			continue
		}
		key := groupKey{kind: inst.Kind}
		if inst.Kind == offense.KindHomicide {
			key.victim = inst.VictimType
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	res := Resolution{}
	for _, key := range order {
		res.Records = append(res.Records, offense.Record{
			Kind:       key.kind,
			Count:      counts[key],
			VictimType: key.victim,
		})
	}
	res.Empty = len(res.Records) == 0
	return res
}

// resolveFromCounter reads the raw pre-processing counter. Counts are emitted
// in sorted kind order so repeated resolutions are deterministic.
func (r *Resolver) resolveFromCounter(subjectID string) Resolution {
	if r.raw == nil {
		return Resolution{Empty: true}
	}

	counts, evaded, ok := r.raw.Counts(subjectID)
	if !ok {
		return Resolution{Empty: true}
	}

	kinds := make([]offense.Kind, 0, len(counts))
	for kind, count := range counts {
		if kind == "" {
			r.logger.Warnf("Blank offense kind in raw counter for subject %s, skipping", subjectID)
			continue
		}
		if count <= 0 {
			continue
		}
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	res := Resolution{EvadedArrest: evaded}
	for _, kind := range kinds {
		res.Records = append(res.Records, offense.Record{Kind: kind, Count: counts[kind]})
	}

	// An evaded-arrest flag on its own is still a billable offense.
	res.Empty = len(res.Records) == 0 && !evaded
	return res
}
