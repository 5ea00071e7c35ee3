package fines

import (
	"sync"

	"github.com/custodia-rp/custody-server/internal/domain/offense"
)

// MemoryCounter is the in-memory raw pre-processing offense counter. It is
// filled while an arrest is being reported, before the authoritative ledger
// is assembled, and serves as the fallback source for the resolver.
type MemoryCounter struct {
	mu     sync.RWMutex
	counts map[string]map[offense.Kind]int
	evaded map[string]bool
}

// NewMemoryCounter creates an empty counter store.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		counts: make(map[string]map[offense.Kind]int),
		evaded: make(map[string]bool),
	}
}

// Record adds count instances of a kind to the subject's running tally.
func (m *MemoryCounter) Record(subjectID string, kind offense.Kind, count int) {
	if subjectID == "" || count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts[subjectID] == nil {
		m.counts[subjectID] = make(map[offense.Kind]int)
	}
	m.counts[subjectID][kind] += count
}

// SetEvadedArrest flags that the subject evaded arrest before capture.
func (m *MemoryCounter) SetEvadedArrest(subjectID string, evaded bool) {
	if subjectID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaded[subjectID] = evaded
}

// Counts implements RawCounterProvider. The returned map is a copy.
func (m *MemoryCounter) Counts(subjectID string) (map[offense.Kind]int, bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts, ok := m.counts[subjectID]
	evaded := m.evaded[subjectID]
	if !ok && !evaded {
		return nil, false, false
	}

	out := make(map[offense.Kind]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out, evaded, true
}

// Clear drops the subject's tally, typically after the fine is assessed.
func (m *MemoryCounter) Clear(subjectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, subjectID)
	delete(m.evaded, subjectID)
}
