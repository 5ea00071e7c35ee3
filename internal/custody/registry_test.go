package custody

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custodia-rp/custody-server/internal/platform/logger"
)

func newTestRegistry() *Registry {
	return NewRegistry(time.Minute, logger.NewLogger())
}

// fakeClock lets tests control the wall clock the registry sees.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTickDrivenCompletion(t *testing.T) {
	r := newTestRegistry()

	var fired int32
	r.Start("S1", 100, func(subjectID string) {
		if subjectID != "S1" {
			t.Errorf("Callback got subject %q, want S1", subjectID)
		}
		atomic.AddInt32(&fired, 1)
	})

	for i := 0; i < 100; i++ {
		r.Tick()
	}

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("Callback fired %d times, want exactly 1", got)
	}
	if r.IsTracking("S1") {
		t.Error("Subject should no longer be tracked after completion")
	}

	snap, ok := r.CompletedSnapshot("S1")
	if !ok {
		t.Fatal("Expected a completed snapshot after natural completion")
	}
	if snap.ServedMinutes != 100 || snap.OriginalMinutes != 100 {
		t.Errorf("Snapshot = %+v, want served 100 of 100", snap)
	}

	// Extra ticks must not re-fire the callback.
	r.Tick()
	r.Tick()
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("Callback fired %d times after extra ticks, want 1", got)
	}
}

func TestStopRecordsServedTimeWithoutCallback(t *testing.T) {
	r := newTestRegistry()

	fired := false
	r.Start("S1", 100, func(string) { fired = true })

	for i := 0; i < 40; i++ {
		r.Tick()
	}
	r.Stop("S1")

	if fired {
		t.Error("Early stop must not invoke the completion callback")
	}
	if r.IsTracking("S1") {
		t.Error("Subject should not be tracked after Stop")
	}

	snap, ok := r.CompletedSnapshot("S1")
	if !ok {
		t.Fatal("Expected a snapshot after Stop")
	}
	if snap.ServedMinutes != 40 {
		t.Errorf("ServedMinutes = %d, want 40", snap.ServedMinutes)
	}

	if r.GetTimeServed("S1") != 40 {
		t.Errorf("GetTimeServed = %d, want snapshot value 40", r.GetTimeServed("S1"))
	}
}

func TestStopUntrackedIsNoOp(t *testing.T) {
	r := newTestRegistry()
	r.Stop("GHOST") // must not panic

	if _, ok := r.CompletedSnapshot("GHOST"); ok {
		t.Error("Stop on an untracked subject must not create a snapshot")
	}
}

func TestStartValidation(t *testing.T) {
	r := newTestRegistry()

	r.Start("", 10, nil)
	r.Start("S1", 0, nil)
	r.Start("S2", -5, nil)

	if r.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0 after invalid starts", r.ActiveCount())
	}
}

func TestDoubleStartDiscardsPriorWithoutCallback(t *testing.T) {
	r := newTestRegistry()

	firstFired := false
	r.Start("S1", 100, func(string) { firstFired = true })
	r.Start("S1", 5, nil)

	if firstFired {
		t.Error("Replacing a sentence must not fire the prior callback")
	}
	if got := r.GetRemainingTime("S1"); got != 5 {
		t.Errorf("RemainingMinutes = %d, want the replacement's 5", got)
	}

	for i := 0; i < 5; i++ {
		r.Tick()
	}
	if firstFired {
		t.Error("The discarded sentence's callback must never fire")
	}
}

func TestStartClearsStaleSnapshot(t *testing.T) {
	r := newTestRegistry()

	r.Start("S1", 1, nil)
	r.Tick()
	if _, ok := r.CompletedSnapshot("S1"); !ok {
		t.Fatal("Expected a snapshot after completion")
	}

	r.Start("S1", 10, nil)
	if _, ok := r.CompletedSnapshot("S1"); ok {
		t.Error("A new sentence must supersede the stale snapshot")
	}
}

func TestWallClockPollReconciliation(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry()
	r.now = clock.Now

	fired := false
	r.Start("S1", 60, func(string) { fired = true })

	// Ten units of wall time pass with no ticks delivered.
	clock.Advance(10 * time.Minute)
	r.PollWallClock()

	if got := r.GetRemainingTime("S1"); got != 50 {
		t.Errorf("Remaining after poll = %d, want 50", got)
	}

	// Ticks have progressed further than the wall clock: remaining stays
	// at the minimum, the poll never rewinds it.
	for i := 0; i < 20; i++ {
		r.Tick()
	}
	if got := r.GetRemainingTime("S1"); got != 30 {
		t.Errorf("Remaining after ticks = %d, want 30", got)
	}
	r.PollWallClock()
	if got := r.GetRemainingTime("S1"); got != 30 {
		t.Errorf("Poll rewound remaining to %d, want 30", got)
	}

	// The wall clock passes the full term: the poll completes the sentence.
	clock.Advance(55 * time.Minute)
	r.PollWallClock()

	if !fired {
		t.Error("Wall-clock completion must fire the callback")
	}
	if r.IsTracking("S1") {
		t.Error("Subject should not be tracked after wall-clock completion")
	}
}

func TestGetTimeServedLiveFromWallClock(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry()
	r.now = clock.Now

	r.Start("S1", 60, nil)

	clock.Advance(25 * time.Minute)
	if got := r.GetTimeServed("S1"); got != 25 {
		t.Errorf("GetTimeServed = %d, want live 25", got)
	}

	// Clamped to the total even if the drivers have not completed it yet.
	clock.Advance(200 * time.Minute)
	if got := r.GetTimeServed("S1"); got != 60 {
		t.Errorf("GetTimeServed = %d, want clamped 60", got)
	}

	if got := r.GetTimeServed("GHOST"); got != 0 {
		t.Errorf("GetTimeServed for unknown subject = %d, want 0", got)
	}
}

func TestResumeBackdatesStart(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry()
	r.now = clock.Now

	r.Resume("S1", 60, 20, nil)

	if got := r.GetRemainingTime("S1"); got != 20 {
		t.Errorf("Remaining after resume = %d, want 20", got)
	}
	// 40 units already served: the live query sees the backdated start.
	if got := r.GetTimeServed("S1"); got != 40 {
		t.Errorf("GetTimeServed after resume = %d, want 40", got)
	}
}

func TestClearCompletedSnapshot(t *testing.T) {
	r := newTestRegistry()

	r.Start("S1", 1, nil)
	r.Tick()

	r.ClearCompletedSnapshot("S1")
	if _, ok := r.CompletedSnapshot("S1"); ok {
		t.Error("Snapshot should be gone after clearing")
	}
	if got := r.GetTimeServed("S1"); got != 0 {
		t.Errorf("GetTimeServed after clear = %d, want 0 (NotTracked)", got)
	}
}

func TestInJailIndependentOfTracking(t *testing.T) {
	r := newTestRegistry()

	r.SetInJail("S1")
	if !r.IsInJail("S1") {
		t.Error("Subject should be in jail after SetInJail")
	}
	if r.IsTracking("S1") {
		t.Error("In-jail membership must not imply sentence tracking")
	}

	r.Start("S1", 1, nil)
	r.Tick()
	if !r.IsInJail("S1") {
		t.Error("Sentence completion must not clear in-jail membership by itself")
	}

	r.ClearInJail("S1")
	if r.IsInJail("S1") {
		t.Error("Subject should be out after ClearInJail")
	}
}

func TestConcurrentDriversFireOnce(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry()
	r.now = clock.Now

	var fired int32
	r.Start("S1", 1000, func(string) { atomic.AddInt32(&fired, 1) })

	clock.Advance(2000 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(even bool) {
			defer wg.Done()
			for j := 0; j < 300; j++ {
				if even {
					r.Tick()
				} else {
					r.PollWallClock()
				}
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("Callback fired %d times under concurrent drivers, want exactly 1", got)
	}
	if got := r.GetRemainingTime("S1"); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}
