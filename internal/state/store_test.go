package state

import (
	"testing"
	"time"
)

// fakeClock hands the store a controllable time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) get() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.UnixMilli(1_000_000)}
	return newStoreAt(clock.get), clock
}

func TestNewStore_StartsInBootstrap(t *testing.T) {
	s, _ := newTestStore()
	st := s.Get()
	if st.Phase != PhaseBootstrap {
		t.Fatalf("expected BOOTSTRAP, got %s", st.Phase)
	}
	if st.HasRound {
		t.Fatal("fresh store should have no round")
	}
}

func TestSetPhase_ResetsRetriesAndStampsTransitionTime(t *testing.T) {
	s, clock := newTestStore()
	s.BumpRetry()
	s.BumpRetry()

	clock.advance(5 * time.Second)
	s.SetPhase(PhaseReady)

	st := s.Get()
	if st.Phase != PhaseReady {
		t.Fatalf("expected READY, got %s", st.Phase)
	}
	if st.Retries != 0 {
		t.Fatalf("SetPhase should reset retries, got %d", st.Retries)
	}
	if st.PhaseSinceMs != clock.now.UnixMilli() {
		t.Fatalf("phaseSince = %d, want %d", st.PhaseSinceMs, clock.now.UnixMilli())
	}
}

func TestMarkRoundCreated_ClearsLaterLifecycleMarks(t *testing.T) {
	s, clock := newTestStore()
	s.MarkRoundCreated()
	clock.advance(time.Second)
	s.MarkBettingClosed()
	clock.advance(time.Second)
	s.MarkGameStarted()
	s.MarkGameEnded()
	s.MarkSettled()

	clock.advance(time.Second)
	s.MarkRoundCreated()

	st := s.Get()
	if st.RoundCreatedAtMs != clock.now.UnixMilli() {
		t.Fatalf("roundCreatedAt = %d, want %d", st.RoundCreatedAtMs, clock.now.UnixMilli())
	}
	for name, got := range map[string]int64{
		"bettingClosedAt": st.BettingClosedAtMs,
		"gameStartedAt":   st.GameStartedAtMs,
		"gameEndedAt":     st.GameEndedAtMs,
		"settledAt":       st.SettledAtMs,
	} {
		if got != 0 {
			t.Errorf("%s should be cleared on round creation, got %d", name, got)
		}
	}
}

func TestLifecycleTimestamps_MonotonicWithinRound(t *testing.T) {
	s, clock := newTestStore()
	s.MarkRoundCreated()
	clock.advance(45 * time.Second)
	s.MarkBettingClosed()
	clock.advance(time.Second)
	s.MarkGameStarted()
	clock.advance(30 * time.Second)
	s.MarkGameEnded()
	clock.advance(2 * time.Second)
	s.MarkSettled()

	st := s.Get()
	stamps := []int64{st.RoundCreatedAtMs, st.BettingClosedAtMs, st.GameStartedAtMs, st.GameEndedAtMs, st.SettledAtMs}
	for i := 1; i < len(stamps); i++ {
		if stamps[i] < stamps[i-1] {
			t.Fatalf("timestamp %d (%d) precedes timestamp %d (%d)", i, stamps[i], i-1, stamps[i-1])
		}
	}
}

func TestGet_ReturnsCopyNotLiveReference(t *testing.T) {
	s, _ := newTestStore()
	s.SetRound(7)

	before := s.Get()
	s.SetRound(8)

	if before.CurrentRoundID != 7 {
		t.Fatalf("snapshot mutated: round = %d", before.CurrentRoundID)
	}
	if got := s.Get().CurrentRoundID; got != 8 {
		t.Fatalf("store round = %d, want 8", got)
	}
}

func TestMarkCleanupCompleted_IsTheIdempotencySignal(t *testing.T) {
	s, _ := newTestStore()
	s.SetRound(42)

	st := s.Get()
	if st.CleanupCompletedValid {
		t.Fatal("cleanup marker should start unset")
	}

	s.MarkCleanupCompleted(42)
	st = s.Get()
	if !st.CleanupCompletedValid || st.CleanupCompletedRoundID != 42 {
		t.Fatalf("cleanup marker = (%v, %d), want (true, 42)", st.CleanupCompletedValid, st.CleanupCompletedRoundID)
	}
}

func TestBettingDeadline_SetAndClear(t *testing.T) {
	s, _ := newTestStore()
	s.SetBettingDeadline(123456)
	if got := s.Get().BettingDeadlineMs; got != 123456 {
		t.Fatalf("deadline = %d, want 123456", got)
	}
	s.ClearBettingDeadline()
	if got := s.Get().BettingDeadlineMs; got != 0 {
		t.Fatalf("deadline after clear = %d, want 0", got)
	}
}
