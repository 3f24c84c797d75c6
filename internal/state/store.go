// Package state holds the crank's in-memory orchestration record. The
// orchestrator goroutine is the only writer; the HTTP status handler reads
// concurrently, so access goes through a mutex and Get hands out copies.
package state

import (
	"sync"
	"time"
)

// Phase is one stop of the round lifecycle state machine.
type Phase string

const (
	PhaseBootstrap     Phase = "BOOTSTRAP"
	PhaseReady         Phase = "READY"
	PhaseCreateRound   Phase = "CREATE_ROUND"
	PhaseBettingOpen   Phase = "BETTING_OPEN"
	PhaseCloseBetting  Phase = "CLOSE_BETTING"
	PhaseDelegateRound Phase = "DELEGATE_ROUND"
	PhaseGameLoop      Phase = "GAME_LOOP"
	PhaseSettle        Phase = "SETTLE"
	PhaseCleanup       Phase = "CLEANUP"
)

// RuntimeState is the full orchestration record. Timestamps are epoch millis;
// zero means unset.
type RuntimeState struct {
	Phase             Phase
	CurrentRoundID    uint64
	HasRound          bool
	BettingDeadlineMs int64
	PhaseSinceMs      int64

	RoundCreatedAtMs  int64
	BettingClosedAtMs int64
	GameStartedAtMs   int64
	GameEndedAtMs     int64
	SettledAtMs       int64

	CleanupCompletedRoundID uint64
	CleanupCompletedValid   bool

	Retries int
	LastTx  string
}

// Store guards a RuntimeState behind named mutators. There is no way to
// replace the state wholesale; every transition is intentional.
type Store struct {
	mu    sync.Mutex
	state RuntimeState
	now   func() time.Time
}

// NewStore starts in BOOTSTRAP.
func NewStore() *Store {
	return newStoreAt(time.Now)
}

func newStoreAt(now func() time.Time) *Store {
	s := &Store{now: now}
	s.state.Phase = PhaseBootstrap
	s.state.PhaseSinceMs = now().UnixMilli()
	return s
}

// Get returns a copy of the current state, never a live reference.
func (s *Store) Get() RuntimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetPhase transitions to the given phase, stamping the transition time and
// resetting the consecutive-failure counter.
func (s *Store) SetPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Phase = phase
	s.state.PhaseSinceMs = s.now().UnixMilli()
	s.state.Retries = 0
}

// SetRound records the active round identifier.
func (s *Store) SetRound(roundID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentRoundID = roundID
	s.state.HasRound = true
}

// MarkRoundCreated stamps the round-created timestamp and clears the later
// lifecycle marks so a new round starts from a clean slate.
func (s *Store) MarkRoundCreated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RoundCreatedAtMs = s.now().UnixMilli()
	s.state.BettingClosedAtMs = 0
	s.state.GameStartedAtMs = 0
	s.state.GameEndedAtMs = 0
	s.state.SettledAtMs = 0
}

// MarkBettingClosed stamps the betting-closed timestamp.
func (s *Store) MarkBettingClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BettingClosedAtMs = s.now().UnixMilli()
}

// MarkGameStarted stamps the game-start timestamp.
func (s *Store) MarkGameStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.GameStartedAtMs = s.now().UnixMilli()
}

// MarkGameEnded stamps the game-end timestamp.
func (s *Store) MarkGameEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.GameEndedAtMs = s.now().UnixMilli()
}

// MarkSettled stamps the settlement timestamp.
func (s *Store) MarkSettled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SettledAtMs = s.now().UnixMilli()
}

// ResetRoundMarkers clears all per-round lifecycle timestamps.
func (s *Store) ResetRoundMarkers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RoundCreatedAtMs = 0
	s.state.BettingClosedAtMs = 0
	s.state.GameStartedAtMs = 0
	s.state.GameEndedAtMs = 0
	s.state.SettledAtMs = 0
}

// MarkCleanupCompleted records that cleanup fully finished for a round. This
// is the idempotency marker a later cleanup pass checks before doing work.
func (s *Store) MarkCleanupCompleted(roundID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CleanupCompletedRoundID = roundID
	s.state.CleanupCompletedValid = true
}

// SetBettingDeadline records the absolute time betting closes.
func (s *Store) SetBettingDeadline(deadlineMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BettingDeadlineMs = deadlineMs
}

// ClearBettingDeadline removes the deadline once the round is done.
func (s *Store) ClearBettingDeadline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BettingDeadlineMs = 0
}

// SetLastTx records the most recent submitted transaction signature.
func (s *Store) SetLastTx(signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastTx = signature
}

// BumpRetry increments the consecutive-failure counter for the current phase.
func (s *Store) BumpRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Retries++
}
