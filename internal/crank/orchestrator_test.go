package crank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"snakepit-crank/internal/chain"
	"snakepit-crank/internal/config"
	"snakepit-crank/internal/gateway"
	"snakepit-crank/internal/state"
)

// fakeClient scripts one ledger endpoint. FetchRound consumes the rounds
// queue and the last entry stays sticky; errs injects one failure per
// operation name; every call lands in the log.
type fakeClient struct {
	mu sync.Mutex

	programID string
	endpoint  string
	wallet    string
	balance   uint64
	deployed  bool
	identity  string

	config   *chain.GlobalConfig
	rounds   []*chain.Round
	fetchIdx int
	bets     []chain.Bet

	errs  map[string]error
	calls []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		programID: "prog-1",
		endpoint:  "http://fake",
		wallet:    "crank-wallet",
		balance:   chain.LamportsPerSol,
		deployed:  true,
		identity:  "validator-1",
		config:    &chain.GlobalConfig{NextRoundID: 7, House: "house-wallet"},
		errs:      make(map[string]error),
	}
}

func (f *fakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	op, _, _ := strings.Cut(call, "(")
	return f.errs[op]
}

func (f *fakeClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, op+"(") {
			n++
		}
	}
	return n
}

func (f *fakeClient) FetchConfig(ctx context.Context) (*chain.GlobalConfig, error) {
	if err := f.record("FetchConfig()"); err != nil {
		return nil, err
	}
	return f.config, nil
}

func (f *fakeClient) FetchRound(ctx context.Context, roundID uint64) (*chain.Round, error) {
	if err := f.record(fmt.Sprintf("FetchRound(%d)", roundID)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rounds) == 0 {
		return nil, fmt.Errorf("no scripted round %d", roundID)
	}
	round := f.rounds[f.fetchIdx]
	if f.fetchIdx < len(f.rounds)-1 {
		f.fetchIdx++
	}
	copied := *round
	return &copied, nil
}

func (f *fakeClient) FetchBetsForRound(ctx context.Context, roundID uint64) ([]chain.Bet, error) {
	if err := f.record(fmt.Sprintf("FetchBetsForRound(%d)", roundID)); err != nil {
		return nil, err
	}
	return f.bets, nil
}

func (f *fakeClient) CreateRound(ctx context.Context, roundID uint64, duration int64) (string, error) {
	if err := f.record(fmt.Sprintf("CreateRound(%d,%d)", roundID, duration)); err != nil {
		return "", err
	}
	return "sig-create", nil
}

func (f *fakeClient) CloseBetting(ctx context.Context, roundID uint64) (string, error) {
	if err := f.record(fmt.Sprintf("CloseBetting(%d)", roundID)); err != nil {
		return "", err
	}
	return "sig-close-betting", nil
}

func (f *fakeClient) DelegateRound(ctx context.Context, roundID uint64, validator string) (string, error) {
	if err := f.record(fmt.Sprintf("DelegateRound(%d,%s)", roundID, validator)); err != nil {
		return "", err
	}
	return "sig-delegate", nil
}

func (f *fakeClient) ExecuteMove(ctx context.Context, roundID uint64) (string, error) {
	if err := f.record(fmt.Sprintf("ExecuteMove(%d)", roundID)); err != nil {
		return "", err
	}
	return "sig-move", nil
}

func (f *fakeClient) SettleAndUndelegate(ctx context.Context, roundID uint64) (string, error) {
	if err := f.record(fmt.Sprintf("SettleAndUndelegate(%d)", roundID)); err != nil {
		return "", err
	}
	return "sig-settle", nil
}

func (f *fakeClient) CloseBet(ctx context.Context, roundID uint64, user string) (string, error) {
	if err := f.record(fmt.Sprintf("CloseBet(%d,%s)", roundID, user)); err != nil {
		return "", err
	}
	return "sig-close-bet-" + user, nil
}

func (f *fakeClient) SweepVault(ctx context.Context, roundID uint64) (string, error) {
	if err := f.record(fmt.Sprintf("SweepVault(%d)", roundID)); err != nil {
		return "", err
	}
	return "sig-sweep", nil
}

func (f *fakeClient) ProgramID() string     { return f.programID }
func (f *fakeClient) Endpoint() string      { return f.endpoint }
func (f *fakeClient) WalletAddress() string { return f.wallet }

func (f *fakeClient) WalletBalance(ctx context.Context) (uint64, error) {
	return f.balance, nil
}

func (f *fakeClient) ProgramDeployed(ctx context.Context) (bool, error) {
	return f.deployed, nil
}

func (f *fakeClient) ValidatorIdentity(ctx context.Context) (string, error) {
	return f.identity, nil
}

type capturePublisher struct {
	mu          sync.Mutex
	states      []gateway.RoundStateEvent
	transitions []gateway.RoundTransitionEvent
}

func (p *capturePublisher) PublishRoundState(ev gateway.RoundStateEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, ev)
}

func (p *capturePublisher) PublishRoundTransition(ev gateway.RoundTransitionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, ev)
}

func testConfig() config.Config {
	return config.Config{
		ProgramID:   "prog-1",
		ERValidator: "validator-1",
		// Negative so the betting window is already over on the first poll.
		RoundDuration:     -time.Second,
		MoveInterval:      time.Millisecond,
		StuckRoundTimeout: time.Minute,
		MaxStepRetries:    2,
		MaxMoveRetries:    2,
	}
}

func newTestRuntime(l1, er *fakeClient) (*Runtime, *capturePublisher) {
	pub := &capturePublisher{}
	return &Runtime{
		Cfg:     testConfig(),
		Log:     zerolog.Nop(),
		Store:   state.NewStore(),
		L1:      l1,
		ER:      er,
		Gateway: pub,
	}, pub
}

func roundIn(id uint64, status chain.RoundStatus, moveCount uint64) *chain.Round {
	return &chain.Round{
		ID:         id,
		Status:     status,
		MoveCount:  moveCount,
		AlphaAlive: true,
		BetaAlive:  true,
	}
}

func roundWon(id uint64, winner chain.Choice, moveCount uint64) *chain.Round {
	return &chain.Round{
		ID:        id,
		Status:    chain.StatusSettled,
		Winner:    &winner,
		MoveCount: moveCount,
	}
}

func TestRecover_LoadsHouseAndMovesToReady(t *testing.T) {
	rt, _ := newTestRuntime(newFakeClient(), newFakeClient())
	orch := New(rt)

	if err := orch.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if rt.House != "house-wallet" {
		t.Fatalf("house = %q", rt.House)
	}
	if got := rt.Store.Get().Phase; got != state.PhaseReady {
		t.Fatalf("phase = %s, want READY", got)
	}
}

func TestTick_FullRoundCycle(t *testing.T) {
	l1 := newFakeClient()
	l1.rounds = []*chain.Round{
		roundIn(7, chain.StatusActive, 0),
		roundIn(7, chain.StatusActive, 0),
		roundIn(7, chain.StatusInProgress, 0),
		roundWon(7, chain.ChoiceAlpha, 12),
	}
	er := newFakeClient()
	er.rounds = []*chain.Round{
		roundIn(7, chain.StatusInProgress, 11),
		roundWon(7, chain.ChoiceAlpha, 12),
	}
	rt, pub := newTestRuntime(l1, er)
	rt.Store.SetPhase(state.PhaseReady)
	orch := New(rt)

	ctx := context.Background()
	want := []state.Phase{
		state.PhaseCreateRound,
		state.PhaseBettingOpen,
		state.PhaseCloseBetting,
		state.PhaseDelegateRound,
		state.PhaseGameLoop,
		state.PhaseSettle,
		state.PhaseCleanup,
		state.PhaseReady,
	}
	for i, next := range want {
		if err := orch.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if got := rt.Store.Get().Phase; got != next {
			t.Fatalf("tick %d: phase = %s, want %s", i, got, next)
		}
	}

	if l1.count("CreateRound") != 1 || l1.count("CloseBetting") != 1 {
		t.Fatalf("unexpected L1 submissions: %v", l1.calls)
	}
	if l1.count("DelegateRound") != 1 || l1.count("SweepVault") != 1 {
		t.Fatalf("unexpected L1 submissions: %v", l1.calls)
	}
	if er.count("ExecuteMove") != 1 || er.count("SettleAndUndelegate") != 1 {
		t.Fatalf("unexpected ER submissions: %v", er.calls)
	}

	st := rt.Store.Get()
	if !st.CleanupCompletedValid || st.CleanupCompletedRoundID != 7 {
		t.Fatalf("cleanup marker not set: %+v", st)
	}
	if st.BettingDeadlineMs != 0 {
		t.Fatal("betting deadline not cleared after cleanup")
	}
	if st.RoundCreatedAtMs != 0 || st.SettledAtMs != 0 {
		t.Fatal("round markers not reset after cleanup")
	}

	// The READY -> CREATE_ROUND hop precedes any round and emits nothing;
	// every later hop is announced.
	if len(pub.transitions) != len(want)-1 {
		t.Fatalf("transitions = %d, want %d", len(pub.transitions), len(want)-1)
	}
	first := pub.transitions[0]
	if first.From != "CREATE_ROUND" || first.To != "BETTING_OPEN" || first.RoundID != "7" {
		t.Fatalf("unexpected first transition: %+v", first)
	}
	last := pub.transitions[len(pub.transitions)-1]
	if last.From != "CLEANUP" || last.To != "READY" {
		t.Fatalf("unexpected last transition: %+v", last)
	}
	if len(pub.states) == 0 {
		t.Fatal("no round state published")
	}
}

func TestTick_FailedPhaseDoesNotAdvance(t *testing.T) {
	l1 := newFakeClient()
	boom := errors.New("rpc unavailable")
	l1.errs["CloseBetting"] = boom
	rt, _ := newTestRuntime(l1, newFakeClient())
	rt.Store.SetRound(7)
	rt.Store.SetPhase(state.PhaseCloseBetting)
	orch := New(rt)

	err := orch.Tick(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got := rt.Store.Get().Phase; got != state.PhaseCloseBetting {
		t.Fatalf("phase advanced past failure to %s", got)
	}
	if l1.count("CloseBetting") != 2 {
		t.Fatalf("CloseBetting attempts = %d, want the full retry budget of 2", l1.count("CloseBetting"))
	}
}

func TestGameLoop_StuckTimeoutForcesSettlePath(t *testing.T) {
	er := newFakeClient()
	er.rounds = []*chain.Round{roundIn(7, chain.StatusInProgress, 3)}
	rt, _ := newTestRuntime(newFakeClient(), er)
	rt.Cfg.StuckRoundTimeout = time.Nanosecond
	rt.Store.SetRound(7)
	rt.Store.SetPhase(state.PhaseGameLoop)
	orch := New(rt)

	if err := orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := rt.Store.Get().Phase; got != state.PhaseSettle {
		t.Fatalf("phase = %s, want SETTLE", got)
	}
	if er.count("ExecuteMove") != 0 {
		t.Fatal("no move should run after the stuck timeout")
	}
}

func TestGameLoop_ReturnsOnContextCancel(t *testing.T) {
	er := newFakeClient()
	er.rounds = []*chain.Round{roundIn(7, chain.StatusInProgress, 3)}
	rt, _ := newTestRuntime(newFakeClient(), er)
	rt.Cfg.MoveInterval = time.Hour
	rt.Store.SetRound(7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runGameLoop(ctx, rt) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("game loop did not exit on cancel")
	}
}

func TestTick_UnknownPhaseResetsToReady(t *testing.T) {
	rt, _ := newTestRuntime(newFakeClient(), newFakeClient())
	rt.Store.SetPhase(state.Phase("BROKEN"))
	orch := New(rt)

	if err := orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := rt.Store.Get().Phase; got != state.PhaseReady {
		t.Fatalf("phase = %s, want READY", got)
	}
}
