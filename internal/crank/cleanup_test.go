package crank

import (
	"context"
	"strings"
	"testing"

	"snakepit-crank/internal/chain"
	"snakepit-crank/internal/state"
)

func closedBetUsers(f *fakeClient) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var users []string
	for _, call := range f.calls {
		if rest, ok := strings.CutPrefix(call, "CloseBet(42,"); ok {
			users = append(users, strings.TrimSuffix(rest, ")"))
		}
	}
	return users
}

func TestCleanup_LeavesUnclaimedWinningBetsOpen(t *testing.T) {
	l1 := newFakeClient()
	l1.rounds = []*chain.Round{roundWon(42, chain.ChoiceAlpha, 20)}
	l1.bets = []chain.Bet{
		{RoundID: 42, User: "alice", Choice: chain.ChoiceAlpha, Amount: 100},
		{RoundID: 42, User: "bob", Choice: chain.ChoiceBeta, Amount: 200},
		{RoundID: 42, User: "carol", Choice: chain.ChoiceAlpha, Amount: 300, Claimed: true},
	}
	rt, _ := newTestRuntime(l1, newFakeClient())
	rt.Store.SetRound(42)

	if err := runCleanup(context.Background(), rt); err != nil {
		t.Fatalf("runCleanup: %v", err)
	}

	// Bob lost and carol already claimed; alice holds an unclaimed winning
	// bet which must stay open for her to claim.
	closed := closedBetUsers(l1)
	if len(closed) != 2 || closed[0] != "bob" || closed[1] != "carol" {
		t.Fatalf("closed bets = %v, want [bob carol]", closed)
	}
	if l1.count("SweepVault") != 1 {
		t.Fatal("vault not swept")
	}

	st := rt.Store.Get()
	if !st.CleanupCompletedValid || st.CleanupCompletedRoundID != 42 {
		t.Fatalf("cleanup marker = %+v", st)
	}
}

func TestCleanup_DrawClosesEveryBet(t *testing.T) {
	l1 := newFakeClient()
	l1.rounds = []*chain.Round{roundWon(42, chain.ChoiceDraw, 20)}
	l1.bets = []chain.Bet{
		{RoundID: 42, User: "alice", Choice: chain.ChoiceAlpha, Amount: 100},
		{RoundID: 42, User: "bob", Choice: chain.ChoiceBeta, Amount: 200},
	}
	rt, _ := newTestRuntime(l1, newFakeClient())
	rt.Store.SetRound(42)

	if err := runCleanup(context.Background(), rt); err != nil {
		t.Fatalf("runCleanup: %v", err)
	}
	if closed := closedBetUsers(l1); len(closed) != 2 {
		t.Fatalf("closed bets = %v, want both", closed)
	}
}

func TestCleanup_SecondRunIsNoOp(t *testing.T) {
	l1 := newFakeClient()
	l1.rounds = []*chain.Round{roundWon(42, chain.ChoiceAlpha, 20)}
	l1.bets = []chain.Bet{
		{RoundID: 42, User: "bob", Choice: chain.ChoiceBeta, Amount: 200},
	}
	rt, _ := newTestRuntime(l1, newFakeClient())
	rt.Store.SetRound(42)

	ctx := context.Background()
	if err := runCleanup(ctx, rt); err != nil {
		t.Fatalf("first runCleanup: %v", err)
	}
	if err := runCleanup(ctx, rt); err != nil {
		t.Fatalf("second runCleanup: %v", err)
	}

	if l1.count("CloseBet") != 1 || l1.count("SweepVault") != 1 {
		t.Fatalf("cleanup repeated ledger work: %v", l1.calls)
	}
}

func TestCleanup_RefusesUnfinalizedWinner(t *testing.T) {
	l1 := newFakeClient()
	l1.rounds = []*chain.Round{roundIn(42, chain.StatusInProgress, 20)}
	rt, _ := newTestRuntime(l1, newFakeClient())
	rt.Store.SetRound(42)

	err := runCleanup(context.Background(), rt)
	if err == nil || !strings.Contains(err.Error(), "winner not finalized") {
		t.Fatalf("err = %v, want winner-not-finalized", err)
	}
	if l1.count("FetchBetsForRound") != 0 || l1.count("SweepVault") != 0 {
		t.Fatalf("cleanup proceeded without a finalized winner: %v", l1.calls)
	}
	if rt.Store.Get().CleanupCompletedValid {
		t.Fatal("cleanup marker set despite failure")
	}
}

func TestRoundTimings_DerivedFromLifecycleMarks(t *testing.T) {
	st := state.RuntimeState{
		RoundCreatedAtMs:  1000,
		BettingClosedAtMs: 46000,
		GameStartedAtMs:   46500,
		GameEndedAtMs:     52500,
		SettledAtMs:       53500,
	}
	got := roundTimings(st)
	if got.bettingWindowMs != 45000 {
		t.Fatalf("bettingWindowMs = %d", got.bettingWindowMs)
	}
	if got.gameDurationMs != 6000 {
		t.Fatalf("gameDurationMs = %d", got.gameDurationMs)
	}
	if got.settleDurationMs != 1000 {
		t.Fatalf("settleDurationMs = %d", got.settleDurationMs)
	}
	if got.totalRoundMs != 52500 {
		t.Fatalf("totalRoundMs = %d", got.totalRoundMs)
	}
}

func TestRoundTimings_MissingEndpointReportsZero(t *testing.T) {
	got := roundTimings(state.RuntimeState{RoundCreatedAtMs: 1000})
	if got.bettingWindowMs != 0 || got.gameDurationMs != 0 || got.totalRoundMs != 0 {
		t.Fatalf("expected zero spans, got %+v", got)
	}
}
