package crank

import (
	"context"
	"fmt"
	"time"

	"snakepit-crank/internal/archive"
	"snakepit-crank/internal/chain"
	"snakepit-crank/internal/state"
)

// runCleanup closes out the settled round's bet accounts and sweeps the
// vault. It is idempotent: once cleanup has completed for a round, re-running
// it is a no-op. Winning bets that have not been claimed stay open; the
// bettor must claim before the record can be closed.
func runCleanup(ctx context.Context, rt *Runtime) error {
	stBefore := rt.Store.Get()
	if !stBefore.HasRound {
		return errNoActiveRound
	}
	roundID := stBefore.CurrentRoundID

	if stBefore.CleanupCompletedValid && stBefore.CleanupCompletedRoundID == roundID {
		rt.Log.Info().Uint64("roundId", roundID).Msg("cleanup already completed for round, skipping")
		return nil
	}

	round, err := rt.L1.FetchRound(ctx, roundID)
	if err != nil {
		return err
	}
	if !round.HasWinner() {
		// Precondition, not a transient fault: the retry loop will come back
		// around once L1 has the finalized winner.
		return fmt.Errorf("winner not finalized on L1 yet for round %d", roundID)
	}
	winner := *round.Winner
	isDraw := winner == chain.ChoiceDraw

	bets, err := rt.L1.FetchBetsForRound(ctx, roundID)
	if err != nil {
		return err
	}

	var losingClosed, winningClosed, winningPendingClaim int
	for _, bet := range bets {
		isWinningBet := !isDraw && bet.Choice == winner
		shouldClose := isDraw || !isWinningBet || bet.Claimed
		if !shouldClose {
			winningPendingClaim++
			continue
		}

		sig, err := rt.L1.CloseBet(ctx, roundID, bet.User)
		if err != nil {
			return err
		}
		rt.Store.SetLastTx(sig)

		if isWinningBet {
			winningClosed++
		} else {
			losingClosed++
		}
	}

	rt.Log.Info().
		Uint64("roundId", roundID).
		Str("winner", winner.String()).
		Int("totalBets", len(bets)).
		Int("losingClosed", losingClosed).
		Int("winningClosed", winningClosed).
		Int("winningPendingClaim", winningPendingClaim).
		Msg("close_bet cleanup complete")

	sig, err := rt.L1.SweepVault(ctx, roundID)
	if err != nil {
		return err
	}
	rt.Store.SetLastTx(sig)
	rt.Log.Info().Uint64("roundId", roundID).Str("sig", sig).Msg("sweep_vault complete")

	st := rt.Store.Get()
	timings := roundTimings(st)
	rt.Log.Info().
		Uint64("roundId", roundID).
		Int64("bettingWindowMs", timings.bettingWindowMs).
		Int64("gameDurationMs", timings.gameDurationMs).
		Int64("settleDurationMs", timings.settleDurationMs).
		Int64("totalRoundMs", timings.totalRoundMs).
		Msg("round timings")

	if rt.Archive != nil {
		record := archive.RoundRecord{
			RoundID:          roundID,
			Winner:           winner.String(),
			AlphaScore:       round.AlphaScore,
			BetaScore:        round.BetaScore,
			MoveCount:        round.MoveCount,
			TotalBets:        len(bets),
			LosingClosed:     losingClosed,
			WinningClosed:    winningClosed,
			WinningUnclaimed: winningPendingClaim,
			BettingWindowMs:  timings.bettingWindowMs,
			GameDurationMs:   timings.gameDurationMs,
			SettleDurationMs: timings.settleDurationMs,
			TotalRoundMs:     timings.totalRoundMs,
			SettledAt:        time.UnixMilli(st.SettledAtMs),
		}
		if err := rt.Archive.RecordRound(ctx, record); err != nil {
			// History is a convenience, never a reason to fail the phase.
			rt.Log.Warn().Uint64("roundId", roundID).Err(err).Msg("archive round record failed")
		}
	}

	rt.Store.MarkCleanupCompleted(roundID)
	return nil
}

type timings struct {
	bettingWindowMs  int64
	gameDurationMs   int64
	settleDurationMs int64
	totalRoundMs     int64
}

// roundTimings derives phase-duration diagnostics from the lifecycle
// timestamps; a span with a missing endpoint reports zero.
func roundTimings(st state.RuntimeState) timings {
	var t timings
	if st.RoundCreatedAtMs != 0 && st.BettingClosedAtMs != 0 {
		t.bettingWindowMs = st.BettingClosedAtMs - st.RoundCreatedAtMs
	}
	if st.GameStartedAtMs != 0 && st.GameEndedAtMs != 0 {
		t.gameDurationMs = st.GameEndedAtMs - st.GameStartedAtMs
	}
	if st.GameEndedAtMs != 0 && st.SettledAtMs != 0 {
		t.settleDurationMs = st.SettledAtMs - st.GameEndedAtMs
	}
	if st.RoundCreatedAtMs != 0 && st.SettledAtMs != 0 {
		t.totalRoundMs = st.SettledAtMs - st.RoundCreatedAtMs
	}
	return t
}
