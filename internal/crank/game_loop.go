package crank

import (
	"context"
	"time"
)

// runGameLoop cranks moves on the ER until the duel resolves. If the remote
// program never sets a winner, the stuck-round timeout forces the loop to
// exit so the state machine can proceed to settlement; worst-case round
// duration is bounded either way.
func runGameLoop(ctx context.Context, rt *Runtime) error {
	st := rt.Store.Get()
	if !st.HasRound {
		return errNoActiveRound
	}
	roundID := st.CurrentRoundID

	startedAt := time.Now()
	for {
		round, err := rt.ER.FetchRound(ctx, roundID)
		if err != nil {
			return err
		}
		rt.publishState(round)

		if round.HasWinner() {
			rt.Log.Info().Uint64("roundId", roundID).
				Uint64("moveCount", round.MoveCount).
				Msg("winner set, exiting game loop")
			return nil
		}

		if time.Since(startedAt) > rt.Cfg.StuckRoundTimeout {
			rt.Log.Warn().Uint64("roundId", roundID).
				Msg("game loop timeout reached, forcing settle path")
			return nil
		}

		sig, err := rt.ER.ExecuteMove(ctx, roundID)
		if err != nil {
			return err
		}
		rt.Store.SetLastTx(sig)

		updated, err := rt.ER.FetchRound(ctx, roundID)
		if err != nil {
			return err
		}
		rt.publishState(updated)

		if err := sleep(ctx, rt.Cfg.MoveInterval); err != nil {
			return err
		}
	}
}
