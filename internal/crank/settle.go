package crank

import (
	"context"
	"time"

	"snakepit-crank/internal/social"
)

const socialNotifyTimeout = 15 * time.Second

// runSettle commits the final state back to L1 and undelegates the round,
// then re-reads the authoritative post-settlement state from L1. The social
// feed is notified on a detached goroutine; its failure channel is its own.
func runSettle(ctx context.Context, rt *Runtime) error {
	st := rt.Store.Get()
	if !st.HasRound {
		return errNoActiveRound
	}

	sig, err := rt.ER.SettleAndUndelegate(ctx, st.CurrentRoundID)
	if err != nil {
		return err
	}
	rt.Store.SetLastTx(sig)
	rt.Log.Info().Uint64("roundId", st.CurrentRoundID).Str("sig", sig).Msg("settle_and_undelegate complete")

	round, err := rt.L1.FetchRound(ctx, st.CurrentRoundID)
	if err != nil {
		return err
	}
	rt.publishState(round)

	if rt.Social != nil && round.HasWinner() {
		result := social.RoundResult{
			RoundID:    round.ID,
			Winner:     round.Winner.String(),
			AlphaScore: round.AlphaScore,
			BetaScore:  round.BetaScore,
		}
		house := rt.House
		go func() {
			notifyCtx, cancel := context.WithTimeout(context.Background(), socialNotifyTimeout)
			defer cancel()
			rt.Social.PublishRoundResult(notifyCtx, house, result)
		}()
	}

	return nil
}
