package crank

import (
	"context"
	"errors"
)

var errNoActiveRound = errors.New("no active round")

// runCloseBetting stops wagering on the active round.
func runCloseBetting(ctx context.Context, rt *Runtime) error {
	st := rt.Store.Get()
	if !st.HasRound {
		return errNoActiveRound
	}

	sig, err := rt.L1.CloseBetting(ctx, st.CurrentRoundID)
	if err != nil {
		return err
	}
	rt.Store.SetLastTx(sig)
	rt.Log.Info().Uint64("roundId", st.CurrentRoundID).Str("sig", sig).Msg("close_betting complete")

	round, err := rt.L1.FetchRound(ctx, st.CurrentRoundID)
	if err != nil {
		return err
	}
	rt.publishState(round)
	return nil
}
