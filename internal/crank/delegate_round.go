package crank

import "context"

// runDelegateRound hands the round's write authority to the configured ER
// validator so the game loop can run at rollup speed.
func runDelegateRound(ctx context.Context, rt *Runtime) error {
	st := rt.Store.Get()
	if !st.HasRound {
		return errNoActiveRound
	}

	sig, err := rt.L1.DelegateRound(ctx, st.CurrentRoundID, rt.Cfg.ERValidator)
	if err != nil {
		return err
	}
	rt.Store.SetLastTx(sig)
	rt.Log.Info().Uint64("roundId", st.CurrentRoundID).Str("sig", sig).Msg("delegate_round complete")

	round, err := rt.L1.FetchRound(ctx, st.CurrentRoundID)
	if err != nil {
		return err
	}
	rt.publishState(round)
	return nil
}
