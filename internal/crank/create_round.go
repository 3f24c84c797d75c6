package crank

import "context"

// runCreateRound opens the next round on L1. The round id comes from the
// program's global configuration, never from local state.
func runCreateRound(ctx context.Context, rt *Runtime) error {
	cfg, err := rt.L1.FetchConfig(ctx)
	if err != nil {
		return err
	}
	roundID := cfg.NextRoundID

	durationSecs := int64(rt.Cfg.RoundDuration.Seconds())
	sig, err := rt.L1.CreateRound(ctx, roundID, durationSecs)
	if err != nil {
		return err
	}
	rt.Store.SetRound(roundID)
	rt.Store.SetLastTx(sig)
	rt.Log.Info().Uint64("roundId", roundID).Str("sig", sig).Msg("create_round complete")

	round, err := rt.L1.FetchRound(ctx, roundID)
	if err != nil {
		return err
	}
	rt.publishState(round)
	return nil
}
