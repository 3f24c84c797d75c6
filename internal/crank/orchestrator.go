package crank

import (
	"context"
	"strconv"
	"time"

	"snakepit-crank/internal/gateway"
	"snakepit-crank/internal/retry"
	"snakepit-crank/internal/state"
)

const (
	bettingPollInterval = 500 * time.Millisecond
	tickFailureDelay    = time.Second
)

// Orchestrator runs the lifecycle cycle:
// READY -> CREATE_ROUND -> BETTING_OPEN -> CLOSE_BETTING -> DELEGATE_ROUND ->
// GAME_LOOP -> SETTLE -> CLEANUP -> READY -> ...
// One phase executes to completion before the next; the runtime store has
// exactly one writer.
type Orchestrator struct {
	rt        *Runtime
	stepRetry retry.Options
	moveRetry retry.Options
}

// New builds an orchestrator with retry budgets from configuration. Step
// phases are infrequent and expensive, moves are frequent and cheap, so they
// carry distinct backoff profiles.
func New(rt *Runtime) *Orchestrator {
	return &Orchestrator{
		rt: rt,
		stepRetry: retry.Options{
			Attempts:  rt.Cfg.MaxStepRetries,
			BaseDelay: 500 * time.Millisecond,
			MaxDelay:  5 * time.Second,
		},
		moveRetry: retry.Options{
			Attempts:  rt.Cfg.MaxMoveRetries,
			BaseDelay: 200 * time.Millisecond,
			MaxDelay:  2 * time.Second,
		},
	}
}

// Recover reads the authoritative next round id from L1 and moves to READY.
// Recovery is round-granular: a partially completed round is not resumed
// mid-phase, the next cycle simply starts from the ledger's notion of the
// next round.
func (o *Orchestrator) Recover(ctx context.Context) error {
	cfg, err := o.rt.L1.FetchConfig(ctx)
	if err != nil {
		return err
	}
	o.rt.House = cfg.House
	o.rt.Log.Info().
		Uint64("nextRound", cfg.NextRoundID).
		Str("lifecycle", "create_round -> betting_open -> close_betting -> delegate_round -> game_loop -> settle_and_undelegate -> cleanup").
		Msg("recovery snapshot loaded")
	o.rt.Store.SetPhase(state.PhaseReady)
	return nil
}

// Run recovers and then ticks until ctx is cancelled. A failed tick bumps the
// retry counter, logs, and pauses briefly; the same phase is retried on the
// next tick. The state machine never advances past a failed phase.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Recover(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := o.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.rt.Store.BumpRetry()
			o.rt.Log.Error().Err(err).
				Str("phase", string(o.rt.Store.Get().Phase)).
				Msg("orchestrator tick failed")
			if serr := sleep(ctx, tickFailureDelay); serr != nil {
				return nil
			}
		}
	}
}

// Tick executes one step of the state machine.
func (o *Orchestrator) Tick(ctx context.Context) error {
	st := o.rt.Store.Get()

	switch st.Phase {
	case state.PhaseReady:
		o.transition(state.PhaseCreateRound)
		return nil

	case state.PhaseCreateRound:
		if err := retry.Do(ctx, o.stepRetry, func(ctx context.Context) error {
			return runCreateRound(ctx, o.rt)
		}); err != nil {
			return err
		}
		o.rt.Store.MarkRoundCreated()
		deadline := time.Now().Add(o.rt.Cfg.RoundDuration).UnixMilli()
		o.rt.Store.SetBettingDeadline(deadline)
		o.transition(state.PhaseBettingOpen)
		return nil

	case state.PhaseBettingOpen:
		// Nothing to retry here; poll until the stored deadline passes.
		if st.BettingDeadlineMs == 0 || time.Now().UnixMilli() < st.BettingDeadlineMs {
			return sleep(ctx, bettingPollInterval)
		}
		o.transition(state.PhaseCloseBetting)
		return nil

	case state.PhaseCloseBetting:
		if err := retry.Do(ctx, o.stepRetry, func(ctx context.Context) error {
			return runCloseBetting(ctx, o.rt)
		}); err != nil {
			return err
		}
		o.rt.Store.MarkBettingClosed()
		o.transition(state.PhaseDelegateRound)
		return nil

	case state.PhaseDelegateRound:
		if err := retry.Do(ctx, o.stepRetry, func(ctx context.Context) error {
			return runDelegateRound(ctx, o.rt)
		}); err != nil {
			return err
		}
		o.transition(state.PhaseGameLoop)
		return nil

	case state.PhaseGameLoop:
		o.rt.Store.MarkGameStarted()
		if err := retry.Do(ctx, o.moveRetry, func(ctx context.Context) error {
			return runGameLoop(ctx, o.rt)
		}); err != nil {
			return err
		}
		o.rt.Store.MarkGameEnded()
		o.transition(state.PhaseSettle)
		return nil

	case state.PhaseSettle:
		if err := retry.Do(ctx, o.stepRetry, func(ctx context.Context) error {
			return runSettle(ctx, o.rt)
		}); err != nil {
			return err
		}
		o.rt.Store.MarkSettled()
		o.transition(state.PhaseCleanup)
		return nil

	case state.PhaseCleanup:
		if err := retry.Do(ctx, o.stepRetry, func(ctx context.Context) error {
			return runCleanup(ctx, o.rt)
		}); err != nil {
			return err
		}
		o.rt.Store.ClearBettingDeadline()
		o.rt.Store.ResetRoundMarkers()
		o.transition(state.PhaseReady)
		return nil

	default:
		o.rt.Store.SetPhase(state.PhaseReady)
		return nil
	}
}

// Status exposes the runtime state for the HTTP status surface.
func (o *Orchestrator) Status() state.RuntimeState {
	return o.rt.Store.Get()
}

// transition moves to the next phase and, when a round is active, publishes a
// transition event. The very first READY -> CREATE_ROUND has no round yet and
// emits nothing externally.
func (o *Orchestrator) transition(to state.Phase) {
	st := o.rt.Store.Get()
	o.rt.Store.SetPhase(to)

	if o.rt.Gateway == nil || !st.HasRound {
		return
	}
	o.rt.Gateway.PublishRoundTransition(gateway.RoundTransitionEvent{
		Type:    "round_transition_v1",
		Ts:      time.Now().UnixMilli(),
		RoundID: strconv.FormatUint(st.CurrentRoundID, 10),
		From:    string(st.Phase),
		To:      string(to),
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
