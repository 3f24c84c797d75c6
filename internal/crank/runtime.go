// Package crank drives the round lifecycle: a sequential phase state machine
// issuing ledger operations with per-phase retry policy, publishing state to
// the broadcast gateway as it goes.
package crank

import (
	"context"

	"github.com/rs/zerolog"

	"snakepit-crank/internal/archive"
	"snakepit-crank/internal/chain"
	"snakepit-crank/internal/config"
	"snakepit-crank/internal/gateway"
	"snakepit-crank/internal/social"
	"snakepit-crank/internal/state"
)

// Publisher is the slice of the gateway the lifecycle needs.
type Publisher interface {
	PublishRoundState(gateway.RoundStateEvent)
	PublishRoundTransition(gateway.RoundTransitionEvent)
}

// Notifier posts round results to the social feed, best-effort.
type Notifier interface {
	PublishRoundResult(ctx context.Context, houseWallet string, result social.RoundResult)
}

// Runtime bundles everything a phase handler may touch. The orchestrator owns
// one Runtime for its whole life; phases never hold state of their own.
type Runtime struct {
	Cfg   config.Config
	Log   zerolog.Logger
	Store *state.Store
	L1    chain.Client
	ER    chain.Client

	// Optional collaborators; each may be nil.
	Gateway Publisher
	Archive archive.Service
	Social  Notifier

	// House is the program's house wallet, learned from L1 config at
	// recovery; social posts are attributed to it.
	House string
}

// publishState sends a fresh snapshot of the round to viewers.
func (rt *Runtime) publishState(round *chain.Round) {
	if rt.Gateway == nil {
		return
	}
	rt.Gateway.PublishRoundState(gateway.SerializeRoundState(round))
}
