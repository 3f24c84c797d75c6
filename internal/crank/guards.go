package crank

import (
	"context"
	"fmt"

	"snakepit-crank/internal/chain"
)

// minWalletBalance is the least either operating wallet may hold at startup
// (0.01 SOL in lamports).
const minWalletBalance = chain.LamportsPerSol / 100

// ValidateStartup refuses to let the orchestrator run against a ledger that
// does not match configuration. Every check is fatal; no partial start is
// attempted.
func ValidateStartup(ctx context.Context, rt *Runtime) error {
	cfg := rt.Cfg

	if rt.L1.ProgramID() != cfg.ProgramID {
		return fmt.Errorf("program id mismatch on L1: env=%s client=%s", cfg.ProgramID, rt.L1.ProgramID())
	}
	if rt.ER.ProgramID() != cfg.ProgramID {
		return fmt.Errorf("program id mismatch on ER: env=%s client=%s", cfg.ProgramID, rt.ER.ProgramID())
	}

	l1Deployed, err := rt.L1.ProgramDeployed(ctx)
	if err != nil {
		return fmt.Errorf("check program on L1: %w", err)
	}
	if !l1Deployed {
		return fmt.Errorf("program %s is not executable on L1 RPC %s", cfg.ProgramID, rt.L1.Endpoint())
	}
	erDeployed, err := rt.ER.ProgramDeployed(ctx)
	if err != nil {
		return fmt.Errorf("check program on ER: %w", err)
	}
	if !erDeployed {
		return fmt.Errorf("program %s is not executable on ER RPC %s", cfg.ProgramID, rt.ER.Endpoint())
	}

	l1Balance, err := rt.L1.WalletBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch L1 wallet balance: %w", err)
	}
	if l1Balance < minWalletBalance {
		return fmt.Errorf("wallet %s has insufficient L1 balance: %d lamports", rt.L1.WalletAddress(), l1Balance)
	}
	erBalance, err := rt.ER.WalletBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch ER wallet balance: %w", err)
	}
	if erBalance < minWalletBalance {
		return fmt.Errorf("wallet %s has insufficient ER balance: %d lamports", rt.ER.WalletAddress(), erBalance)
	}

	// The validator identity is queried live, never trusted from config.
	erIdentity, err := rt.ER.ValidatorIdentity(ctx)
	if err != nil {
		return fmt.Errorf("fetch ER validator identity: %w", err)
	}
	if erIdentity != cfg.ERValidator {
		return fmt.Errorf("ER validator mismatch: env=%s rpc_identity=%s", cfg.ERValidator, erIdentity)
	}

	rt.Log.Info().
		Str("programId", cfg.ProgramID).
		Str("validator", cfg.ERValidator).
		Str("wallet", rt.L1.WalletAddress()).
		Float64("l1BalanceSol", float64(l1Balance)/chain.LamportsPerSol).
		Float64("erBalanceSol", float64(erBalance)/chain.LamportsPerSol).
		Msg("startup guards passed")
	return nil
}
