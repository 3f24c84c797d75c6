package chain

import "context"

// Client is the capability one ledger endpoint exposes to the crank. Two
// instances exist at runtime: the persistent base ledger (L1) and the
// ephemeral rollup (ER) a round is delegated to during gameplay.
//
// Submissions are fire-and-confirm: they return the transaction signature
// once the remote endpoint accepts the operation.
type Client interface {
	// Reads.
	FetchConfig(ctx context.Context) (*GlobalConfig, error)
	FetchRound(ctx context.Context, roundID uint64) (*Round, error)
	FetchBetsForRound(ctx context.Context, roundID uint64) ([]Bet, error)

	// Lifecycle submissions.
	CreateRound(ctx context.Context, roundID uint64, duration int64) (string, error)
	CloseBetting(ctx context.Context, roundID uint64) (string, error)
	DelegateRound(ctx context.Context, roundID uint64, validator string) (string, error)
	ExecuteMove(ctx context.Context, roundID uint64) (string, error)
	SettleAndUndelegate(ctx context.Context, roundID uint64) (string, error)
	CloseBet(ctx context.Context, roundID uint64, user string) (string, error)
	SweepVault(ctx context.Context, roundID uint64) (string, error)

	// Startup guard surface.
	ProgramID() string
	Endpoint() string
	WalletAddress() string
	WalletBalance(ctx context.Context) (uint64, error)
	ProgramDeployed(ctx context.Context) (bool, error)
	ValidatorIdentity(ctx context.Context) (string, error)
}
