package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
)

// RPCClient talks JSON-RPC 2.0 to one ledger endpoint. Program operations are
// exposed by the endpoint's program gateway as namespaced methods; account
// reads return the raw account JSON which is decoded here, once.
type RPCClient struct {
	endpoint  string
	programID string
	wallet    *Wallet
	http      *http.Client
	nextID    atomic.Uint64
}

// NewRPCClient builds a client for one endpoint. The wallet signs every
// submission and pays fees on that ledger.
func NewRPCClient(endpoint, programID string, wallet *Wallet) *RPCClient {
	return &RPCClient{
		endpoint:  endpoint,
		programID: programID,
		wallet:    wallet,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, raw)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("%s: %w", method, parsed.Error)
	}
	if out != nil {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// submit invokes a program instruction and returns the transaction signature.
// The invoke payload is signed by the operating wallet; the gateway verifies
// the signature against the signer address before executing.
func (c *RPCClient) submit(ctx context.Context, instruction string, args map[string]any) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"program":     c.programID,
		"instruction": instruction,
		"signer":      c.wallet.Address(),
		"args":        args,
	})
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", instruction, err)
	}
	params := map[string]any{
		"payload":   json.RawMessage(payload),
		"signature": base58.Encode(c.wallet.Sign(payload)),
	}
	var result struct {
		Signature string `json:"signature"`
	}
	if err := c.call(ctx, "program_invoke", params, &result); err != nil {
		return "", err
	}
	return result.Signature, nil
}

func (c *RPCClient) fetchAccount(ctx context.Context, kind string, args map[string]any) (json.RawMessage, error) {
	params := map[string]any{
		"program": c.programID,
		"account": kind,
		"args":    args,
	}
	var raw json.RawMessage
	if err := c.call(ctx, "program_account", params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *RPCClient) FetchConfig(ctx context.Context) (*GlobalConfig, error) {
	raw, err := c.fetchAccount(ctx, "config", nil)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		RoundID   uint64 `json:"roundId"`
		House     string `json:"house"`
		Authority string `json:"authority"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config account: %w", err)
	}
	return &GlobalConfig{NextRoundID: cfg.RoundID, House: cfg.House, Authority: cfg.Authority}, nil
}

func (c *RPCClient) FetchRound(ctx context.Context, roundID uint64) (*Round, error) {
	raw, err := c.fetchAccount(ctx, "round", map[string]any{"roundId": roundID})
	if err != nil {
		return nil, err
	}
	return decodeRound(raw)
}

func (c *RPCClient) FetchBetsForRound(ctx context.Context, roundID uint64) ([]Bet, error) {
	raw, err := c.fetchAccount(ctx, "bets", map[string]any{"roundId": roundID})
	if err != nil {
		return nil, err
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode bet list: %w", err)
	}
	bets := make([]Bet, 0, len(entries))
	for _, entry := range entries {
		bet, err := decodeBet(entry)
		if err != nil {
			return nil, err
		}
		if bet.RoundID != roundID {
			continue
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

func (c *RPCClient) CreateRound(ctx context.Context, roundID uint64, duration int64) (string, error) {
	return c.submit(ctx, "create_round", map[string]any{"roundId": roundID, "duration": duration})
}

func (c *RPCClient) CloseBetting(ctx context.Context, roundID uint64) (string, error) {
	return c.submit(ctx, "close_betting", map[string]any{"roundId": roundID})
}

func (c *RPCClient) DelegateRound(ctx context.Context, roundID uint64, validator string) (string, error) {
	return c.submit(ctx, "delegate_round", map[string]any{"roundId": roundID, "validator": validator})
}

func (c *RPCClient) ExecuteMove(ctx context.Context, roundID uint64) (string, error) {
	return c.submit(ctx, "execute_move", map[string]any{"roundId": roundID})
}

func (c *RPCClient) SettleAndUndelegate(ctx context.Context, roundID uint64) (string, error) {
	return c.submit(ctx, "settle_and_undelegate", map[string]any{"roundId": roundID})
}

func (c *RPCClient) CloseBet(ctx context.Context, roundID uint64, user string) (string, error) {
	return c.submit(ctx, "close_bet", map[string]any{"roundId": roundID, "user": user})
}

func (c *RPCClient) SweepVault(ctx context.Context, roundID uint64) (string, error) {
	return c.submit(ctx, "sweep_vault", map[string]any{"roundId": roundID})
}

func (c *RPCClient) ProgramID() string     { return c.programID }
func (c *RPCClient) Endpoint() string      { return c.endpoint }
func (c *RPCClient) WalletAddress() string { return c.wallet.Address() }

func (c *RPCClient) WalletBalance(ctx context.Context) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{c.wallet.Address()}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

func (c *RPCClient) ProgramDeployed(ctx context.Context) (bool, error) {
	var result struct {
		Value *struct {
			Executable bool `json:"executable"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", []any{c.programID}, &result); err != nil {
		return false, err
	}
	return result.Value != nil && result.Value.Executable, nil
}

func (c *RPCClient) ValidatorIdentity(ctx context.Context) (string, error) {
	var result struct {
		Identity string `json:"identity"`
	}
	if err := c.call(ctx, "getIdentity", []any{}, &result); err != nil {
		return "", err
	}
	if result.Identity == "" {
		return "", fmt.Errorf("getIdentity response missing identity")
	}
	return result.Identity, nil
}
