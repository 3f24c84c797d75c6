// Package chain is the typed boundary to the two ledgers. On-ledger accounts
// arrive as loosely shaped JSON with Anchor-style single-key enum tags; this
// package decodes them exactly once into closed Go types so nothing downstream
// ever re-interprets raw account data.
package chain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BoardCells is the fixed length of each side's board grid (8x8).
const BoardCells = 64

// LamportsPerSol is the base-unit scale of wallet balances.
const LamportsPerSol = 1_000_000_000

// RoundStatus is the on-ledger lifecycle tag of a round account.
type RoundStatus int

const (
	StatusUnknown RoundStatus = iota
	StatusActive
	StatusInProgress
	StatusSettled
)

func (s RoundStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusInProgress:
		return "InProgress"
	case StatusSettled:
		return "Settled"
	default:
		return "Unknown"
	}
}

// ParseRoundStatus maps an on-ledger status tag to a RoundStatus.
func ParseRoundStatus(tag string) RoundStatus {
	switch strings.ToLower(tag) {
	case "active":
		return StatusActive
	case "inprogress", "in_progress":
		return StatusInProgress
	case "settled":
		return StatusSettled
	default:
		return StatusUnknown
	}
}

// Choice is a side of the duel; also the winner tag once a round resolves.
type Choice int

const (
	ChoiceAlpha Choice = iota
	ChoiceBeta
	ChoiceDraw
)

func (c Choice) String() string {
	switch c {
	case ChoiceAlpha:
		return "Alpha"
	case ChoiceBeta:
		return "Beta"
	case ChoiceDraw:
		return "Draw"
	default:
		return "Unknown"
	}
}

// ParseChoice maps an on-ledger choice tag to a Choice.
func ParseChoice(tag string) (Choice, error) {
	switch strings.ToLower(tag) {
	case "alpha":
		return ChoiceAlpha, nil
	case "beta":
		return ChoiceBeta, nil
	case "draw":
		return ChoiceDraw, nil
	default:
		return 0, fmt.Errorf("unknown choice tag %q", tag)
	}
}

// GlobalConfig is the program's global configuration account.
type GlobalConfig struct {
	NextRoundID uint64
	House       string
	Authority   string
}

// Round is a decoded round account. Winner is nil until the duel resolves.
type Round struct {
	ID         uint64
	Status     RoundStatus
	Winner     *Choice
	MoveCount  uint64
	AlphaScore uint32
	BetaScore  uint32
	AlphaAlive bool
	BetaAlive  bool
	AlphaBoard [BoardCells]uint8
	BetaBoard  [BoardCells]uint8
}

// HasWinner reports whether the duel has resolved.
func (r *Round) HasWinner() bool { return r.Winner != nil }

// Bet is a decoded per-user wager account.
type Bet struct {
	RoundID uint64
	User    string
	Choice  Choice
	Amount  uint64
	Claimed bool
}

// enumKey extracts the tag of an Anchor-style enum value, which is encoded as
// an object with a single key, e.g. {"active":{}}.
func enumKey(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		// Some RPC layers flatten enums to plain strings.
		var s string
		if serr := json.Unmarshal(raw, &s); serr == nil {
			return s, nil
		}
		return "", fmt.Errorf("decode enum tag: %w", err)
	}
	for key := range obj {
		return key, nil
	}
	return "", nil
}

type rawRound struct {
	RoundID    uint64          `json:"roundId"`
	Status     json.RawMessage `json:"status"`
	Winner     json.RawMessage `json:"winner"`
	MoveCount  uint64          `json:"moveCount"`
	AlphaScore uint32          `json:"alphaScore"`
	BetaScore  uint32          `json:"betaScore"`
	AlphaAlive bool            `json:"alphaAlive"`
	BetaAlive  bool            `json:"betaAlive"`
	AlphaBoard []uint8         `json:"alphaBoard"`
	BetaBoard  []uint8         `json:"betaBoard"`
}

func decodeRound(data []byte) (*Round, error) {
	var raw rawRound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode round account: %w", err)
	}

	statusTag, err := enumKey(raw.Status)
	if err != nil {
		return nil, err
	}

	round := &Round{
		ID:         raw.RoundID,
		Status:     ParseRoundStatus(statusTag),
		MoveCount:  raw.MoveCount,
		AlphaScore: raw.AlphaScore,
		BetaScore:  raw.BetaScore,
		AlphaAlive: raw.AlphaAlive,
		BetaAlive:  raw.BetaAlive,
	}
	copy(round.AlphaBoard[:], raw.AlphaBoard)
	copy(round.BetaBoard[:], raw.BetaBoard)

	winnerTag, err := enumKey(raw.Winner)
	if err != nil {
		return nil, err
	}
	if winnerTag != "" {
		winner, err := ParseChoice(winnerTag)
		if err != nil {
			return nil, fmt.Errorf("decode round winner: %w", err)
		}
		round.Winner = &winner
	}

	return round, nil
}

type rawBet struct {
	RoundID uint64          `json:"roundId"`
	User    string          `json:"user"`
	Choice  json.RawMessage `json:"choice"`
	Amount  uint64          `json:"amount"`
	Claimed bool            `json:"claimed"`
}

func decodeBet(data []byte) (Bet, error) {
	var raw rawBet
	if err := json.Unmarshal(data, &raw); err != nil {
		return Bet{}, fmt.Errorf("decode bet account: %w", err)
	}
	tag, err := enumKey(raw.Choice)
	if err != nil {
		return Bet{}, err
	}
	choice, err := ParseChoice(tag)
	if err != nil {
		return Bet{}, fmt.Errorf("decode bet choice: %w", err)
	}
	return Bet{
		RoundID: raw.RoundID,
		User:    raw.User,
		Choice:  choice,
		Amount:  raw.Amount,
		Claimed: raw.Claimed,
	}, nil
}
