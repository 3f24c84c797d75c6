package chain

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
)

// Wallet is the crank's operating keypair. The on-disk format is the ledger
// CLI's JSON array of 64 secret-key bytes.
type Wallet struct {
	key     ed25519.PrivateKey
	address string
}

// LoadWallet reads a keypair file. A leading "~/" expands to the home
// directory.
func LoadWallet(path string) (*Wallet, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read wallet file: %w", err)
	}

	// The file is a JSON array of numbers, not a base64 string, so it cannot
	// be unmarshalled into []byte directly.
	var nums []int
	if err := json.Unmarshal(raw, &nums); err != nil {
		return nil, fmt.Errorf("parse wallet file %s: %w", resolved, err)
	}
	if len(nums) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet file %s: expected %d key bytes, got %d",
			resolved, ed25519.PrivateKeySize, len(nums))
	}
	secret := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("wallet file %s: byte %d out of range: %d", resolved, i, n)
		}
		secret[i] = byte(n)
	}

	key := ed25519.PrivateKey(secret)
	pub := key.Public().(ed25519.PublicKey)
	return &Wallet{
		key:     key,
		address: base58.Encode(pub),
	}, nil
}

// Address returns the base58 public key.
func (w *Wallet) Address() string { return w.address }

// Sign signs a message with the wallet key.
func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.key, message)
}

func expandHome(path string) (string, error) {
	if len(path) < 2 || path[:2] != "~/" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
