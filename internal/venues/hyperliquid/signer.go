package hyperliquid

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/quantfold/perparb/internal/venues"
)

// keySigner signs actions with an ed25519 key loaded from disk.
type keySigner struct {
	key ed25519.PrivateKey
}

// LoadSigner reads a hex-encoded private key from path. The file holds
// either a 32-byte seed or a full 64-byte private key.
func LoadSigner(path string) (venues.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet file: %w", err)
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("wallet file is not hex encoded: %w", err)
	}

	var key ed25519.PrivateKey
	switch len(decoded) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(decoded)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(decoded)
	default:
		return nil, fmt.Errorf("wallet key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(decoded))
	}
	return &keySigner{key: key}, nil
}

func (s *keySigner) PublicKey() string {
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

func (s *keySigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	return ed25519.Sign(s.key, payload), nil
}
