// Package auth issues and verifies storefront sessions and manages librarian accounts.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// keyLength is the PASETO v4 symmetric key size.
const keyLength = 32

// KeyFileName is the file under the data directory holding the hex-encoded session key.
const KeyFileName = "session.key"

// LoadOrGenerateKey reads the session signing key from dataPath, creating it on first run.
func LoadOrGenerateKey(dataPath string) ([]byte, error) {
	keyPath := filepath.Join(dataPath, KeyFileName)

	//#nosec G304 -- path is derived from the configured data directory
	if raw, err := os.ReadFile(keyPath); err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("invalid session key format: %w", err)
		}
		if len(key) != keyLength {
			return nil, fmt.Errorf("invalid session key length: expected %d bytes, got %d", keyLength, len(key))
		}
		return key, nil
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to save session key: %w", err)
	}
	return key, nil
}
