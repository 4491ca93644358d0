// Package token seals pagination continuation tokens so the store's internal
// cursor never crosses the API boundary in the clear. Tokens are encrypted
// and authenticated with NaCl secretbox; tampering renders them unreadable.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const keyFileName = "ts-token.key"

var errMalformed = errors.New("token is malformed or has been tampered with")

type Sealer struct {
	key [32]byte
}

// NewSealer loads the sealing key from dir, generating and persisting a new
// one on first start so tokens stay valid across process restarts.
func NewSealer(dir string) (*Sealer, error) {
	const op = "token.NewSealer"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	path := filepath.Join(dir, keyFileName)

	s := &Sealer{}
	data, err := os.ReadFile(path)
	if err == nil && len(data) == len(s.key) {
		copy(s.key[:], data)
		return s, nil
	}

	if _, err := rand.Read(s.key[:]); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := os.WriteFile(path, s.key[:], 0o600); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// Seal encrypts plain into an opaque URL-safe token.
func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("token.Seal: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal. Any decode or authentication
// failure reports the token as malformed.
func (s *Sealer) Open(tok string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(sealed) < 24 {
		return "", errMalformed
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return "", errMalformed
	}
	return string(plain), nil
}
