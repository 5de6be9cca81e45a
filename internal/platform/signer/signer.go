// Package signer supplies the active identity and its signing capability.
// Keys are provided by an external wallet; this package never generates or
// persists them on behalf of a participant, except for the ephemeral
// development provider.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	apperrors "solock-backend/internal/common/errors"
)

// Provider exposes the active identity. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Identity returns the active public key, or a NO_IDENTITY error when no
	// signer is attached.
	Identity() (ed25519.PublicKey, error)
	// Sign signs an operation payload with the active key.
	Sign(message []byte) ([]byte, error)
}

type keyProvider struct {
	priv ed25519.PrivateKey
}

// NewFromKeyFile loads a base64-encoded ed25519 key from disk. Both 32-byte
// seeds and full 64-byte private keys are accepted.
func NewFromKeyFile(path string) (Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}

	switch len(decoded) {
	case ed25519.SeedSize:
		return &keyProvider{priv: ed25519.NewKeyFromSeed(decoded)}, nil
	case ed25519.PrivateKeySize:
		return &keyProvider{priv: ed25519.PrivateKey(decoded)}, nil
	default:
		return nil, fmt.Errorf("invalid key length %d", len(decoded))
	}
}

// NewEphemeral generates a throwaway identity for local development.
func NewEphemeral() (Provider, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &keyProvider{priv: priv}, nil
}

func (p *keyProvider) Identity() (ed25519.PublicKey, error) {
	return p.priv.Public().(ed25519.PublicKey), nil
}

func (p *keyProvider) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(p.priv, message), nil
}

// Disconnected is a Provider with no attached identity. Every call fails
// fast with NO_IDENTITY.
type Disconnected struct{}

func (Disconnected) Identity() (ed25519.PublicKey, error) {
	return nil, apperrors.NewNoIdentityError()
}

func (Disconnected) Sign([]byte) ([]byte, error) {
	return nil, apperrors.NewNoIdentityError()
}
