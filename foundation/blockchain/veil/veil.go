// Package veil provides the privacy-veil capability: producing a commitment
// over a command's parameters plus an attestation token, without revealing
// the parameters to observers. The node treats both as opaque; only the
// format is validated on chain.
package veil

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Provider represents the capability to veil a command. Production nodes
// substitute an external privacy service; the module ships an in-process
// implementation with the same contract.
type Provider interface {
	Commit(params map[string]string) (commitment string, attestation string, err error)
	Verify(params map[string]string, commitment string, attestation string) error
}

// =============================================================================

// MockProvider implements Provider with an HMAC over the canonical encoding
// of the parameters. The key is generated per process, so attestations are
// only verifiable by the node that produced them.
type MockProvider struct {
	key []byte
}

// blindingSize is the number of random bytes folded into each commitment so
// two commitments over the same parameters never collide and the commitment
// can't be reversed by hashing candidate parameter sets.
const blindingSize = 32

// NewMockProvider constructs an in-process veil provider.
func NewMockProvider() (*MockProvider, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating veil key: %w", err)
	}

	return &MockProvider{key: key}, nil
}

// Commit produces the commitment and attestation for the parameters. A fresh
// blinding value is folded into every commitment and carried inside the
// attestation, which binds it under the provider's key.
func (p *MockProvider) Commit(params map[string]string) (string, string, error) {
	blinding := make([]byte, blindingSize)
	if _, err := rand.Read(blinding); err != nil {
		return "", "", fmt.Errorf("generating blinding: %w", err)
	}

	commitment, err := p.commitment(params, blinding)
	if err != nil {
		return "", "", err
	}

	mac := hmac.New(sha256.New, p.key)
	mac.Write(commitment)

	attestation := append(append([]byte{}, blinding...), mac.Sum(nil)...)

	return hex.EncodeToString(commitment), hex.EncodeToString(attestation), nil
}

// Verify checks the commitment matches the parameters under the attestation's
// blinding value and that the attestation was produced by this provider.
func (p *MockProvider) Verify(params map[string]string, commitment string, attestation string) error {
	att, err := hex.DecodeString(attestation)
	if err != nil {
		return fmt.Errorf("attestation is not hex encoded: %w", err)
	}
	if len(att) != blindingSize+sha256.Size {
		return fmt.Errorf("attestation has the wrong length: %d", len(att))
	}
	blinding := att[:blindingSize]

	want, err := p.commitment(params, blinding)
	if err != nil {
		return err
	}
	if hex.EncodeToString(want) != commitment {
		return fmt.Errorf("commitment does not match parameters")
	}

	mac := hmac.New(sha256.New, p.key)
	mac.Write(want)
	if !hmac.Equal(att[blindingSize:], mac.Sum(nil)) {
		return fmt.Errorf("attestation does not verify")
	}

	return nil
}

// commitment hashes the canonical parameter digest together with the
// blinding value.
func (p *MockProvider) commitment(params map[string]string, blinding []byte) ([]byte, error) {
	digest, err := canonicalDigest(params)
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	h.Write(digest)
	h.Write(blinding)

	return h.Sum(nil), nil
}

// canonicalDigest hashes the parameters in a stable order. Go's JSON encoder
// sorts map keys, which is the canonical ordering the chain relies on.
func canonicalDigest(params map[string]string) ([]byte, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)
	return digest[:], nil
}
