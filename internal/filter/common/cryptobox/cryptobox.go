// Package cryptobox seals reporting payloads with AES-256-GCM.
//
// Wire format: random 12-byte nonce, followed by ciphertext with the 128-bit
// GCM tag appended, the whole thing base64-encoded. The receiving endpoint
// expects exactly this layout, so it must not change.
//
// The key ships inside the client, which means the scheme authenticates the
// client software, not the user; anyone who can inspect the binary can read
// the payloads. Real confidentiality would need server-issued rotated keys.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// KeySize is the required key length for AES-256.
	KeySize = 32
	// nonceSize is the GCM-recommended nonce length.
	nonceSize = 12
)

// Box seals and opens payloads with a fixed symmetric key.
type Box struct {
	aead cipher.AEAD
}

// New creates a Box from a shared key. Keys longer than KeySize are truncated
// to the first 32 bytes, matching the peer's derivation; shorter keys are
// rejected.
func New(key []byte) (*Box, error) {
	if len(key) < KeySize {
		return nil, fmt.Errorf("key must be at least %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key[:KeySize])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal marshals v to JSON, encrypts it, and returns the base64-encoded
// nonce-prefixed ciphertext.
func (b *Box) Seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshalling payload: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	// Appending to nonce yields nonce || ciphertext || tag in one buffer.
	sealed := b.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal, unmarshalling the decrypted JSON into v. The sender only
// ever seals; Open exists for tests and local tooling.
func (b *Box) Open(encoded string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	if len(raw) < nonceSize {
		return fmt.Errorf("payload too short: %d bytes", len(raw))
	}
	plaintext, err := b.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return fmt.Errorf("opening payload: %w", err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("unmarshalling payload: %w", err)
	}
	return nil
}
