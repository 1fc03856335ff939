// Package seal encrypts note payloads with AES-256-GCM.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Prefix marks a sealed payload.
const Prefix = "enc:v1:"

var (
	// ErrCiphertextTooShort is returned for payloads shorter than a nonce.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	// ErrNotSealed is returned when Open gets text without Prefix.
	ErrNotSealed = errors.New("payload is not sealed")
	// ErrEmptyKey is returned by New for an empty secret.
	ErrEmptyKey = errors.New("encryption key is empty")
)

var hkdfInfo = []byte("physio-scribe note payload v1")

// Sealer encrypts and decrypts payloads with one derived key.
type Sealer struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from secret with HKDF-SHA256.
func New(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher block: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plaintext and returns Prefix + base64(nonce|ciphertext).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(payload string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(payload, Prefix)
	if !ok {
		return nil, ErrNotSealed
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether payload carries the sealed marker.
func IsSealed(payload string) bool {
	return strings.HasPrefix(payload, Prefix) && len(payload) > len(Prefix)
}
