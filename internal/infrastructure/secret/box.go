// Package secret seals tenant channel secrets before they are written to
// the database.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Errors
var (
	ErrInvalidKey        = errors.New("encryption key must be 32 bytes (raw or hex)")
	ErrInvalidCiphertext = errors.New("ciphertext is malformed or was sealed with another key")
)

// Box seals and opens secrets with XSalsa20-Poly1305.
type Box struct {
	key [32]byte
}

// NewBox builds a Box from a 32 byte key given raw or hex encoded.
func NewBox(key string) (*Box, error) {
	var raw []byte
	switch {
	case len(key) == 64:
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, ErrInvalidKey
		}
		raw = decoded
	case len(key) == 32:
		raw = []byte(key)
	default:
		return nil, ErrInvalidKey
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// NewDevelopmentBox derives a key from seed. Only for local runs where no
// encryption key is configured.
func NewDevelopmentBox(seed string) *Box {
	b := &Box{}
	b.key = sha256.Sum256([]byte("orderbot-dev:" + seed))
	return b
}

// Seal encrypts plaintext. The empty string seals to the empty string so
// "no secret" round-trips without a ciphertext.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal
func (b *Box) Open(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidCiphertext
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}
