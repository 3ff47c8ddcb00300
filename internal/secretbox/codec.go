// Package secretbox encrypts sensitive field values at rest.
//
// Ciphertext is rendered as a string with a fixed structural marker so the
// codec can be applied idempotently: "enc1:" followed by the base64-encoded
// nonce and AES-256-GCM sealed payload. IsEncrypted is a pure shape check;
// it never attempts decryption.
//
// Two independently keyed codecs exist process-wide: one for credential
// material and one for personally identifying fields, so rotating one key
// class never requires decrypting the other.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Marker is the prefix distinguishing ciphertext from plaintext.
const Marker = "enc1:"

// KeySize is the AES-256 key size in bytes.
const KeySize = 32

// DecryptError indicates ciphertext that is malformed or was sealed with a
// different key. Callers treat it as "no value present" rather than a crash.
type DecryptError struct {
	Reason string
	Cause  error
}

func (e *DecryptError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("secretbox: %s: %v", e.Reason, e.Cause)
	}
	return "secretbox: " + e.Reason
}

func (e *DecryptError) Unwrap() error { return e.Cause }

// Codec seals and opens string values with a single symmetric key.
type Codec struct {
	aead cipher.AEAD
}

// New creates a Codec from a 32-byte key.
func New(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("secretbox: key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: creating GCM: %w", err)
	}
	return &Codec{aead: gcm}, nil
}

// NewFromSecret derives a 32-byte key from arbitrary secret material using
// HKDF-SHA256 and creates a Codec with it. The label separates key classes:
// deriving with different labels from the same material yields independent
// keys.
func NewFromSecret(secret []byte, label string) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secretbox: secret material is empty")
	}

	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte("bastion/secretbox/v1/"+label))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("secretbox: deriving key: %w", err)
	}
	return New(key)
}

// IsEncrypted reports whether value carries the ciphertext marker and a
// plausibly sized payload. Purely structural; no decryption is attempted.
func IsEncrypted(value string) bool {
	if !strings.HasPrefix(value, Marker) {
		return false
	}
	payload, err := base64.StdEncoding.DecodeString(value[len(Marker):])
	if err != nil {
		return false
	}
	// Shortest valid payload is nonce (12) + GCM tag (16).
	return len(payload) >= 28
}

// Encrypt seals plaintext. Empty input is a no-op so callers never have to
// special-case absent values.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Marker + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext produced by Encrypt. Empty input is a no-op.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	if !strings.HasPrefix(ciphertext, Marker) {
		return "", &DecryptError{Reason: "value is not secretbox ciphertext"}
	}

	payload, err := base64.StdEncoding.DecodeString(ciphertext[len(Marker):])
	if err != nil {
		return "", &DecryptError{Reason: "malformed ciphertext encoding", Cause: err}
	}

	nonceSize := c.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", &DecryptError{Reason: "ciphertext too short"}
	}

	nonce, sealed := payload[:nonceSize], payload[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &DecryptError{Reason: "ciphertext unreadable with current key", Cause: err}
	}
	return string(plaintext), nil
}

// EncryptIfNeeded encrypts value unless it is empty or already carries the
// ciphertext marker. It returns the resulting value and whether a mutation
// occurred, which makes encryption migration passes idempotent: a second pass
// over the same data set reports zero mutations.
func (c *Codec) EncryptIfNeeded(value string) (string, bool, error) {
	if value == "" || IsEncrypted(value) {
		return value, false, nil
	}
	encrypted, err := c.Encrypt(value)
	if err != nil {
		return "", false, err
	}
	return encrypted, true, nil
}
