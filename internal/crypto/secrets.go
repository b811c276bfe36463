// Package crypto seals per-bot third-party API keys with an
// AES-256-GCM envelope keyed by a base64-encoded 32-byte master key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const nonceSize = 12

var (
	ErrInvalidKeyLength = errors.New("encryption key must decode to exactly 32 bytes")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// weakKeyWords are byte patterns that indicate a human typed the key
// instead of generating it.
var weakKeyWords = []string{
	"password", "secret", "abcdef", "qwerty", "letmein", "changeme", "test", "example",
}

// SecretsEncryption encrypts and decrypts small string secrets.
// Construct once at startup and share; it is safe for concurrent use.
type SecretsEncryption struct {
	aead cipher.AEAD
}

// NewSecretsEncryption decodes and validates the master key. Weak key
// material is logged as a warning but never rejected; an operator who
// ships a low-entropy key gets a paper trail, not an outage.
func NewSecretsEncryption(keyBase64 string, log *zap.Logger) (*SecretsEncryption, error) {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidKeyLength, "key is not valid base64")
	}
	if len(key) != 32 {
		return nil, errors.Wrapf(ErrInvalidKeyLength, "decoded length %d", len(key))
	}

	for _, w := range keyWarnings(key) {
		log.Warn("encryption key looks weak", zap.String("finding", w))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build aead")
	}
	return &SecretsEncryption{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh random nonce and returns
// nonce || ciphertext || tag.
func (s *SecretsEncryption) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a value produced by Encrypt. Short input, a tag
// mismatch, and non-UTF-8 plaintext all surface as ErrDecryptionFailed.
func (s *SecretsEncryption) Decrypt(sealed []byte) (string, error) {
	if len(sealed) < nonceSize {
		return "", errors.Wrap(ErrDecryptionFailed, "ciphertext too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(ErrDecryptionFailed, err.Error())
	}
	if !utf8.Valid(plaintext) {
		return "", errors.Wrap(ErrDecryptionFailed, "plaintext is not valid utf-8")
	}
	return string(plaintext), nil
}

// keyWarnings inspects decoded key material for signs of weak entropy.
func keyWarnings(key []byte) []string {
	var findings []string

	allZero := true
	constant := true
	seen := make(map[byte]struct{}, len(key))
	for _, b := range key {
		if b != 0 {
			allZero = false
		}
		if b != key[0] {
			constant = false
		}
		seen[b] = struct{}{}
	}

	switch {
	case allZero:
		findings = append(findings, "key is all zero bytes")
	case constant:
		findings = append(findings, fmt.Sprintf("key is a constant byte 0x%02x", key[0]))
	}

	if len(seen)*2 < len(key) {
		findings = append(findings, fmt.Sprintf("key has only %d unique bytes out of %d", len(seen), len(key)))
	}

	lower := strings.ToLower(string(key))
	for _, w := range weakKeyWords {
		if strings.Contains(lower, w) {
			findings = append(findings, fmt.Sprintf("key contains the word %q", w))
			break
		}
	}
	return findings
}
