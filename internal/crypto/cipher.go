// Package crypto provides symmetric authenticated encryption for sensitive
// config values stored in the database. Values are wrapped with a constant
// sentinel prefix so encryption is idempotent and legacy plaintext values
// pass through decryption unchanged.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
)

// Sentinel marks an encrypted value. IsEncrypted(v) is defined as
// strings.HasPrefix(v, Sentinel).
const Sentinel = "enc::v1::"

// DecryptFailedPlaceholder is returned when a value carries the sentinel but
// cannot be decrypted (wrong or missing key). Decryption never fails hard
// because callers cannot distinguish plaintext legacy values from encrypted
// ones without attempting decryption.
const DecryptFailedPlaceholder = "<decryption-failed>"

// Cipher wraps string secrets with AES-GCM.
type Cipher struct {
	key    []byte
	logger arbor.ILogger
}

// New creates a cipher. The key is taken from keyOverride (base64) when set;
// otherwise a 256-bit key is read from keyPath, generated on first use and
// written with mode 0600.
func New(keyOverride, keyPath string, logger arbor.ILogger) (*Cipher, error) {
	var key []byte
	if keyOverride != "" {
		decoded, err := base64.StdEncoding.DecodeString(keyOverride)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("encryption key override must be base64-encoded 32 bytes")
		}
		key = decoded
	} else {
		var err error
		key, err = getOrCreateKey(keyPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to get encryption key: %w", err)
		}
	}
	return &Cipher{key: key, logger: logger}, nil
}

// getOrCreateKey reads the at-rest key file, generating a fresh key if absent.
func getOrCreateKey(keyPath string, logger arbor.ILogger) ([]byte, error) {
	if data, err := os.ReadFile(keyPath); err == nil {
		key := make([]byte, 32)
		n, err := base64.StdEncoding.Decode(key, data)
		if err == nil && n == 32 {
			return key[:32], nil
		}
		logger.Warn().Str("path", keyPath).Msg("Existing encryption key file is unreadable, generating a new key")
	}

	key := make([]byte, 32) // AES-256
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to save key: %w", err)
	}

	logger.Info().Str("path", keyPath).Msg("Generated new encryption key")
	return key, nil
}

// IsEncrypted reports whether a value carries the sentinel prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Sentinel)
}

// Encrypt wraps a secret. Empty input and already-encrypted values are
// returned unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || IsEncrypted(plaintext) {
		return plaintext, nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return Sentinel + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt unwraps a value. Plaintext (no sentinel) passes through unchanged.
// An encrypted value that cannot be opened yields DecryptFailedPlaceholder —
// never an error.
func (c *Cipher) Decrypt(value string) string {
	if !IsEncrypted(value) {
		return value
	}

	payload := strings.TrimPrefix(value, Sentinel)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		c.logger.Warn().Msg("Encrypted value is not valid base64")
		return DecryptFailedPlaceholder
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return DecryptFailedPlaceholder
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return DecryptFailedPlaceholder
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		c.logger.Warn().Msg("Encrypted value too short")
		return DecryptFailedPlaceholder
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		c.logger.Warn().Msg("Failed to decrypt value (wrong or rotated key)")
		return DecryptFailedPlaceholder
	}

	return string(plaintext)
}
