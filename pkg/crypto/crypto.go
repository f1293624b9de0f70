// Package crypto holds the symmetric-key helpers the demo custody server
// uses for session tokens and at-rest protection of uploaded shares. The
// client-side share cryptography (Shamir, recovery-code wrapping) lives in
// pkg/shamir; nothing here touches the wallet's key material directly.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/hkdf"
)

// MasterKeyFromSecretPhrase derives a 32-byte master key from the server's
// configured secret phrase using SHA-256
func MasterKeyFromSecretPhrase(secretPhrase string) []byte {
	hash := sha256.Sum256([]byte(secretPhrase))
	return hash[:]
}

// DeriveShareStorageKey derives the per-user key uploaded shares are
// encrypted under before they hit the database, from the server master key
// and the wallet user id. Uses HKDF so one leaked row key never exposes
// another user's shares.
func DeriveShareStorageKey(masterKey []byte, walletUserID string) ([]byte, error) {
	salt := []byte("wallet-core-share-storage-v1")
	info := []byte(walletUserID)

	hkdfReader := hkdf.New(sha256.New, masterKey, salt, info)
	key := make([]byte, 32) // AES-256
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, nil
}

// EncryptAtRest encrypts a share's textual form using AES-256-GCM
func EncryptAtRest(plaintext string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", errors.New("key must be 32 bytes for AES-256")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptAtRest decrypts a value produced by EncryptAtRest
func DecryptAtRest(encrypted string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", errors.New("key must be 32 bytes for AES-256")
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// GenerateRandomToken generates a random bearer token for sessions
func GenerateRandomToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// GenerateRecoveryCode generates the server-issued recovery code handed to a
// newly enrolled user. Shorter than a session token so it can be written
// down; still 128 bits of entropy.
func GenerateRecoveryCode() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
