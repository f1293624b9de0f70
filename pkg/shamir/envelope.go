package shamir

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"wallet-core/pkg/walleterr"
)

const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	gcmNonceSize = 12
)

// recoveryKey derives the 256-bit AES key the recovery share is wrapped
// under from the user's recovery code. scryptSalt scopes the derivation to
// one wallet user so the same code never derives the same key across
// accounts.
func recoveryKey(code string, scryptSalt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(code), scryptSalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, walleterr.New("shamir.recoveryKey", walleterr.KindShareCorrupt, err)
	}
	return key, nil
}

// saltFor derives the scrypt salt bound to a wallet user id, so recovery
// codes are never used with the KDF's default empty salt.
func saltFor(walletUserID string) []byte {
	h := sha256.Sum256([]byte(walletUserID))
	return h[:]
}

// EncryptShare wraps a share's textual encoding in AES-256-GCM keyed by a
// scrypt derivation of the recovery code, scoped to walletUserID. The output
// is base64url(nonce || ciphertext || tag).
func EncryptShare(share Share, code, walletUserID string) (string, error) {
	key, err := recoveryKey(code, saltFor(walletUserID))
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", walleterr.New("shamir.EncryptShare", walleterr.KindShareCorrupt, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", walleterr.New("shamir.EncryptShare", walleterr.KindShareCorrupt, err)
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", walleterr.New("shamir.EncryptShare", walleterr.KindShareCorrupt, err)
	}
	plaintext := []byte(share.Encode())
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptShare is the inverse of EncryptShare. It fails with
// walleterr.KindWrongRecoveryCode if the GCM tag does not verify, which
// covers both a wrong code and corrupted ciphertext.
func DecryptShare(blob, code, walletUserID string) (Share, error) {
	raw, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return Share{}, walleterr.New("shamir.DecryptShare", walleterr.KindShareCorrupt, fmt.Errorf("invalid envelope encoding: %w", err))
	}
	if len(raw) < gcmNonceSize {
		return Share{}, walleterr.New("shamir.DecryptShare", walleterr.KindShareCorrupt, fmt.Errorf("envelope too short"))
	}

	key, err := recoveryKey(code, saltFor(walletUserID))
	if err != nil {
		return Share{}, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return Share{}, walleterr.New("shamir.DecryptShare", walleterr.KindShareCorrupt, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Share{}, walleterr.New("shamir.DecryptShare", walleterr.KindShareCorrupt, err)
	}

	nonce, ciphertext := raw[:gcmNonceSize], raw[gcmNonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Share{}, walleterr.New("shamir.DecryptShare", walleterr.KindWrongRecoveryCode, err)
	}

	share, err := Decode(string(plaintext))
	if err != nil {
		return Share{}, err
	}
	return share, nil
}
