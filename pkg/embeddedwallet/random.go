package embeddedwallet

import "crypto/rand"

// randomSecret fills buf with cryptographically random bytes from
// crypto/rand.
func randomSecret(buf []byte) (int, error) {
	return rand.Read(buf)
}
