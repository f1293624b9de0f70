package shamir

import (
	"math/big"
	"testing"
)

func fixtureSecret() [SecretSize]byte {
	var s [SecretSize]byte
	for i := range s {
		s[i] = 0x00 + byte(i)*0x11
	}
	return s
}

func fixtureCoefficient() *big.Int {
	a, _ := new(big.Int).SetString("0102030405060708090a0b0c0d0e0f10", 16)
	return a
}

func TestSplitCombineAllPairs(t *testing.T) {
	secret := fixtureSecret()
	device, auth, recovery, err := Split(secret)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	pairs := [][2]Share{
		{device, auth},
		{device, recovery},
		{auth, recovery},
	}
	for _, pair := range pairs {
		got, err := Combine(pair[0], pair[1])
		if err != nil {
			t.Fatalf("Combine(%s,%s): %v", pair[0].ID, pair[1].ID, err)
		}
		if got != secret {
			t.Fatalf("Combine(%s,%s) = %x, want %x", pair[0].ID, pair[1].ID, got, secret)
		}
	}
}

func TestCombineDuplicateIndexFails(t *testing.T) {
	secret := fixtureSecret()
	device, _, _, err := Split(secret)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if _, err := Combine(device, device); err == nil {
		t.Fatal("expected error combining a share with itself")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	secret := fixtureSecret()
	_, auth, _, err := Split(secret)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	decoded, err := Decode(auth.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ID != auth.ID || decoded.Y.Cmp(auth.Y) != 0 {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, auth)
	}
}

func TestNewShareRegeneratesDeviceShare(t *testing.T) {
	secret := fixtureSecret()
	device, auth, recovery, err := Split(secret)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	regenerated, err := NewShare(ShareDevice, auth, recovery)
	if err != nil {
		t.Fatalf("NewShare: %v", err)
	}
	if regenerated.Y.Cmp(device.Y) != 0 {
		t.Fatalf("regenerated device share = %s, want %s", regenerated.Y, device.Y)
	}
}

// TestEnrollmentFixture pins the S1 scenario: a frozen secret and
// coefficient produce deterministic shares, and the device+recovery pair
// reconstructs the secret exactly.
func TestEnrollmentFixture(t *testing.T) {
	secret := fixtureSecret()
	device, _, recovery := splitDeterministic(secret, fixtureCoefficient())

	got, err := Combine(device, recovery)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if got != secret {
		t.Fatalf("Combine(device,recovery) = %x, want %x", got, secret)
	}

	blob, err := EncryptShare(recovery, "hunter2", "user-1")
	if err != nil {
		t.Fatalf("EncryptShare: %v", err)
	}
	if blob == recovery.Encode() {
		t.Fatal("ciphertext must differ from the plaintext share encoding")
	}
	decrypted, err := DecryptShare(blob, "hunter2", "user-1")
	if err != nil {
		t.Fatalf("DecryptShare: %v", err)
	}
	if decrypted.Y.Cmp(recovery.Y) != 0 || decrypted.ID != recovery.ID {
		t.Fatalf("DecryptShare round trip mismatch: got %+v, want %+v", decrypted, recovery)
	}
}

func TestDecryptShareWrongCodeFails(t *testing.T) {
	secret := fixtureSecret()
	_, _, recovery, err := Split(secret)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	blob, err := EncryptShare(recovery, "correct-code", "user-1")
	if err != nil {
		t.Fatalf("EncryptShare: %v", err)
	}
	if _, err := DecryptShare(blob, "wrong-code", "user-1"); err == nil {
		t.Fatal("expected DecryptShare to fail with the wrong recovery code")
	}
}
