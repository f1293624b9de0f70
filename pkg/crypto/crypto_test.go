package crypto

import "testing"

func TestEncryptDecryptAtRestRoundTrip(t *testing.T) {
	key := MasterKeyFromSecretPhrase("server-secret")
	storageKey, err := DeriveShareStorageKey(key, "user-1")
	if err != nil {
		t.Fatalf("DeriveShareStorageKey: %v", err)
	}

	sealed, err := EncryptAtRest("2:deadbeef", storageKey)
	if err != nil {
		t.Fatalf("EncryptAtRest: %v", err)
	}
	if sealed == "2:deadbeef" {
		t.Fatal("ciphertext must differ from plaintext")
	}

	opened, err := DecryptAtRest(sealed, storageKey)
	if err != nil {
		t.Fatalf("DecryptAtRest: %v", err)
	}
	if opened != "2:deadbeef" {
		t.Fatalf("round trip = %q", opened)
	}
}

func TestDeriveShareStorageKeyIsPerUser(t *testing.T) {
	master := MasterKeyFromSecretPhrase("server-secret")
	k1, err := DeriveShareStorageKey(master, "user-1")
	if err != nil {
		t.Fatalf("DeriveShareStorageKey: %v", err)
	}
	k2, err := DeriveShareStorageKey(master, "user-2")
	if err != nil {
		t.Fatalf("DeriveShareStorageKey: %v", err)
	}
	if string(k1) == string(k2) {
		t.Fatal("different users must derive different storage keys")
	}

	// A key derived for the wrong user must not open the ciphertext.
	sealed, err := EncryptAtRest("2:deadbeef", k1)
	if err != nil {
		t.Fatalf("EncryptAtRest: %v", err)
	}
	if _, err := DecryptAtRest(sealed, k2); err == nil {
		t.Fatal("expected decryption to fail with the wrong user's key")
	}
}

func TestIsValidAddress(t *testing.T) {
	if !IsValidAddress("0x8ba1f109551bD432803012645Ac136ddd64DBA72") {
		t.Fatal("checksummed address rejected")
	}
	if IsValidAddress("not-an-address") {
		t.Fatal("garbage accepted as address")
	}
}
