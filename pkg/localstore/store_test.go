package localstore

import (
	"path/filepath"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "envelope.json"))

	env := Envelope{
		AuthToken:    "tok",
		DeviceShare:  "3:abcdef",
		Email:        strPtr("a@example.com"),
		WalletUserID: "user-1",
		AuthProvider: "email",
	}
	if err := store.Save(env); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil || loaded.Email == nil || *loaded.Email != *env.Email {
		t.Fatalf("loaded = %+v, want %+v", loaded, env)
	}
	got := *loaded
	got.Email = env.Email
	if got != env {
		t.Fatalf("loaded = %+v, want %+v", loaded, env)
	}
}

func TestLoadMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "missing.json"))
	env, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env != nil {
		t.Fatalf("expected nil envelope, got %+v", env)
	}
}

func TestRemoveAuthTokenKeepsDeviceShare(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "envelope.json"))
	env := Envelope{AuthToken: "tok", DeviceShare: "3:abcdef", WalletUserID: "user-1", AuthProvider: "email"}
	if err := store.Save(env); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.RemoveAuthToken(); err != nil {
		t.Fatalf("RemoveAuthToken: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.AuthToken != "" {
		t.Fatalf("auth token not cleared: %+v", loaded)
	}
	if loaded.DeviceShare != env.DeviceShare {
		t.Fatalf("device share was cleared, want it preserved")
	}
}

func TestClearRemovesEnvelope(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "envelope.json"))
	if err := store.Save(Envelope{AuthToken: "tok"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil after Clear, got %+v", loaded)
	}
}
