// Package localstore persists the embedded wallet's one piece of long-lived
// client state: the session envelope produced by enrollment or recovery.
// Writes are atomic at the envelope level via write-temp-then-rename, so a
// crash mid-Save never leaves a torn record on disk.
package localstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"wallet-core/pkg/walleterr"
)

// Envelope is the persisted session record: the only long-lived client
// state the embedded wallet keeps.
type Envelope struct {
	AuthToken    string  `json:"authToken"`
	DeviceShare  string  `json:"deviceShare"`
	Email        *string `json:"email,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	WalletUserID string  `json:"walletUserId"`
	AuthProvider string  `json:"authProvider"`
}

// Store is a file-backed implementation of the local envelope store. A
// plain file with atomic rename is the simplest thing that guarantees no
// partial envelope is ever observable, without pulling in a database for a
// single record of client-device state.
type Store struct {
	path string
}

// New returns a Store that persists its envelope at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the envelope, returning (nil, nil) if none has been written yet.
func (s *Store) Load() (*Envelope, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, walleterr.New("localstore.Load", walleterr.KindServerProtocol, err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, walleterr.New("localstore.Load", walleterr.KindServerProtocol, err)
	}
	return &env, nil
}

// Save atomically writes env, replacing any prior envelope.
func (s *Store) Save(env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return walleterr.New("localstore.Save", walleterr.KindServerProtocol, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return walleterr.New("localstore.Save", walleterr.KindServerProtocol, err)
	}

	tmp, err := os.CreateTemp(dir, ".envelope-*.tmp")
	if err != nil {
		return walleterr.New("localstore.Save", walleterr.KindServerProtocol, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return walleterr.New("localstore.Save", walleterr.KindServerProtocol, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return walleterr.New("localstore.Save", walleterr.KindServerProtocol, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return walleterr.New("localstore.Save", walleterr.KindServerProtocol, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return walleterr.New("localstore.Save", walleterr.KindServerProtocol, err)
	}
	return nil
}

// RemoveAuthToken clears only the auth token field, leaving the device
// share behind — it is useless without a token, matching SignOut's policy.
func (s *Store) RemoveAuthToken() error {
	env, err := s.Load()
	if err != nil {
		return err
	}
	if env == nil {
		return nil
	}
	env.AuthToken = ""
	return s.Save(*env)
}

// Clear removes the envelope file entirely.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return walleterr.New("localstore.Clear", walleterr.KindServerProtocol, err)
	}
	return nil
}
