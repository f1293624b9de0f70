package embeddedwallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"wallet-core/pkg/authclient"
	"wallet-core/pkg/localstore"
	"wallet-core/pkg/shamir"
	"wallet-core/pkg/signer"
)

// fakeAuthServer is a minimal in-memory stand-in for the remote auth
// service, just enough surface for CreateAccount/RecoverAccount/GetUser to
// exercise a full round trip without a network dependency.
type fakeAuthServer struct {
	mu                sync.Mutex
	address           string
	authShare         string
	encryptedRecovery string
	status            authclient.WalletStatus
	walletUserID      string
	authProvider      string
}

func newFakeAuthServer() *httptest.Server {
	state := &fakeAuthServer{status: authclient.StatusLoggedInUninitialized, walletUserID: "user-1", authProvider: "email"}
	mux := http.NewServeMux()

	mux.HandleFunc("/wallet/user-details", func(w http.ResponseWriter, r *http.Request) {
		state.mu.Lock()
		defer state.mu.Unlock()
		_ = json.NewEncoder(w).Encode(authclient.UserWallet{
			Status:       state.status,
			WalletUserID: state.walletUserID,
			AuthProvider: state.authProvider,
		})
	})
	mux.HandleFunc("/wallet/shares", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Address                string `json:"address"`
			AuthShare              string `json:"authShare"`
			EncryptedRecoveryShare string `json:"encryptedRecoveryShare"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		state.mu.Lock()
		state.address = body.Address
		state.authShare = body.AuthShare
		state.encryptedRecovery = body.EncryptedRecoveryShare
		state.status = authclient.StatusLoggedInInitialized
		state.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/wallet/shares/recovery", func(w http.ResponseWriter, r *http.Request) {
		state.mu.Lock()
		defer state.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"authShare":              state.authShare,
			"encryptedRecoveryShare": state.encryptedRecovery,
		})
	})
	mux.HandleFunc("/wallet/shares/auth", func(w http.ResponseWriter, r *http.Request) {
		state.mu.Lock()
		defer state.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"authShare": state.authShare})
	})

	return httptest.NewServer(mux)
}

func TestAccountFromSecretIsDeterministicAndPadded(t *testing.T) {
	var secret [shamir.SecretSize]byte
	for i := range secret {
		secret[i] = byte(i + 1)
	}

	a1, err := accountFromSecret(secret)
	if err != nil {
		t.Fatalf("accountFromSecret: %v", err)
	}
	a2, err := accountFromSecret(secret)
	if err != nil {
		t.Fatalf("accountFromSecret: %v", err)
	}
	if a1.Address() != a2.Address() {
		t.Fatalf("same secret produced different addresses: %s != %s", a1.Address(), a2.Address())
	}

	// The mapping is the zero-left-padded 32-byte scalar.
	var scalar [32]byte
	copy(scalar[32-shamir.SecretSize:], secret[:])
	direct, err := signer.FromPrivateKeyBytes(scalar[:])
	if err != nil {
		t.Fatalf("FromPrivateKeyBytes: %v", err)
	}
	if direct.Address() != a1.Address() {
		t.Fatalf("padded scalar address %s != accountFromSecret address %s", direct.Address(), a1.Address())
	}
}

func TestCreateAccountThenGetUserRoundTrip(t *testing.T) {
	srv := newFakeAuthServer()
	defer srv.Close()

	auth := authclient.New(srv.URL, nil)
	store := localstore.New(filepath.Join(t.TempDir(), "envelope.json"))
	wallet := New(auth, store)

	created, err := wallet.CreateAccount(context.Background(), CreateAccountParams{
		AuthToken:    "tok-1",
		WalletUserID: "user-1",
		AuthProvider: "email",
		RecoveryCode: "hunter2",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	// A fresh EmbeddedWallet instance (no memoized user) reading the same
	// envelope should assemble the identical account.
	wallet2 := New(auth, store)
	user, err := wallet2.GetUser(context.Background(), nil, nil, "email")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Account.Address() != created.Account.Address() {
		t.Fatalf("GetUser address = %s, want %s", user.Account.Address(), created.Account.Address())
	}
}

func TestRecoverAccountMatchesEnrollmentAddress(t *testing.T) {
	srv := newFakeAuthServer()
	defer srv.Close()

	auth := authclient.New(srv.URL, nil)
	store := localstore.New(filepath.Join(t.TempDir(), "envelope.json"))
	wallet := New(auth, store)

	enrolled, err := wallet.CreateAccount(context.Background(), CreateAccountParams{
		AuthToken:    "tok-1",
		WalletUserID: "user-1",
		AuthProvider: "email",
		RecoveryCode: "code",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	// Simulate a new device: no local envelope, but a valid token.
	recoveryStore := localstore.New(filepath.Join(t.TempDir(), "envelope.json"))
	recoveryWallet := New(auth, recoveryStore)
	recovered, err := recoveryWallet.RecoverAccount(context.Background(), RecoverAccountParams{
		AuthToken:    "tok-1",
		WalletUserID: "user-1",
		AuthProvider: "email",
		RecoveryCode: "code",
	})
	if err != nil {
		t.Fatalf("RecoverAccount: %v", err)
	}
	if recovered.Account.Address() != enrolled.Account.Address() {
		t.Fatalf("recovered address = %s, want %s", recovered.Account.Address(), enrolled.Account.Address())
	}
}

func TestSignOutClearsTokenAndForcesNotSignedIn(t *testing.T) {
	srv := newFakeAuthServer()
	defer srv.Close()

	auth := authclient.New(srv.URL, nil)
	store := localstore.New(filepath.Join(t.TempDir(), "envelope.json"))
	wallet := New(auth, store)

	if _, err := wallet.CreateAccount(context.Background(), CreateAccountParams{
		AuthToken: "tok-1", WalletUserID: "user-1", AuthProvider: "email", RecoveryCode: "code",
	}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if err := wallet.SignOut(); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	env, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env.AuthToken != "" {
		t.Fatalf("auth token still present after SignOut: %+v", env)
	}

	if _, err := wallet.GetUser(context.Background(), nil, nil, "email"); err == nil {
		t.Fatal("expected GetUser to fail after SignOut")
	}
}

func TestRecoverAccountFailsClosedOnWrongCode(t *testing.T) {
	srv := newFakeAuthServer()
	defer srv.Close()

	auth := authclient.New(srv.URL, nil)
	store := localstore.New(filepath.Join(t.TempDir(), "envelope.json"))
	wallet := New(auth, store)
	if _, err := wallet.CreateAccount(context.Background(), CreateAccountParams{
		AuthToken: "tok-1", WalletUserID: "user-1", AuthProvider: "email", RecoveryCode: "correct",
	}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	recoveryStore := localstore.New(filepath.Join(t.TempDir(), "envelope.json"))
	recoveryWallet := New(auth, recoveryStore)
	if _, err := recoveryWallet.RecoverAccount(context.Background(), RecoverAccountParams{
		AuthToken: "tok-1", WalletUserID: "user-1", AuthProvider: "email", RecoveryCode: "wrong",
	}); err == nil {
		t.Fatal("expected RecoverAccount to fail with the wrong recovery code")
	}

	// Local state must not have been mutated by the failed attempt.
	env, err := recoveryStore.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env != nil {
		t.Fatalf("expected no envelope after failed recovery, got %+v", env)
	}
}
