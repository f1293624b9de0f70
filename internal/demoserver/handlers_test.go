package demoserver

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"wallet-core/internal/demoserver/models"
	"wallet-core/internal/demoserver/store"
	"wallet-core/pkg/authclient"
	"wallet-core/pkg/crypto"
	"wallet-core/pkg/embeddedwallet"
	"wallet-core/pkg/localstore"
	"wallet-core/pkg/walleterr"
)

// memStore is an in-memory store.Store used so handler tests do not need a
// Postgres instance.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	sessions map[string]*models.Session
	wallets  map[string]*models.WalletRecord
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*models.User),
		sessions: make(map[string]*models.Session),
		wallets:  make(map[string]*models.WalletRecord),
	}
}

func (m *memStore) CreateUser(u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memStore) SaveUser(u *models.User) error { return m.CreateUser(u) }

func (m *memStore) UserByID(id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UserByEmail(email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UserByPhone(phone string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Phone != nil && *u.Phone == phone {
			copied := *u
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CreateSession(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memStore) SessionByToken(token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token {
			copied := *s
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memStore) CreateWallet(w *models.WalletRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *w
	m.wallets[w.UserID] = &copied
	return nil
}

func (m *memStore) WalletByUserID(userID string) (*models.WalletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[userID]; ok {
		copied := *w
		return &copied, nil
	}
	return nil, store.ErrNotFound
}

func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewHandler(newMemStore(), crypto.MasterKeyFromSecretPhrase("test-master-key"))
	srv := httptest.NewServer(SetupRouter(handler, handler.store))
	t.Cleanup(srv.Close)
	return srv, handler
}

// plantOtp installs a known challenge so tests can complete verification
// without scraping log output.
func plantOtp(h *Handler, kind, id, code string) {
	h.otpChallenges.Store(kind+":"+id, otpChallenge{Code: code, ExpiresAt: time.Now().Add(time.Minute)})
}

func TestOtpVerifyIssuesSessionAndRecoveryCode(t *testing.T) {
	srv, handler := newTestServer(t)
	client := authclient.New(srv.URL, nil)

	plantOtp(handler, "email", "a@example.com", "123456")

	result, err := client.VerifyOtp(context.Background(), authclient.IdentityEmail, "a@example.com", "123456")
	if err != nil {
		t.Fatalf("VerifyOtp: %v", err)
	}
	if !result.IsNewUser {
		t.Fatal("first contact must report isNewUser")
	}
	if result.AuthToken == "" || result.WalletUserID == "" {
		t.Fatalf("missing session fields: %+v", result)
	}
	if result.RecoveryCode == nil || *result.RecoveryCode == "" {
		t.Fatal("new user must receive a recovery code")
	}
}

func TestOtpVerifyRejectsWrongCode(t *testing.T) {
	srv, handler := newTestServer(t)
	client := authclient.New(srv.URL, nil)

	plantOtp(handler, "email", "a@example.com", "123456")

	if _, err := client.VerifyOtp(context.Background(), authclient.IdentityEmail, "a@example.com", "999999"); err == nil {
		t.Fatal("expected wrong code to be rejected")
	}
}

func TestShareUploadRoundTrip(t *testing.T) {
	srv, handler := newTestServer(t)
	client := authclient.New(srv.URL, nil)
	ctx := context.Background()

	plantOtp(handler, "email", "a@example.com", "123456")
	result, err := client.VerifyOtp(ctx, authclient.IdentityEmail, "a@example.com", "123456")
	if err != nil {
		t.Fatalf("VerifyOtp: %v", err)
	}
	token := result.AuthToken

	details, err := client.FetchUserDetails(ctx, token)
	if err != nil {
		t.Fatalf("FetchUserDetails: %v", err)
	}
	if details.Status != authclient.StatusLoggedInUninitialized {
		t.Fatalf("status before enrollment = %q", details.Status)
	}

	addr := "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	if err := client.StoreAddressAndShares(ctx, token, addr, "2:abc123", "enc-recovery-blob"); err != nil {
		t.Fatalf("StoreAddressAndShares: %v", err)
	}

	// Second upload for the same user must conflict.
	if err := client.StoreAddressAndShares(ctx, token, addr, "2:abc123", "enc-recovery-blob"); err == nil {
		t.Fatal("expected Conflict on double enrollment")
	}

	details, err = client.FetchUserDetails(ctx, token)
	if err != nil {
		t.Fatalf("FetchUserDetails: %v", err)
	}
	if details.Status != authclient.StatusLoggedInInitialized {
		t.Fatalf("status after enrollment = %q", details.Status)
	}

	authShare, encRecovery, err := client.FetchAuthAndRecoveryShares(ctx, token)
	if err != nil {
		t.Fatalf("FetchAuthAndRecoveryShares: %v", err)
	}
	if authShare != "2:abc123" {
		t.Fatalf("auth share round trip = %q", authShare)
	}
	if encRecovery != "enc-recovery-blob" {
		t.Fatalf("recovery blob round trip = %q", encRecovery)
	}

	got, err := client.FetchAuthShare(ctx, token)
	if err != nil {
		t.Fatalf("FetchAuthShare: %v", err)
	}
	if got != authShare {
		t.Fatalf("FetchAuthShare = %q, want %q", got, authShare)
	}
}

func TestWalletEndpointsRequireBearerToken(t *testing.T) {
	srv, _ := newTestServer(t)
	client := authclient.New(srv.URL, nil)

	_, err := client.FetchUserDetails(context.Background(), "")
	if err == nil {
		t.Fatal("expected an error without a token")
	}
	if kind, ok := walleterr.Of(err); !ok || kind != walleterr.KindUnauthorized {
		t.Fatalf("expected KindUnauthorized, got %v (ok=%v)", kind, ok)
	}
}

// TestEnrollmentAndRecoveryAgainstDemoServer drives the embedded wallet core
// end to end against the demo custody server: enroll, discard local state,
// recover, and check both paths reconstruct the same address.
func TestEnrollmentAndRecoveryAgainstDemoServer(t *testing.T) {
	srv, handler := newTestServer(t)
	client := authclient.New(srv.URL, nil)
	ctx := context.Background()

	plantOtp(handler, "email", "a@example.com", "123456")
	result, err := client.VerifyOtp(ctx, authclient.IdentityEmail, "a@example.com", "123456")
	if err != nil {
		t.Fatalf("VerifyOtp: %v", err)
	}
	if !result.IsNewUser {
		t.Fatal("expected a new user")
	}

	email := "a@example.com"
	enrollStore := localstore.New(t.TempDir() + "/envelope.json")
	wallet := embeddedwallet.New(client, enrollStore)
	user, err := wallet.CreateAccount(ctx, embeddedwallet.CreateAccountParams{
		AuthToken:    result.AuthToken,
		WalletUserID: result.WalletUserID,
		AuthProvider: "email",
		Email:        &email,
		RecoveryCode: *result.RecoveryCode,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	enrolledAddr := user.Account.Address()

	// Simulate a fresh device: new store, re-login reports an existing user.
	plantOtp(handler, "email", "a@example.com", "654321")
	relogin, err := client.VerifyOtp(ctx, authclient.IdentityEmail, "a@example.com", "654321")
	if err != nil {
		t.Fatalf("VerifyOtp (relogin): %v", err)
	}
	if relogin.IsNewUser {
		t.Fatal("second contact must not report isNewUser")
	}

	recoverStore := localstore.New(t.TempDir() + "/envelope.json")
	recoverWallet := embeddedwallet.New(client, recoverStore)
	recovered, err := recoverWallet.RecoverAccount(ctx, embeddedwallet.RecoverAccountParams{
		AuthToken:    relogin.AuthToken,
		WalletUserID: relogin.WalletUserID,
		AuthProvider: "email",
		Email:        &email,
		RecoveryCode: *result.RecoveryCode,
	})
	if err != nil {
		t.Fatalf("RecoverAccount: %v", err)
	}
	if recovered.Account.Address() != enrolledAddr {
		t.Fatalf("recovered address %s != enrolled address %s", recovered.Account.Address(), enrolledAddr)
	}
}
