// Package embeddedwallet implements the enrollment/recovery state machine
// that turns a completed identity proof into a PrivateKeyAccount, using
// the secret splitter, auth server client, and local store as its
// collaborators.
package embeddedwallet

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"wallet-core/pkg/authclient"
	"wallet-core/pkg/localstore"
	"wallet-core/pkg/shamir"
	"wallet-core/pkg/signer"
	"wallet-core/pkg/walleterr"
)

// User is the assembled identity the wallet returns once an account has
// been reconstructed from its shares.
type User struct {
	Account *signer.PrivateKeyAccount
	Email   *string
	Phone   *string
}

// EmbeddedWallet drives enrollment and recovery against an auth server and a
// local envelope store. One instance corresponds to one signed-in identity;
// its methods serialize on an internal mutex.
type EmbeddedWallet struct {
	auth  *authclient.Client
	store *localstore.Store
	log   *log.Logger

	mu   sync.Mutex
	user *User
}

// Option configures an EmbeddedWallet at construction time.
type Option func(*EmbeddedWallet)

// WithLogger overrides the log.Logger used for diagnostic output, so
// embedding applications can redirect or silence it (io.Discard) instead of
// sharing the process-wide logger.
func WithLogger(l *log.Logger) Option {
	return func(w *EmbeddedWallet) { w.log = l }
}

// New builds an EmbeddedWallet against the given auth server client and
// local envelope store.
func New(auth *authclient.Client, store *localstore.Store, opts ...Option) *EmbeddedWallet {
	w := &EmbeddedWallet{auth: auth, store: store, log: log.New(log.Writer(), "", 0)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// GetUser returns the memoized user if one is already assembled; otherwise
// it requires a persisted envelope, confirms the server's reported status
// and identity match the caller's claim, fetches the auth share, and
// assembles the account. It never implicitly starts an identity challenge.
func (w *EmbeddedWallet) GetUser(ctx context.Context, email, phone *string, authProvider string) (*User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.user != nil {
		return w.user, nil
	}

	env, err := w.store.Load()
	if err != nil {
		return nil, err
	}
	if env == nil || env.AuthToken == "" {
		return nil, walleterr.New("embeddedwallet.GetUser", walleterr.KindNotSignedIn, nil)
	}

	details, err := w.auth.FetchUserDetails(ctx, env.AuthToken)
	if err != nil {
		return nil, err
	}

	switch details.Status {
	case authclient.StatusLoggedOut:
		_ = w.store.Clear()
		return nil, walleterr.New("embeddedwallet.GetUser", walleterr.KindNotSignedIn, fmt.Errorf("server reports logged out"))
	case authclient.StatusLoggedInUninitialized:
		if env.DeviceShare != "" {
			return nil, walleterr.New("embeddedwallet.GetUser", walleterr.KindWalletUninitialized, fmt.Errorf("local device share present but server has no wallet"))
		}
		return nil, walleterr.New("embeddedwallet.GetUser", walleterr.KindWalletUninitialized, nil)
	case authclient.StatusLoggedInInitialized:
		if env.DeviceShare == "" {
			return nil, walleterr.New("embeddedwallet.GetUser", walleterr.KindWalletUninitialized, fmt.Errorf("server initialized but local device share is missing"))
		}
	default:
		// An unrecognized status is a protocol error, not something to
		// guess a meaning for.
		return nil, walleterr.New("embeddedwallet.GetUser", walleterr.KindServerProtocol, fmt.Errorf("unrecognized wallet status %q", details.Status))
	}

	if !identityMatches(email, details.Email) || !identityMatches(phone, details.Phone) || (authProvider != "" && authProvider != details.AuthProvider) {
		return nil, walleterr.New("embeddedwallet.GetUser", walleterr.KindIdentityMismatch, nil)
	}

	authShareText, err := w.auth.FetchAuthShare(ctx, env.AuthToken)
	if err != nil {
		return nil, err
	}

	account, err := assembleAccount(env.DeviceShare, authShareText)
	if err != nil {
		return nil, err
	}

	user := &User{Account: account, Email: details.Email, Phone: details.Phone}
	w.user = user
	return user, nil
}

// SignOut drops the memoized user and deletes the auth token from
// persistence. The device share is left behind — it is useless without a
// token.
func (w *EmbeddedWallet) SignOut() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.user != nil {
		w.user.Account.Zero()
		w.user = nil
	}
	return w.store.RemoveAuthToken()
}

// CreateAccountParams carries the inputs needed to enroll a brand-new user
// after an identity challenge reports isNewUser=true.
type CreateAccountParams struct {
	AuthToken    string
	WalletUserID string
	AuthProvider string
	Email        *string
	Phone        *string
	// RecoveryCode is the code used to wrap the recovery share. Callers may
	// pass a developer-managed override here instead of the server-issued
	// code; whichever string is given is authoritative for both encrypt
	// and decrypt within the session.
	RecoveryCode string
}

// CreateAccount runs the enrollment path: split a fresh secret into three
// shares, upload the auth share and the encrypted recovery share, persist
// the local envelope, and memoize the resulting user. Local state is
// mutated only after every upload step succeeds.
func (w *EmbeddedWallet) CreateAccount(ctx context.Context, p CreateAccountParams) (*User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var secret [shamir.SecretSize]byte
	if _, err := randomSecret(secret[:]); err != nil {
		return nil, walleterr.New("embeddedwallet.CreateAccount", walleterr.KindShareCorrupt, err)
	}

	device, auth, recovery, err := shamir.Split(secret)
	if err != nil {
		return nil, err
	}

	account, err := accountFromSecret(secret)
	if err != nil {
		return nil, err
	}

	encryptedRecovery, err := shamir.EncryptShare(recovery, p.RecoveryCode, p.WalletUserID)
	if err != nil {
		return nil, err
	}

	if err := w.auth.StoreAddressAndShares(ctx, p.AuthToken, account.Address().Hex(), auth.Encode(), encryptedRecovery); err != nil {
		return nil, err
	}

	env := localstore.Envelope{
		AuthToken:    p.AuthToken,
		DeviceShare:  device.Encode(),
		Email:        p.Email,
		Phone:        p.Phone,
		WalletUserID: p.WalletUserID,
		AuthProvider: p.AuthProvider,
	}
	if err := w.store.Save(env); err != nil {
		return nil, err
	}

	w.log.Printf("✅ Enrolled wallet %s", account.Address().Hex())
	user := &User{Account: account, Email: p.Email, Phone: p.Phone}
	w.user = user
	return user, nil
}

// RecoverAccountParams carries the inputs needed to recover an existing
// enrollment after an identity challenge reports isNewUser=false.
type RecoverAccountParams struct {
	AuthToken    string
	WalletUserID string
	AuthProvider string
	Email        *string
	Phone        *string
	RecoveryCode string
}

// RecoverAccount fetches the auth and encrypted recovery shares, decrypts
// the recovery share, combines them to reconstruct the secret, regenerates
// the device share, and persists a fresh envelope. Any share failure is
// fatal to the attempt and leaves local state untouched.
func (w *EmbeddedWallet) RecoverAccount(ctx context.Context, p RecoverAccountParams) (*User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	authShareText, encryptedRecovery, err := w.auth.FetchAuthAndRecoveryShares(ctx, p.AuthToken)
	if err != nil {
		return nil, err
	}

	authShare, err := shamir.Decode(authShareText)
	if err != nil {
		return nil, err
	}
	recoveryShare, err := shamir.DecryptShare(encryptedRecovery, p.RecoveryCode, p.WalletUserID)
	if err != nil {
		return nil, err
	}

	secret, err := shamir.Combine(authShare, recoveryShare)
	if err != nil {
		return nil, err
	}
	deviceShare, err := shamir.NewShare(shamir.ShareDevice, authShare, recoveryShare)
	if err != nil {
		return nil, err
	}

	account, err := accountFromSecret(secret)
	if err != nil {
		return nil, err
	}

	env := localstore.Envelope{
		AuthToken:    p.AuthToken,
		DeviceShare:  deviceShare.Encode(),
		Email:        p.Email,
		Phone:        p.Phone,
		WalletUserID: p.WalletUserID,
		AuthProvider: p.AuthProvider,
	}
	if err := w.store.Save(env); err != nil {
		return nil, err
	}

	w.log.Printf("✅ Recovered wallet %s", account.Address().Hex())
	user := &User{Account: account, Email: p.Email, Phone: p.Phone}
	w.user = user
	return user, nil
}

// accountFromSecret turns the 16-byte shared secret into a signing account.
// crypto.ToECDSA requires a full 32-byte scalar, so the secret is left-padded
// with zeros; the split field is a strict subset of the curve order, so the
// mapping is exact and the same secret always yields the same address.
func accountFromSecret(secret [shamir.SecretSize]byte) (*signer.PrivateKeyAccount, error) {
	var scalar [32]byte
	copy(scalar[32-shamir.SecretSize:], secret[:])
	return signer.FromPrivateKeyBytes(scalar[:])
}

// assembleAccount reconstructs a PrivateKeyAccount from a device share and
// an auth share (the re-login / post-enrollment fetch path).
func assembleAccount(deviceShareText, authShareText string) (*signer.PrivateKeyAccount, error) {
	deviceShare, err := shamir.Decode(deviceShareText)
	if err != nil {
		return nil, err
	}
	authShare, err := shamir.Decode(authShareText)
	if err != nil {
		return nil, err
	}
	secret, err := shamir.Combine(deviceShare, authShare)
	if err != nil {
		return nil, err
	}
	return accountFromSecret(secret)
}

func identityMatches(claimed, serverReported *string) bool {
	if claimed == nil {
		return true
	}
	return serverReported != nil && *claimed == *serverReported
}

// VerifyAddressMatches checks that a reconstructed account's address
// matches a server-recorded address supplied by the caller, returning a
// KindServerProtocol error when they differ.
func VerifyAddressMatches(account *signer.PrivateKeyAccount, serverAddress string) error {
	if account.Address() != common.HexToAddress(serverAddress) {
		return walleterr.New("embeddedwallet.VerifyAddressMatches", walleterr.KindServerProtocol, fmt.Errorf("reconstructed address %s does not match server address %s", account.Address().Hex(), serverAddress))
	}
	return nil
}
