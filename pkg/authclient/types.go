package authclient

// WalletStatus is the server-reported enrollment state for a signed-in user.
type WalletStatus string

const (
	StatusLoggedOut             WalletStatus = "logged_out"
	StatusLoggedInUninitialized WalletStatus = "logged_in_uninitialized"
	StatusLoggedInInitialized   WalletStatus = "logged_in_initialized"
)

// IdentityKind distinguishes the channel an OTP was requested against.
type IdentityKind string

const (
	IdentityEmail IdentityKind = "email"
	IdentityPhone IdentityKind = "phone"
)

// VerifyResult is returned once the identity challenge (OTP, OAuth, SIWE)
// completes.
type VerifyResult struct {
	IsNewUser    bool    `json:"isNewUser"`
	AuthToken    string  `json:"authToken"`
	WalletUserID string  `json:"walletUserId"`
	RecoveryCode *string `json:"recoveryCode,omitempty"`
	Email        *string `json:"email,omitempty"`
	Phone        *string `json:"phone,omitempty"`
}

// UserWallet is the server's view of a signed-in user's wallet enrollment.
type UserWallet struct {
	Status       WalletStatus `json:"status"`
	WalletUserID string       `json:"walletUserId"`
	Email        *string      `json:"email,omitempty"`
	Phone        *string      `json:"phone,omitempty"`
	AuthProvider string       `json:"authProvider"`
}

// SiwePayload is the server-issued challenge message for Sign-In-With-Ethereum.
type SiwePayload struct {
	Address string `json:"address"`
	Message string `json:"message"`
	Nonce   string `json:"nonce"`
}
