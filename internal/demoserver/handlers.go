// Package demoserver is a self-contained stand-in for the remote services
// the wallet core talks to over the network: the identity/share-custody auth
// server and, for local development, a canned bundler RPC. It exists so the
// client packages can be exercised end to end without the vendor's real
// backend; it holds none of the client-side share or signing logic itself.
package demoserver

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wallet-core/internal/demoserver/models"
	"wallet-core/internal/demoserver/store"
	"wallet-core/pkg/authclient"
	"wallet-core/pkg/crypto"
	"wallet-core/pkg/signer"
)

const sessionTTL = 7 * 24 * time.Hour

// Handler handles HTTP requests
type Handler struct {
	store     store.Store
	masterKey []byte

	// otpChallenges and siweNonces are demo-lifetime state; the real service
	// holds these in its own cache, not the database.
	otpChallenges sync.Map // "kind:id" -> otpChallenge
	siweNonces    sync.Map // nonce -> address
}

type otpChallenge struct {
	Code      string
	ExpiresAt time.Time
}

// NewHandler creates a new handler over the given store. masterKey protects
// uploaded auth shares at rest; see pkg/crypto.DeriveShareStorageKey.
func NewHandler(st store.Store, masterKey []byte) *Handler {
	return &Handler{store: st, masterKey: masterKey}
}

// HealthCheckHandler 健康检查
func (h *Handler) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "wallet-core-demoserver",
		"version": "1.0.0",
	})
}

// RequestOtpHandler issues a one-time code for an email or phone identity.
// The demo server logs the code instead of delivering it.
func (h *Handler) RequestOtpHandler(c *gin.Context) {
	var req struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Kind == "" || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	code, err := randomOtpCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate code"})
		return
	}
	h.otpChallenges.Store(req.Kind+":"+req.ID, otpChallenge{
		Code:      code,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	})

	log.Printf("📨 OTP for %s %s: %s", req.Kind, req.ID, code)
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func randomOtpCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n), nil
}

// VerifyOtpHandler completes the OTP identity proof, creating the user on
// first contact and issuing a session token either way.
func (h *Handler) VerifyOtpHandler(c *gin.Context) {
	var req struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	key := req.Kind + ":" + req.ID
	val, ok := h.otpChallenges.Load(key)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No pending challenge", "code": "BadOtp"})
		return
	}
	challenge := val.(otpChallenge)
	if time.Now().After(challenge.ExpiresAt) {
		h.otpChallenges.Delete(key)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code expired", "code": "Expired"})
		return
	}
	if challenge.Code != req.Code {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Wrong code", "code": "BadOtp"})
		return
	}
	h.otpChallenges.Delete(key)

	var email, phone *string
	if req.Kind == string(authclient.IdentityPhone) {
		phone = &req.ID
	} else {
		email = &req.ID
	}
	h.finishIdentityProof(c, email, phone, req.Kind)
}

// finishIdentityProof is the shared tail of OTP and SIWE verification:
// find-or-create the user, issue a session, and report whether enrollment is
// still outstanding.
func (h *Handler) finishIdentityProof(c *gin.Context, email, phone *string, provider string) {
	user, err := h.lookupUser(email, phone)
	if err != nil && err != store.ErrNotFound {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}
	if user == nil {
		user = &models.User{
			ID:           uuid.New().String(),
			Email:        email,
			Phone:        phone,
			AuthProvider: provider,
			CreatedAt:    time.Now(),
			LastActiveAt: time.Now(),
		}
		if err := h.store.CreateUser(user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
	} else {
		user.LastActiveAt = time.Now()
		_ = h.store.SaveUser(user)
	}

	token, err := crypto.GenerateRandomToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(sessionTTL),
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateSession(session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	_, werr := h.store.WalletByUserID(user.ID)
	isNewUser := werr == store.ErrNotFound

	result := authclient.VerifyResult{
		IsNewUser:    isNewUser,
		AuthToken:    token,
		WalletUserID: user.ID,
		Email:        user.Email,
		Phone:        user.Phone,
	}
	if isNewUser {
		code, err := crypto.GenerateRecoveryCode()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate recovery code"})
			return
		}
		result.RecoveryCode = &code
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) lookupUser(email, phone *string) (*models.User, error) {
	if email != nil {
		return h.store.UserByEmail(*email)
	}
	if phone != nil {
		return h.store.UserByPhone(*phone)
	}
	return nil, store.ErrNotFound
}

// SiwePayloadHandler issues a Sign-In-With-Ethereum challenge for an address.
func (h *Handler) SiwePayloadHandler(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !crypto.IsValidAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}

	nonce := uuid.New().String()
	h.siweNonces.Store(nonce, strings.ToLower(req.Address))
	payload := authclient.SiwePayload{
		Address: req.Address,
		Nonce:   nonce,
		Message: fmt.Sprintf("wallet-core wants you to sign in with your Ethereum account:\n%s\n\nNonce: %s", req.Address, nonce),
	}
	c.JSON(http.StatusOK, payload)
}

// SiweVerifyHandler checks the personal_sign signature over the issued
// payload and, on success, runs the same session issuance as OTP with the
// address standing in for a contact identity.
func (h *Handler) SiweVerifyHandler(c *gin.Context) {
	var req struct {
		Payload   authclient.SiwePayload `json:"payload"`
		Signature string                 `json:"signature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	val, ok := h.siweNonces.Load(req.Payload.Nonce)
	if !ok || val.(string) != strings.ToLower(req.Payload.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown nonce"})
		return
	}
	h.siweNonces.Delete(req.Payload.Nonce)

	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed signature"})
		return
	}
	recovered, err := signer.RecoverAddressFromPersonalSign([]byte(req.Payload.Message), sig)
	if err != nil || !strings.EqualFold(recovered.Hex(), req.Payload.Address) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature does not match address"})
		return
	}

	identity := strings.ToLower(req.Payload.Address)
	h.finishIdentityProof(c, &identity, nil, "siwe")
}

// UserDetailsHandler reports the caller's wallet enrollment status.
func (h *Handler) UserDetailsHandler(c *gin.Context) {
	user := currentUser(c)

	status := authclient.StatusLoggedInUninitialized
	if _, err := h.store.WalletByUserID(user.ID); err == nil {
		status = authclient.StatusLoggedInInitialized
	}

	c.JSON(http.StatusOK, authclient.UserWallet{
		Status:       status,
		WalletUserID: user.ID,
		Email:        user.Email,
		Phone:        user.Phone,
		AuthProvider: user.AuthProvider,
	})
}

// StoreSharesHandler accepts the enrollment upload. The auth share is
// encrypted at rest under the user's storage key; the recovery share is
// already client-encrypted and stored as received.
func (h *Handler) StoreSharesHandler(c *gin.Context) {
	user := currentUser(c)

	var req struct {
		Address                string `json:"address"`
		AuthShare              string `json:"authShare"`
		EncryptedRecoveryShare string `json:"encryptedRecoveryShare"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AuthShare == "" || req.EncryptedRecoveryShare == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if !crypto.IsValidAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}

	if _, err := h.store.WalletByUserID(user.ID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Wallet already enrolled", "code": "Conflict"})
		return
	}

	storageKey, err := crypto.DeriveShareStorageKey(h.masterKey, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to derive storage key"})
		return
	}
	sealed, err := crypto.EncryptAtRest(req.AuthShare, storageKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to protect share"})
		return
	}

	record := &models.WalletRecord{
		ID:                      uuid.New().String(),
		UserID:                  user.ID,
		Address:                 req.Address,
		AuthShareCiphertext:     sealed,
		RecoveryShareCiphertext: req.EncryptedRecoveryShare,
		CreatedAt:               time.Now(),
	}
	if err := h.store.CreateWallet(record); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store wallet"})
		return
	}

	log.Printf("✅ Enrolled wallet %s for user %s", req.Address, user.ID)
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

// RecoverySharesHandler returns both server-held shares for the recovery
// path.
func (h *Handler) RecoverySharesHandler(c *gin.Context) {
	user := currentUser(c)

	record, authShare, ok := h.openWallet(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authShare":              authShare,
		"encryptedRecoveryShare": record.RecoveryShareCiphertext,
	})
}

// AuthShareHandler returns only the auth share, the re-login read used when
// the client still holds its device share.
func (h *Handler) AuthShareHandler(c *gin.Context) {
	user := currentUser(c)

	_, authShare, ok := h.openWallet(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"authShare": authShare})
}

func (h *Handler) openWallet(c *gin.Context, userID string) (*models.WalletRecord, string, bool) {
	record, err := h.store.WalletByUserID(userID)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "No wallet enrolled", "code": "NotFound"})
		return nil, "", false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return nil, "", false
	}

	storageKey, err := crypto.DeriveShareStorageKey(h.masterKey, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to derive storage key"})
		return nil, "", false
	}
	authShare, err := crypto.DecryptAtRest(record.AuthShareCiphertext, storageKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open share"})
		return nil, "", false
	}
	return record, authShare, true
}
