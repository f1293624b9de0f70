// Package models defines the demo custody server's database records: the
// users, sessions, and uploaded wallet shares the real auth service would
// hold on the wallet vendor's side.
package models

import "time"

// User represents an identity that has completed at least one OTP or SIWE
// challenge.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Email        *string   `json:"email,omitempty" gorm:"index"`
	Phone        *string   `json:"phone,omitempty" gorm:"index"`
	AuthProvider string    `json:"authProvider"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// Session is a bearer-token session issued after a completed identity
// challenge.
type Session struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"userId" gorm:"index"`
	Token     string    `json:"-" gorm:"uniqueIndex"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for Session
func (Session) TableName() string {
	return "sessions"
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// WalletRecord holds one user's enrollment upload. The auth share is
// encrypted at rest under a per-user storage key; the recovery share arrives
// already wrapped by the client's recovery code and is stored opaque.
type WalletRecord struct {
	ID                      string    `json:"id" gorm:"primaryKey"`
	UserID                  string    `json:"userId" gorm:"uniqueIndex"`
	Address                 string    `json:"address" gorm:"uniqueIndex"`
	AuthShareCiphertext     string    `json:"-"`
	RecoveryShareCiphertext string    `json:"-"`
	CreatedAt               time.Time `json:"createdAt"`
}

// TableName specifies the table name for WalletRecord
func (WalletRecord) TableName() string {
	return "wallets"
}
