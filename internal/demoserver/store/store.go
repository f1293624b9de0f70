// Package store is the demo custody server's persistence layer: a Store
// interface narrow enough for handler tests to fake in memory, backed by the
// gorm/Postgres implementation the server binary runs with.
package store

import (
	"errors"
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"wallet-core/internal/demoserver/models"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("store: record not found")

// Store is the persistence surface the demo server's handlers depend on.
type Store interface {
	CreateUser(u *models.User) error
	SaveUser(u *models.User) error
	UserByID(id string) (*models.User, error)
	UserByEmail(email string) (*models.User, error)
	UserByPhone(phone string) (*models.User, error)

	CreateSession(s *models.Session) error
	SessionByToken(token string) (*models.Session, error)
	DeleteSession(id string) error

	CreateWallet(w *models.WalletRecord) error
	WalletByUserID(userID string) (*models.WalletRecord, error)
}

// GormStore implements Store on a gorm database handle.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an existing gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// NewPostgresDB connects to Postgres using the DB_* environment variables,
// the same configuration surface the rest of this module's binaries read.
func NewPostgresDB() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_NAME"),
		)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the demo server's tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.WalletRecord{},
	)
}

func (s *GormStore) CreateUser(u *models.User) error {
	return s.db.Create(u).Error
}

func (s *GormStore) SaveUser(u *models.User) error {
	return s.db.Save(u).Error
}

func (s *GormStore) UserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (s *GormStore) UserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (s *GormStore) UserByPhone(phone string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("phone = ?", phone).First(&user).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (s *GormStore) CreateSession(sess *models.Session) error {
	return s.db.Create(sess).Error
}

func (s *GormStore) SessionByToken(token string) (*models.Session, error) {
	var session models.Session
	if err := s.db.Where("token = ?", token).First(&session).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &session, nil
}

func (s *GormStore) DeleteSession(id string) error {
	return s.db.Where("id = ?", id).Delete(&models.Session{}).Error
}

func (s *GormStore) CreateWallet(w *models.WalletRecord) error {
	return s.db.Create(w).Error
}

func (s *GormStore) WalletByUserID(userID string) (*models.WalletRecord, error) {
	var wallet models.WalletRecord
	if err := s.db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &wallet, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
