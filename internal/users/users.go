package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrEmailTaken is returned when creating a user with an existing email.
	ErrEmailTaken = errors.New("user_store.email_taken")

	errEmptyEmail  = errors.New("user_store.empty_email")
	errEmptySecret = errors.New("user_store.empty_secret")
)

// User is the minimal account record the token lifecycle needs: an identity
// to use as token subject, a credential hash, and an active flag.
type User struct {
	ID           string `gorm:"column:user_id;primaryKey"`
	Email        string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	DisplayName  string `gorm:"column:display_name;not null;default:''"`
	Active       bool   `gorm:"column:active;not null;default:true"`
}

// TableName pins the table name independent of GORM pluralization rules.
func (User) TableName() string {
	return "users"
}

// Store persists application users with GORM.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the users table and wraps the handle.
func NewStore(ctx context.Context, gormDB *gorm.DB) (*Store, error) {
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&User{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate: %w", migrateErr)
	}
	return &Store{db: gormDB}, nil
}

// Create inserts a new user and returns the generated identifier.
func (store *Store) Create(ctx context.Context, email string, passwordHash string, displayName string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", errEmptyEmail
	}
	if passwordHash == "" {
		return "", errEmptySecret
	}
	record := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Active:       true,
	}
	if createErr := store.db.WithContext(ctx).Create(&record).Error; createErr != nil {
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("user_store.create: %w", createErr)
	}
	return record.ID, nil
}

// FindByEmail locates a user by normalized email.
func (store *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	var record User
	err := store.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user_store.find_by_email: %w", err)
	}
	return &record, nil
}

// FindByID locates a user by identifier.
func (store *Store) FindByID(ctx context.Context, userID string) (*User, error) {
	var record User
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user_store.find_by_id: %w", err)
	}
	return &record, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
