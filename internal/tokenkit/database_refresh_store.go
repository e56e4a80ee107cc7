package tokenkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("refresh_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("refresh_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("refresh_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("refresh_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("refresh_store.unsupported_no_scheme")
)

// OpenDatabase resolves the URL scheme to a GORM dialector and opens the
// connection. The returned handle is shared by the refresh token store and
// the user store.
func OpenDatabase(databaseURL string) (*gorm.DB, string, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, "", fmt.Errorf("refresh_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, "", err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, "", fmt.Errorf("refresh_store.open.%s: %w", driverLabel, openErr)
	}
	return gormDB, driverLabel, nil
}

// DatabaseRefreshTokenStore persists the single live refresh token per user
// using GORM. The user id is the primary key, so installing a new token is a
// single upsert and two live rows for one user cannot exist.
type DatabaseRefreshTokenStore struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

// Driver exposes the selected database driver label.
func (store *DatabaseRefreshTokenStore) Driver() string {
	return store.driverLabel
}

type storedRefreshToken struct {
	UserID           string `gorm:"column:user_id;primaryKey"`
	TokenHash        string `gorm:"column:token_hash;uniqueIndex;not null"`
	ExpiresUnixMilli int64  `gorm:"column:expires_unix_milli;not null"`
	IssuedUnixMilli  int64  `gorm:"column:issued_unix_milli;not null"`
}

func (storedRefreshToken) TableName() string {
	return "refresh_tokens"
}

// NewDatabaseRefreshTokenStore migrates the schema and wraps the handle.
func NewDatabaseRefreshTokenStore(ctx context.Context, gormDB *gorm.DB, driverLabel string, clock Clock) (*DatabaseRefreshTokenStore, error) {
	if clock == nil {
		clock = NewSystemClock()
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&storedRefreshToken{}); migrateErr != nil {
		return nil, fmt.Errorf("refresh_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseRefreshTokenStore{
		db:          gormDB,
		driverLabel: driverLabel,
		clock:       clock,
	}, nil
}

// Put installs the token as the user's live refresh token in one upsert.
func (store *DatabaseRefreshTokenStore) Put(ctx context.Context, userID string, token string, expiresAt time.Time) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("refresh_store.put.%s: %w", store.driverLabel, ErrRefreshTokenEmptyValue)
	}
	record := storedRefreshToken{
		UserID:           userID,
		TokenHash:        hashToken(token),
		ExpiresUnixMilli: expiresAt.UnixMilli(),
		IssuedUnixMilli:  store.clock.Now().UnixMilli(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_unix_milli", "issued_unix_milli"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("refresh_store.put.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Get locates a live record by token value.
func (store *DatabaseRefreshTokenStore) Get(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("refresh_store.get.%s: %w", store.driverLabel, ErrRefreshTokenEmptyValue)
	}
	var record storedRefreshToken
	err := store.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("refresh_store.get.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
		}
		return nil, fmt.Errorf("refresh_store.get.%s: %w", store.driverLabel, err)
	}
	expiresAt := time.UnixMilli(record.ExpiresUnixMilli).UTC()
	if expiresAt.Before(store.clock.Now()) {
		return nil, fmt.Errorf("refresh_store.get.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
	}
	return &RefreshTokenRecord{
		UserID:    record.UserID,
		ExpiresAt: expiresAt,
		IssuedAt:  time.UnixMilli(record.IssuedUnixMilli).UTC(),
	}, nil
}

// DeleteAllForUser removes every row for the user.
func (store *DatabaseRefreshTokenStore) DeleteAllForUser(ctx context.Context, userID string) error {
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&storedRefreshToken{}).Error
	if err != nil {
		return fmt.Errorf("refresh_store.delete_user.%s: %w", store.driverLabel, err)
	}
	return nil
}

// DeleteExpired removes rows past their expiry.
func (store *DatabaseRefreshTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	result := store.db.WithContext(ctx).
		Where("expires_unix_milli < ?", store.clock.Now().UnixMilli()).
		Delete(&storedRefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("refresh_store.delete_expired.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected, nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("refresh_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("refresh_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("refresh_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("refresh_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
