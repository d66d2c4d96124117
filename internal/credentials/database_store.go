package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("credential_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("credential_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("credential_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("credential_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("credential_store.unsupported_no_scheme")
)

// DatabaseStore persists users and their credential blocks using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

// userRecord flattens both credential blocks into prefixed columns so a block
// is replaced by a single UPDATE.
type userRecord struct {
	ID               string    `gorm:"column:id;primaryKey"`
	Email            string    `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash     string    `gorm:"column:password_hash;not null"`
	SubscriptionPlan string    `gorm:"column:subscription_plan;not null;default:'None'"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`

	GoogleAccessToken       *string    `gorm:"column:google_access_token"`
	GoogleRefreshToken      *string    `gorm:"column:google_refresh_token"`
	GoogleExpiry            *time.Time `gorm:"column:google_expiry"`
	GoogleProfileExternalID *string    `gorm:"column:google_profile_external_id"`
	GoogleProfileName       *string    `gorm:"column:google_profile_display_name"`
	GoogleProfileHandle     *string    `gorm:"column:google_profile_handle"`
	GoogleProfileAvatarURL  *string    `gorm:"column:google_profile_avatar_url"`
	GoogleConnectedAt       *time.Time `gorm:"column:google_connected_at"`

	XAccessToken       *string    `gorm:"column:x_access_token"`
	XRefreshToken      *string    `gorm:"column:x_refresh_token"`
	XExpiry            *time.Time `gorm:"column:x_expiry"`
	XProfileExternalID *string    `gorm:"column:x_profile_external_id"`
	XProfileName       *string    `gorm:"column:x_profile_display_name"`
	XProfileHandle     *string    `gorm:"column:x_profile_handle"`
	XProfileAvatarURL  *string    `gorm:"column:x_profile_avatar_url"`
	XConnectedAt       *time.Time `gorm:"column:x_connected_at"`
}

func (userRecord) TableName() string {
	return "users"
}

// NewDatabaseStore constructs a GORM-backed store and migrates the schema.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("credential_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, fmt.Errorf("credential_store.open.%s: %w: %w", driverLabel, ErrStoreUnavailable, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("credential_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// CreateUser inserts a user with empty credential blocks.
func (store *DatabaseStore) CreateUser(ctx context.Context, email string, passwordHash string, plan SubscriptionPlan) (User, error) {
	if plan == "" {
		plan = PlanNone
	}
	if !plan.Valid() {
		return User{}, fmt.Errorf("credential_store.create.%s.%s: %w", store.driverLabel, plan, ErrInvalidPlan)
	}
	record := userRecord{
		ID:               uuid.NewString(),
		Email:            NormalizeEmail(email),
		PasswordHash:     passwordHash,
		SubscriptionPlan: string(plan),
		CreatedAt:        time.Now().UTC(),
	}
	var existing int64
	if err := store.db.WithContext(ctx).Model(&userRecord{}).Where("email = ?", record.Email).Count(&existing).Error; err != nil {
		return User{}, fmt.Errorf("credential_store.create.%s: %w: %w", store.driverLabel, ErrStoreUnavailable, err)
	}
	if existing > 0 {
		return User{}, fmt.Errorf("credential_store.create.%s: %w", store.driverLabel, ErrEmailTaken)
	}
	if err := store.insertUser(ctx, &record); err != nil {
		return User{}, err
	}
	return record.toUser(), nil
}

// insertUser relies on the unique email index when two registrations race past the count check.
func (store *DatabaseStore) insertUser(ctx context.Context, record *userRecord) error {
	if err := store.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("credential_store.create.%s: %w", store.driverLabel, ErrEmailTaken)
		}
		return fmt.Errorf("credential_store.create.%s: %w: %w", store.driverLabel, ErrStoreUnavailable, err)
	}
	return nil
}

// FindByEmail looks a user up by case-insensitive address.
func (store *DatabaseStore) FindByEmail(ctx context.Context, email string) (User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).Take(&record).Error
	if err != nil {
		return User{}, store.lookupError("find_by_email", err)
	}
	return record.toUser(), nil
}

// Get loads the user record with both credential blocks.
func (store *DatabaseStore) Get(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, fmt.Errorf("credential_store.get.%s: %w: %w", store.driverLabel, errEmptyUserID, ErrUserNotFound)
	}
	var record userRecord
	err := store.db.WithContext(ctx).Where("id = ?", userID).Take(&record).Error
	if err != nil {
		return User{}, store.lookupError("get", err)
	}
	return record.toUser(), nil
}

// SetCredential replaces every column of the platform block in one statement.
func (store *DatabaseStore) SetCredential(ctx context.Context, userID string, platform Platform, credential PlatformCredential) error {
	if err := validatePlatform(platform); err != nil {
		return err
	}
	return store.updateBlock(ctx, "set", userID, credentialColumns(platform, credential))
}

// ClearCredential sets every column of the platform block to NULL.
func (store *DatabaseStore) ClearCredential(ctx context.Context, userID string, platform Platform) error {
	if err := validatePlatform(platform); err != nil {
		return err
	}
	return store.updateBlock(ctx, "clear", userID, credentialColumns(platform, PlatformCredential{}))
}

func (store *DatabaseStore) updateBlock(ctx context.Context, operation string, userID string, columns map[string]any) error {
	result := store.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", userID).Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("credential_store.%s.%s: %w: %w", operation, store.driverLabel, ErrStoreUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := store.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return fmt.Errorf("credential_store.%s.%s: %w: %w", operation, store.driverLabel, ErrStoreUnavailable, err)
		}
		if count == 0 {
			return fmt.Errorf("credential_store.%s.%s: %w", operation, store.driverLabel, ErrUserNotFound)
		}
	}
	return nil
}

func (store *DatabaseStore) lookupError(operation string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("credential_store.%s.%s: %w", operation, store.driverLabel, ErrUserNotFound)
	}
	return fmt.Errorf("credential_store.%s.%s: %w: %w", operation, store.driverLabel, ErrStoreUnavailable, err)
}

// credentialColumns lists the full column set of a block. Nil values become NULL.
func credentialColumns(platform Platform, credential PlatformCredential) map[string]any {
	prefix := string(platform) + "_"
	return map[string]any{
		prefix + "access_token":         credential.AccessToken,
		prefix + "refresh_token":        credential.RefreshToken,
		prefix + "expiry":               credential.Expiry,
		prefix + "profile_external_id":  StringPointer(credential.Profile.ExternalID),
		prefix + "profile_display_name": StringPointer(credential.Profile.DisplayName),
		prefix + "profile_handle":       StringPointer(credential.Profile.Handle),
		prefix + "profile_avatar_url":   StringPointer(credential.Profile.AvatarURL),
		prefix + "connected_at":         credential.ConnectedAt,
	}
}

func (record userRecord) toUser() User {
	return User{
		ID:               record.ID,
		Email:            record.Email,
		PasswordHash:     record.PasswordHash,
		SubscriptionPlan: SubscriptionPlan(record.SubscriptionPlan),
		CreatedAt:        record.CreatedAt,
		Google: PlatformCredential{
			AccessToken:  record.GoogleAccessToken,
			RefreshToken: record.GoogleRefreshToken,
			Expiry:       record.GoogleExpiry,
			Profile: Profile{
				ExternalID:  stringValue(record.GoogleProfileExternalID),
				DisplayName: stringValue(record.GoogleProfileName),
				Handle:      stringValue(record.GoogleProfileHandle),
				AvatarURL:   stringValue(record.GoogleProfileAvatarURL),
			},
			ConnectedAt: record.GoogleConnectedAt,
		},
		X: PlatformCredential{
			AccessToken:  record.XAccessToken,
			RefreshToken: record.XRefreshToken,
			Expiry:       record.XExpiry,
			Profile: Profile{
				ExternalID:  stringValue(record.XProfileExternalID),
				DisplayName: stringValue(record.XProfileName),
				Handle:      stringValue(record.XProfileHandle),
				AvatarURL:   stringValue(record.XProfileAvatarURL),
			},
			ConnectedAt: record.XConnectedAt,
		},
	}
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("credential_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("credential_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("credential_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("credential_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
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
