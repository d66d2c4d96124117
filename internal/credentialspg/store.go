package credentialspg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tyemirov/creatoros/internal/credentials"
)

const uniqueViolationCode = "23505"

const selectUserColumns = `id, email, password_hash, subscription_plan, created_at,
google_access_token, google_refresh_token, google_expiry,
google_profile_external_id, google_profile_display_name, google_profile_handle, google_profile_avatar_url,
google_connected_at,
x_access_token, x_refresh_token, x_expiry,
x_profile_external_id, x_profile_display_name, x_profile_handle, x_profile_avatar_url,
x_connected_at`

// blockUpdateStatements holds one UPDATE per platform so block writes never
// interpolate identifiers at runtime.
var blockUpdateStatements = map[credentials.Platform]string{
	credentials.PlatformGoogle: `
UPDATE users SET
    google_access_token = $2,
    google_refresh_token = $3,
    google_expiry = $4,
    google_profile_external_id = $5,
    google_profile_display_name = $6,
    google_profile_handle = $7,
    google_profile_avatar_url = $8,
    google_connected_at = $9
WHERE id = $1
`,
	credentials.PlatformX: `
UPDATE users SET
    x_access_token = $2,
    x_refresh_token = $3,
    x_expiry = $4,
    x_profile_external_id = $5,
    x_profile_display_name = $6,
    x_profile_handle = $7,
    x_profile_avatar_url = $8,
    x_connected_at = $9
WHERE id = $1
`,
}

// PostgresStore persists users and credential blocks with explicit SQL over pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore constructs a Postgres store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser inserts a user with empty credential blocks.
func (store *PostgresStore) CreateUser(ctx context.Context, email string, passwordHash string, plan credentials.SubscriptionPlan) (credentials.User, error) {
	if plan == "" {
		plan = credentials.PlanNone
	}
	if !plan.Valid() {
		return credentials.User{}, fmt.Errorf("credential_store.create.postgres.%s: %w", plan, credentials.ErrInvalidPlan)
	}
	user := credentials.User{
		ID:               uuid.NewString(),
		Email:            credentials.NormalizeEmail(email),
		PasswordHash:     passwordHash,
		SubscriptionPlan: plan,
		CreatedAt:        store.now(),
	}
	_, err := store.pool.Exec(ctx, `
INSERT INTO users (id, email, password_hash, subscription_plan, created_at)
VALUES ($1, $2, $3, $4, $5)
`, user.ID, user.Email, user.PasswordHash, string(user.SubscriptionPlan), user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return credentials.User{}, fmt.Errorf("credential_store.create.pgx: %w", credentials.ErrEmailTaken)
		}
		return credentials.User{}, fmt.Errorf("credential_store.create.pgx: %w: %w", credentials.ErrStoreUnavailable, err)
	}
	return user, nil
}

// FindByEmail looks a user up by case-insensitive address.
func (store *PostgresStore) FindByEmail(ctx context.Context, email string) (credentials.User, error) {
	row := store.pool.QueryRow(ctx, "SELECT "+selectUserColumns+" FROM users WHERE email = $1", credentials.NormalizeEmail(email))
	user, err := scanUser(row)
	if err != nil {
		return credentials.User{}, lookupError("find_by_email", err)
	}
	return user, nil
}

// Get loads the user record with both credential blocks.
func (store *PostgresStore) Get(ctx context.Context, userID string) (credentials.User, error) {
	if strings.TrimSpace(userID) == "" {
		return credentials.User{}, fmt.Errorf("credential_store.get.pgx: %w", credentials.ErrUserNotFound)
	}
	row := store.pool.QueryRow(ctx, "SELECT "+selectUserColumns+" FROM users WHERE id = $1", userID)
	user, err := scanUser(row)
	if err != nil {
		return credentials.User{}, lookupError("get", err)
	}
	return user, nil
}

// SetCredential replaces the platform block in a single UPDATE.
func (store *PostgresStore) SetCredential(ctx context.Context, userID string, platform credentials.Platform, credential credentials.PlatformCredential) error {
	return store.writeBlock(ctx, "set", userID, platform, credential)
}

// ClearCredential nulls every column of the platform block.
func (store *PostgresStore) ClearCredential(ctx context.Context, userID string, platform credentials.Platform) error {
	return store.writeBlock(ctx, "clear", userID, platform, credentials.PlatformCredential{})
}

func (store *PostgresStore) writeBlock(ctx context.Context, operation string, userID string, platform credentials.Platform, credential credentials.PlatformCredential) error {
	statement, ok := blockUpdateStatements[platform]
	if !ok {
		return fmt.Errorf("credential_store.%s.pgx.%s: %w", operation, platform, credentials.ErrUnsupportedPlatform)
	}
	tag, err := store.pool.Exec(ctx, statement, blockArguments(userID, credential)...)
	if err != nil {
		return fmt.Errorf("credential_store.%s.pgx: %w: %w", operation, credentials.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential_store.%s.pgx: %w", operation, credentials.ErrUserNotFound)
	}
	return nil
}

func blockArguments(userID string, credential credentials.PlatformCredential) []any {
	return []any{
		userID,
		credential.AccessToken,
		credential.RefreshToken,
		credential.Expiry,
		credentials.StringPointer(credential.Profile.ExternalID),
		credentials.StringPointer(credential.Profile.DisplayName),
		credentials.StringPointer(credential.Profile.Handle),
		credentials.StringPointer(credential.Profile.AvatarURL),
		credential.ConnectedAt,
	}
}

type blockColumns struct {
	accessToken  *string
	refreshToken *string
	expiry       *time.Time
	externalID   *string
	displayName  *string
	handle       *string
	avatarURL    *string
	connectedAt  *time.Time
}

func (columns *blockColumns) targets() []any {
	return []any{
		&columns.accessToken,
		&columns.refreshToken,
		&columns.expiry,
		&columns.externalID,
		&columns.displayName,
		&columns.handle,
		&columns.avatarURL,
		&columns.connectedAt,
	}
}

func (columns blockColumns) credential() credentials.PlatformCredential {
	return credentials.PlatformCredential{
		AccessToken:  columns.accessToken,
		RefreshToken: columns.refreshToken,
		Expiry:       columns.expiry,
		Profile: credentials.Profile{
			ExternalID:  deref(columns.externalID),
			DisplayName: deref(columns.displayName),
			Handle:      deref(columns.handle),
			AvatarURL:   deref(columns.avatarURL),
		},
		ConnectedAt: columns.connectedAt,
	}
}

func scanUser(row pgx.Row) (credentials.User, error) {
	var (
		user   credentials.User
		plan   string
		google blockColumns
		x      blockColumns
	)
	targets := []any{&user.ID, &user.Email, &user.PasswordHash, &plan, &user.CreatedAt}
	targets = append(targets, google.targets()...)
	targets = append(targets, x.targets()...)
	if err := row.Scan(targets...); err != nil {
		return credentials.User{}, err
	}
	user.SubscriptionPlan = credentials.SubscriptionPlan(plan)
	user.Google = google.credential()
	user.X = x.credential()
	return user, nil
}

func lookupError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("credential_store.%s.pgx: %w", operation, credentials.ErrUserNotFound)
	}
	return fmt.Errorf("credential_store.%s.pgx: %w: %w", operation, credentials.ErrStoreUnavailable, err)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
