package credentialspg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the users table if it does not exist. The column set
// matches the table the GORM store migrates, so either backend can open it.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    subscription_plan TEXT NOT NULL DEFAULT 'None',
    created_at TIMESTAMPTZ NOT NULL,
    google_access_token TEXT,
    google_refresh_token TEXT,
    google_expiry TIMESTAMPTZ,
    google_profile_external_id TEXT,
    google_profile_display_name TEXT,
    google_profile_handle TEXT,
    google_profile_avatar_url TEXT,
    google_connected_at TIMESTAMPTZ,
    x_access_token TEXT,
    x_refresh_token TEXT,
    x_expiry TIMESTAMPTZ,
    x_profile_external_id TEXT,
    x_profile_display_name TEXT,
    x_profile_handle TEXT,
    x_profile_avatar_url TEXT,
    x_connected_at TIMESTAMPTZ
);
`)
	if err != nil {
		return fmt.Errorf("credentialspg.schema: %w", err)
	}
	return nil
}
