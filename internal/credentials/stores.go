package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/tyemirov/creatoros/internal/apierrors"
)

var (
	// ErrUserNotFound indicates no user matched the identifier or email.
	ErrUserNotFound = fmt.Errorf("credential_store.user_not_found: %w", apierrors.ErrNotFound)
	// ErrEmailTaken indicates a user already registered the address.
	ErrEmailTaken = fmt.Errorf("credential_store.email_taken: %w", apierrors.ErrConflict)
	// ErrStoreUnavailable indicates the backing store could not be reached.
	ErrStoreUnavailable = fmt.Errorf("credential_store.unavailable: %w", apierrors.ErrStoreUnavailable)
	// ErrInvalidPlan indicates a subscription tier outside the known set.
	ErrInvalidPlan = fmt.Errorf("credential_store.invalid_plan: %w", apierrors.ErrInvalidInput)
	// ErrUnsupportedPlatform indicates a platform without a credential block.
	ErrUnsupportedPlatform = fmt.Errorf("credential_store.unsupported_platform: %w", apierrors.ErrNotFound)

	errEmptyUserID = errors.New("credential_store.empty_user_id")
)

// CredentialStore persists the per-platform credential blocks of a user record.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (User, error)
	// SetCredential replaces the whole block atomically.
	SetCredential(ctx context.Context, userID string, platform Platform, credential PlatformCredential) error
	// ClearCredential resets the whole block to its empty state.
	ClearCredential(ctx context.Context, userID string, platform Platform) error
}

// UserDirectory creates and looks up users for registration and login.
type UserDirectory interface {
	CreateUser(ctx context.Context, email string, passwordHash string, plan SubscriptionPlan) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
}

// Store is the full persistence contract implemented by every backend.
type Store interface {
	CredentialStore
	UserDirectory
}

func validatePlatform(platform Platform) error {
	for _, supported := range SupportedPlatforms {
		if supported == platform {
			return nil
		}
	}
	return fmt.Errorf("credential_store.platform.%s: %w", platform, ErrUnsupportedPlatform)
}
