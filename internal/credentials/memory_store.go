package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory store intended for tests and dev.
type MemoryStore struct {
	mutex   sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser registers a new user with empty credential blocks.
func (store *MemoryStore) CreateUser(ctx context.Context, email string, passwordHash string, plan SubscriptionPlan) (User, error) {
	normalized := NormalizeEmail(email)
	if plan == "" {
		plan = PlanNone
	}
	if !plan.Valid() {
		return User{}, fmt.Errorf("credential_store.create.memory.%s: %w", plan, ErrInvalidPlan)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, exists := store.byEmail[normalized]; exists {
		return User{}, fmt.Errorf("credential_store.create.memory: %w", ErrEmailTaken)
	}
	user := User{
		ID:               uuid.NewString(),
		Email:            normalized,
		PasswordHash:     passwordHash,
		SubscriptionPlan: plan,
		CreatedAt:        store.now(),
	}
	store.byID[user.ID] = user
	store.byEmail[normalized] = user.ID
	return user, nil
}

// FindByEmail looks a user up by case-insensitive address.
func (store *MemoryStore) FindByEmail(ctx context.Context, email string) (User, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	userID, ok := store.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, fmt.Errorf("credential_store.find_by_email.memory: %w", ErrUserNotFound)
	}
	return store.byID[userID], nil
}

// Get returns a copy of the user record.
func (store *MemoryStore) Get(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, fmt.Errorf("credential_store.get.memory: %w: %w", errEmptyUserID, ErrUserNotFound)
	}
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	user, ok := store.byID[userID]
	if !ok {
		return User{}, fmt.Errorf("credential_store.get.memory: %w", ErrUserNotFound)
	}
	return user, nil
}

// SetCredential replaces the platform block under the write lock.
func (store *MemoryStore) SetCredential(ctx context.Context, userID string, platform Platform, credential PlatformCredential) error {
	if err := validatePlatform(platform); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, ok := store.byID[userID]
	if !ok {
		return fmt.Errorf("credential_store.set.memory: %w", ErrUserNotFound)
	}
	store.byID[userID] = user.WithCredential(platform, cloneCredential(credential))
	return nil
}

// ClearCredential resets the platform block.
func (store *MemoryStore) ClearCredential(ctx context.Context, userID string, platform Platform) error {
	if err := validatePlatform(platform); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, ok := store.byID[userID]
	if !ok {
		return fmt.Errorf("credential_store.clear.memory: %w", ErrUserNotFound)
	}
	store.byID[userID] = user.WithCredential(platform, PlatformCredential{})
	return nil
}

// cloneCredential detaches the stored block from caller-owned pointers.
func cloneCredential(credential PlatformCredential) PlatformCredential {
	clone := PlatformCredential{Profile: credential.Profile}
	if credential.AccessToken != nil {
		clone.AccessToken = StringPointer(*credential.AccessToken)
	}
	if credential.RefreshToken != nil {
		clone.RefreshToken = StringPointer(*credential.RefreshToken)
	}
	if credential.Expiry != nil {
		clone.Expiry = TimePointer(*credential.Expiry)
	}
	if credential.ConnectedAt != nil {
		clone.ConnectedAt = TimePointer(*credential.ConnectedAt)
	}
	return clone
}
