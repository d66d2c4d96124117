package credentials

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a linkable third-party account.
type Platform string

const (
	PlatformGoogle Platform = "google"
	PlatformX      Platform = "x"
)

// SupportedPlatforms lists every platform a user record carries a block for.
var SupportedPlatforms = []Platform{PlatformGoogle, PlatformX}

// ParsePlatform resolves a route value into a Platform. "youtube" and "twitter"
// are accepted as aliases.
func ParsePlatform(raw string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PlatformGoogle), "youtube":
		return PlatformGoogle, nil
	case string(PlatformX), "twitter":
		return PlatformX, nil
	default:
		return "", fmt.Errorf("credentials.parse_platform.%s: %w", raw, ErrUnsupportedPlatform)
	}
}

// SubscriptionPlan is the user's billing tier.
type SubscriptionPlan string

const (
	PlanNone      SubscriptionPlan = "None"
	PlanEssential SubscriptionPlan = "Essential"
	PlanPro       SubscriptionPlan = "Pro"
	PlanLifetime  SubscriptionPlan = "Lifetime"
)

// Valid reports whether the plan is one of the known tiers.
func (plan SubscriptionPlan) Valid() bool {
	switch plan {
	case PlanNone, PlanEssential, PlanPro, PlanLifetime:
		return true
	default:
		return false
	}
}

// Profile summarises the linked external account.
type Profile struct {
	ExternalID  string `json:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Handle      string `json:"handle,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// IsZero reports whether no profile field is set.
func (profile Profile) IsZero() bool {
	return profile == Profile{}
}

// PlatformCredential is the OAuth state stored for one platform of one user.
// The zero value is the disconnected block.
type PlatformCredential struct {
	AccessToken  *string
	RefreshToken *string
	Expiry       *time.Time
	Profile      Profile
	ConnectedAt  *time.Time
}

// Connected reports whether an access token is held.
func (credential PlatformCredential) Connected() bool {
	return credential.AccessToken != nil && *credential.AccessToken != ""
}

// User is the identity root owning one credential block per platform.
type User struct {
	ID               string
	Email            string
	PasswordHash     string `json:"-"`
	SubscriptionPlan SubscriptionPlan
	CreatedAt        time.Time
	Google           PlatformCredential
	X                PlatformCredential
}

// Credential returns the block stored for platform.
func (user User) Credential(platform Platform) PlatformCredential {
	switch platform {
	case PlatformGoogle:
		return user.Google
	case PlatformX:
		return user.X
	default:
		return PlatformCredential{}
	}
}

// WithCredential returns a copy of user with the platform block replaced.
func (user User) WithCredential(platform Platform, credential PlatformCredential) User {
	switch platform {
	case PlatformGoogle:
		user.Google = credential
	case PlatformX:
		user.X = credential
	}
	return user
}

// NormalizeEmail trims and lower-cases an address so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StringPointer returns nil for empty values so absent tokens stay NULL.
func StringPointer(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// TimePointer returns nil for the zero time.
func TimePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	return &value
}
