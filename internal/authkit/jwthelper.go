package authkit

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tyemirov/creatoros/pkg/sessionvalidator"
)

var errEmptySubject = errors.New("jwt.mint.failure: subject must be non-empty")

// MintAppJWT creates a signed HS256 bearer token for the session audience.
func MintAppJWT(clock Clock, applicationUserID string, userEmail string, subscriptionPlan string, issuer string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(applicationUserID) == "" {
		return "", time.Time{}, errEmptySubject
	}
	issuedAt := clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionvalidator.Claims{
		UserID:           applicationUserID,
		UserEmail:        userEmail,
		SubscriptionPlan: subscriptionPlan,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   applicationUserID,
			Audience:  jwt.ClaimStrings{sessionvalidator.SessionAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(signingKey)
	return signed, expiresAt, err
}
