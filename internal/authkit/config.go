package authkit

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionTTL is the lifetime of a bearer token minted at login.
const DefaultSessionTTL = 5 * time.Hour

// ServerConfig configures token minting and password hashing.
type ServerConfig struct {
	AppJWTSigningKey []byte
	AppJWTIssuer     string
	SessionTTL       time.Duration
	BcryptCost       int
}

func (configuration ServerConfig) sessionTTL() time.Duration {
	if configuration.SessionTTL <= 0 {
		return DefaultSessionTTL
	}
	return configuration.SessionTTL
}

func (configuration ServerConfig) bcryptCost() int {
	if configuration.BcryptCost < bcrypt.MinCost || configuration.BcryptCost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return configuration.BcryptCost
}
