package authkit

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tyemirov/creatoros/pkg/sessionvalidator"
)

// RequireSession validates the bearer token and injects claims under
// sessionvalidator.DefaultContextKey.
func RequireSession(configuration ServerConfig) (gin.HandlerFunc, error) {
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: configuration.AppJWTSigningKey,
		Issuer:     configuration.AppJWTIssuer,
		Clock:      clockAdapter{},
	})
	if err != nil {
		return nil, err
	}
	return validator.GinMiddleware(sessionvalidator.DefaultContextKey), nil
}

// clockAdapter defers to the provided clock at call time so ProvideClock
// affects validation as well as minting.
type clockAdapter struct{}

func (clockAdapter) Now() time.Time {
	return currentClock().Now()
}
