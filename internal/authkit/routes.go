package authkit

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/creatoros/internal/apierrors"
	"github.com/tyemirov/creatoros/internal/credentials"
)

const (
	metricRegisterSuccess = "auth.register.success"
	metricRegisterFailure = "auth.register.failure"
	metricLoginSuccess    = "auth.login.success"
	metricLoginFailure    = "auth.login.failure"
)

// ErrInvalidCredentials hides whether the email or the password was wrong.
var ErrInvalidCredentials = fmt.Errorf("auth.login: %w", apierrors.ErrInvalidCredentials)

type credentialsRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=6,max=72"`
}

// MountAuthRoutes registers /auth/register and /auth/login.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, users credentials.UserDirectory) {
	router.POST("/auth/register", func(contextGin *gin.Context) {
		logger := currentLogger()
		recorder := currentMetrics()

		var inbound credentialsRequest
		if bindErr := contextGin.ShouldBind(&inbound); bindErr != nil {
			recorder.Increment(metricRegisterFailure)
			apierrors.Respond(contextGin, logger, fmt.Errorf("auth.register.bind: %w: %w", apierrors.ErrInvalidInput, bindErr))
			return
		}

		passwordHash, hashErr := HashPassword(inbound.Password, configuration.bcryptCost())
		if hashErr != nil {
			recorder.Increment(metricRegisterFailure)
			apierrors.Respond(contextGin, logger, hashErr)
			return
		}

		user, createErr := users.CreateUser(contextGin.Request.Context(), inbound.Email, passwordHash, credentials.PlanNone)
		if createErr != nil {
			recorder.Increment(metricRegisterFailure)
			apierrors.Respond(contextGin, logger, createErr)
			return
		}

		recorder.Increment(metricRegisterSuccess)
		logger.Info("user registered",
			zap.String("code", "auth.register.success"),
			zap.String("user_id", user.ID))
		contextGin.JSON(http.StatusCreated, gin.H{
			"msg":     "User registered successfully!",
			"user_id": user.ID,
		})
	})

	router.POST("/auth/login", func(contextGin *gin.Context) {
		logger := currentLogger()
		recorder := currentMetrics()

		var inbound credentialsRequest
		if bindErr := contextGin.ShouldBind(&inbound); bindErr != nil {
			recorder.Increment(metricLoginFailure)
			apierrors.Respond(contextGin, logger, fmt.Errorf("auth.login.bind: %w: %w", apierrors.ErrInvalidInput, bindErr))
			return
		}

		user, findErr := users.FindByEmail(contextGin.Request.Context(), inbound.Email)
		if findErr != nil {
			recorder.Increment(metricLoginFailure)
			if errors.Is(findErr, credentials.ErrUserNotFound) {
				apierrors.Respond(contextGin, logger, ErrInvalidCredentials)
				return
			}
			apierrors.Respond(contextGin, logger, findErr)
			return
		}

		matches, compareErr := PasswordMatches(user.PasswordHash, inbound.Password)
		if compareErr != nil {
			recorder.Increment(metricLoginFailure)
			apierrors.Respond(contextGin, logger, compareErr)
			return
		}
		if !matches {
			recorder.Increment(metricLoginFailure)
			apierrors.Respond(contextGin, logger, ErrInvalidCredentials)
			return
		}

		sessionToken, expiresAt, mintErr := MintAppJWT(currentClock(), user.ID, user.Email, string(user.SubscriptionPlan), configuration.AppJWTIssuer, configuration.AppJWTSigningKey, configuration.sessionTTL())
		if mintErr != nil {
			recorder.Increment(metricLoginFailure)
			apierrors.Respond(contextGin, logger, mintErr)
			return
		}

		recorder.Increment(metricLoginSuccess)
		contextGin.JSON(http.StatusOK, gin.H{
			"token":      sessionToken,
			"expires_at": expiresAt,
		})
	})
}
