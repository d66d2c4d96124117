package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/creatoros/internal/apierrors"
	"github.com/tyemirov/creatoros/internal/connections"
	"github.com/tyemirov/creatoros/internal/credentials"
	"github.com/tyemirov/creatoros/pkg/sessionvalidator"
)

// Disconnector resets a platform block.
type Disconnector interface {
	Disconnect(ctx context.Context, userID string, platform credentials.Platform) error
}

// UserHandlers serves the authenticated user's link status.
type UserHandlers struct {
	store        credentials.CredentialStore
	disconnector Disconnector
	logger       *zap.Logger
}

// NewUserHandlers wires the handlers. A nil disconnector clears blocks directly in the store.
func NewUserHandlers(logger *zap.Logger, store credentials.CredentialStore, disconnector Disconnector) *UserHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		panic("credential store is required")
	}
	return &UserHandlers{
		store:        store,
		disconnector: disconnector,
		logger:       logger,
	}
}

// MountUserRoutes registers /user/status, /user/profile and /user/disconnect/:platform behind requireSession.
func MountUserRoutes(router gin.IRouter, requireSession gin.HandlerFunc, handlers *UserHandlers) {
	group := router.Group("/user", requireSession)
	group.GET("/status", handlers.HandleStatus)
	group.GET("/profile", handlers.HandleProfile)
	group.POST("/disconnect/:platform", handlers.HandleDisconnect)
}

// HandleStatus returns the projection keyed by platform. "youtube" mirrors the
// Google link for older clients.
func (handlers *UserHandlers) HandleStatus(contextGin *gin.Context) {
	user, ok := handlers.loadUser(contextGin)
	if !ok {
		return
	}
	contextGin.JSON(http.StatusOK, statusBody(connections.Project(user)))
}

// HandleProfile returns account details together with the projection.
func (handlers *UserHandlers) HandleProfile(contextGin *gin.Context) {
	user, ok := handlers.loadUser(contextGin)
	if !ok {
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"user_id":           user.ID,
		"email":             user.Email,
		"subscription_plan": user.SubscriptionPlan,
		"created_at":        user.CreatedAt.UTC().Format(time.RFC3339),
		"connections":       connections.Project(user),
	})
}

// HandleDisconnect clears the platform block and returns the new status.
func (handlers *UserHandlers) HandleDisconnect(contextGin *gin.Context) {
	claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
	if !ok || claims.GetUserID() == "" {
		handlers.logger.Warn("missing auth claims on context",
			zap.String("code", "api.user.missing_claims"))
		apierrors.Respond(contextGin, handlers.logger, apierrors.ErrUnauthenticated)
		return
	}
	platform, err := credentials.ParsePlatform(contextGin.Param("platform"))
	if err != nil {
		apierrors.Respond(contextGin, handlers.logger, err)
		return
	}
	ctx := contextGin.Request.Context()
	if handlers.disconnector != nil {
		err = handlers.disconnector.Disconnect(ctx, claims.GetUserID(), platform)
	} else {
		err = handlers.store.ClearCredential(ctx, claims.GetUserID(), platform)
	}
	if err != nil {
		apierrors.Respond(contextGin, handlers.logger, err)
		return
	}
	user, ok := handlers.loadUser(contextGin)
	if !ok {
		return
	}
	body := statusBody(connections.Project(user))
	body["disconnected"] = platform
	contextGin.JSON(http.StatusOK, body)
}

func (handlers *UserHandlers) loadUser(contextGin *gin.Context) (credentials.User, bool) {
	claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
	if !ok || claims.GetUserID() == "" {
		handlers.logger.Warn("missing auth claims on context",
			zap.String("code", "api.user.missing_claims"))
		apierrors.Respond(contextGin, handlers.logger, apierrors.ErrUnauthenticated)
		return credentials.User{}, false
	}
	user, err := handlers.store.Get(contextGin.Request.Context(), claims.GetUserID())
	if err != nil {
		apierrors.Respond(contextGin, handlers.logger, err)
		return credentials.User{}, false
	}
	return user, true
}

func statusBody(projection connections.Projection) gin.H {
	body := gin.H{}
	for platform, status := range projection {
		body[string(platform)] = status
	}
	body["youtube"] = projection.Connected(credentials.PlatformGoogle)
	return body
}
