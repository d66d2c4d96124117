package analysis

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/creatoros/internal/apierrors"
	"github.com/tyemirov/creatoros/pkg/sessionvalidator"
)

// MountRoutes registers GET /analysis/generate-roadmap behind requireSession.
func MountRoutes(router gin.IRouter, service *Service, requireSession gin.HandlerFunc, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	router.GET("/analysis/generate-roadmap", requireSession, func(contextGin *gin.Context) {
		claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
		if !ok {
			apierrors.Respond(contextGin, logger, apierrors.ErrUnauthenticated)
			return
		}
		roadmap, err := service.GenerateRoadmap(contextGin.Request.Context(), claims.GetUserID())
		if err != nil {
			apierrors.Respond(contextGin, logger, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"message": "Roadmap generated successfully!",
			"roadmap": roadmap,
		})
	})
}
