package integrations

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/tyemirov/creatoros/internal/apierrors"
	"github.com/tyemirov/creatoros/internal/credentials"
	"github.com/tyemirov/creatoros/pkg/sessionvalidator"
)

// RouteConfig configures where the user agent lands after a callback.
type RouteConfig struct {
	// FrontendURL receives successful links as ?linked=<platform> and failures
	// on /integrations/error. Empty means callbacks always answer with JSON.
	FrontendURL string
	Logger      *zap.Logger
}

type callbackRequest struct {
	Code             string `form:"code" json:"code"`
	State            string `form:"state" json:"state"`
	Error            string `form:"error" json:"error"`
	ErrorDescription string `form:"error_description" json:"error_description"`
}

// MountRoutes registers the start-link route behind requireSession and the
// callback route without it: the callback identifies the user only through state.
func MountRoutes(router gin.IRouter, coordinator *Coordinator, requireSession gin.HandlerFunc, configuration RouteConfig) {
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handlers := &routeHandlers{
		coordinator: coordinator,
		frontendURL: strings.TrimSpace(configuration.FrontendURL),
		logger:      logger,
	}
	router.GET("/integrations/:platform", requireSession, handlers.begin)
	router.GET("/integrations/:platform/callback", handlers.callback)
	router.POST("/integrations/:platform/callback", handlers.callback)
}

type routeHandlers struct {
	coordinator *Coordinator
	frontendURL string
	logger      *zap.Logger
}

func (handlers *routeHandlers) begin(contextGin *gin.Context) {
	claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
	if !ok {
		apierrors.Respond(contextGin, handlers.logger, apierrors.ErrUnauthenticated)
		return
	}
	platform, err := credentials.ParsePlatform(contextGin.Param("platform"))
	if err != nil {
		apierrors.Respond(contextGin, handlers.logger, err)
		return
	}
	authorizationURL, err := handlers.coordinator.Begin(contextGin.Request.Context(), claims.GetUserID(), platform)
	if err != nil {
		apierrors.Respond(contextGin, handlers.logger, err)
		return
	}
	if wantsJSON(contextGin) {
		contextGin.JSON(http.StatusOK, gin.H{
			"platform":          platform,
			"authorization_url": authorizationURL,
		})
		return
	}
	contextGin.Redirect(http.StatusTemporaryRedirect, authorizationURL)
}

func (handlers *routeHandlers) callback(contextGin *gin.Context) {
	rawPlatform := contextGin.Param("platform")
	platform, err := credentials.ParsePlatform(rawPlatform)
	if err != nil {
		handlers.fail(contextGin, rawPlatform, err)
		return
	}
	inbound := readCallback(contextGin)
	userID, err := handlers.coordinator.Complete(contextGin.Request.Context(), platform, CallbackParams{
		Code:             inbound.Code,
		State:            inbound.State,
		Error:            inbound.Error,
		ErrorDescription: inbound.ErrorDescription,
	})
	if err != nil {
		handlers.fail(contextGin, string(platform), err)
		return
	}
	if handlers.frontendURL == "" || wantsJSON(contextGin) {
		contextGin.JSON(http.StatusOK, gin.H{
			"platform":  platform,
			"user_id":   userID,
			"connected": true,
		})
		return
	}
	contextGin.Redirect(http.StatusFound, handlers.frontendLocation("", url.Values{"linked": {string(platform)}}))
}

func (handlers *routeHandlers) fail(contextGin *gin.Context, platform string, err error) {
	if handlers.frontendURL == "" || wantsJSON(contextGin) {
		apierrors.Respond(contextGin, handlers.logger, err)
		return
	}
	if _, known := apierrors.Classify(err); !known {
		handlers.logger.Error("callback failed",
			zap.String("code", "integrations.callback.internal_error"),
			zap.Error(err))
	}
	location := handlers.frontendLocation("/integrations/error", url.Values{
		"platform": {platform},
		"reason":   {apierrors.Code(err)},
	})
	contextGin.Redirect(http.StatusFound, location)
	contextGin.Abort()
}

// frontendLocation appends suffix to the frontend path and merges query.
func (handlers *routeHandlers) frontendLocation(suffix string, query url.Values) string {
	target, err := url.Parse(handlers.frontendURL)
	if err != nil {
		return handlers.frontendURL
	}
	if suffix != "" {
		target.Path = strings.TrimRight(target.Path, "/") + suffix
	}
	merged := target.Query()
	for key, values := range query {
		merged[key] = values
	}
	target.RawQuery = merged.Encode()
	return target.String()
}

// readCallback collects callback parameters from the query string and, for
// POST callbacks, the form or JSON body. Query values win.
func readCallback(contextGin *gin.Context) callbackRequest {
	var inbound callbackRequest
	_ = contextGin.ShouldBindQuery(&inbound)
	if contextGin.Request.Method != http.MethodPost || contextGin.Request.ContentLength == 0 {
		return inbound
	}
	var body callbackRequest
	if contextGin.ContentType() == binding.MIMEJSON {
		_ = contextGin.ShouldBindJSON(&body)
	} else {
		_ = contextGin.ShouldBindWith(&body, binding.Form)
	}
	inbound.Code = firstNonEmpty(inbound.Code, body.Code)
	inbound.State = firstNonEmpty(inbound.State, body.State)
	inbound.Error = firstNonEmpty(inbound.Error, body.Error)
	inbound.ErrorDescription = firstNonEmpty(inbound.ErrorDescription, body.ErrorDescription)
	return inbound
}

func wantsJSON(contextGin *gin.Context) bool {
	if strings.EqualFold(contextGin.Query("response"), "json") {
		return true
	}
	if contextGin.ContentType() == binding.MIMEJSON {
		return true
	}
	accept := contextGin.GetHeader("Accept")
	return strings.Contains(accept, binding.MIMEJSON) && !strings.Contains(accept, binding.MIMEHTML)
}
