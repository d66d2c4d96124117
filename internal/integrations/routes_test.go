package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tyemirov/creatoros/internal/credentials"
	"github.com/tyemirov/creatoros/pkg/sessionvalidator"
)

func newRouteFixture(t *testing.T, frontendURL string) (coordinatorFixture, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fixture := newCoordinatorFixture(t)
	fakeSession := func(contextGin *gin.Context) {
		contextGin.Set(sessionvalidator.DefaultContextKey, &sessionvalidator.Claims{UserID: fixture.userID})
		contextGin.Next()
	}
	router := gin.New()
	MountRoutes(router.Group("/api"), fixture.coordinator, fakeSession, RouteConfig{
		FrontendURL: frontendURL,
		Logger:      zaptest.NewLogger(t),
	})
	return fixture, router
}

func serve(router http.Handler, request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestStartLinkRedirectsToProvider(t *testing.T) {
	fixture, router := newRouteFixture(t, "https://app.example.com/")

	response := serve(router, httptest.NewRequest(http.MethodGet, "/api/integrations/youtube", nil))
	require.Equal(t, http.StatusTemporaryRedirect, response.Code)
	location, err := url.Parse(response.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "provider.example.com", location.Host)

	payload, err := fixture.codec.Codec.Decode(location.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, fixture.userID, payload.UserID)
	assert.Equal(t, credentials.PlatformGoogle, payload.Platform)
}

func TestStartLinkReturnsURLAsJSON(t *testing.T) {
	_, router := newRouteFixture(t, "https://app.example.com/")

	response := serve(router, httptest.NewRequest(http.MethodGet, "/api/integrations/x?response=json", nil))
	require.Equal(t, http.StatusOK, response.Code)
	var body struct {
		Platform         string `json:"platform"`
		AuthorizationURL string `json:"authorization_url"`
	}
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &body))
	assert.Equal(t, "x", body.Platform)
	assert.Contains(t, body.AuthorizationURL, "code_challenge=")
}

func TestStartLinkUnknownPlatform(t *testing.T) {
	_, router := newRouteFixture(t, "")
	response := serve(router, httptest.NewRequest(http.MethodGet, "/api/integrations/myspace", nil))
	assert.Equal(t, http.StatusNotFound, response.Code)
}

func TestCallbackRedirectsToFrontendOnSuccess(t *testing.T) {
	fixture, router := newRouteFixture(t, "https://app.example.com/dashboard")
	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformGoogle)
	require.NoError(t, err)
	state := stateFromURL(t, authorizationURL).Get("state")

	other, err := fixture.store.CreateUser(context.Background(), "other@x.com", "hash", credentials.PlanNone)
	require.NoError(t, err)
	query := url.Values{"state": {state}, "code": {"code-1"}, "user_id": {other.ID}}
	response := serve(router, httptest.NewRequest(http.MethodGet, "/api/integrations/google/callback?"+query.Encode(), nil))

	require.Equal(t, http.StatusFound, response.Code)
	assert.Equal(t, "https://app.example.com/dashboard?linked=google", response.Header().Get("Location"))

	linked, err := fixture.store.MemoryStore.Get(context.Background(), fixture.userID)
	require.NoError(t, err)
	assert.True(t, linked.Google.Connected())
	untouched, err := fixture.store.MemoryStore.Get(context.Background(), other.ID)
	require.NoError(t, err)
	assert.False(t, untouched.Google.Connected(), "identity comes only from state")
}

func TestCallbackFailureRedirectsWithReason(t *testing.T) {
	testCases := []struct {
		name   string
		path   string
		reason string
	}{
		{name: "missing state", path: "/api/integrations/google/callback?code=abc", reason: "state_missing"},
		{name: "tampered state", path: "/api/integrations/google/callback?code=abc&state=not-a-token", reason: "state_invalid"},
		{name: "consent denied", path: "/api/integrations/x/callback?error=access_denied", reason: "consent_denied"},
		{name: "unknown platform", path: "/api/integrations/myspace/callback?code=abc", reason: "not_found"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fixture, router := newRouteFixture(t, "https://app.example.com")
			response := serve(router, httptest.NewRequest(http.MethodGet, testCase.path, nil))
			require.Equal(t, http.StatusFound, response.Code)
			location, err := url.Parse(response.Header().Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, "/integrations/error", location.Path)
			assert.Equal(t, testCase.reason, location.Query().Get("reason"))
			assert.Zero(t, fixture.store.calls())
		})
	}
}

func TestCallbackAcceptsJSONBody(t *testing.T) {
	fixture, router := newRouteFixture(t, "https://app.example.com")
	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformX)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{"state": stateFromURL(t, authorizationURL).Get("state"), "code": "code-x"})
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, "/api/integrations/x/callback", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	response := serve(router, request)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["connected"])
	assert.Equal(t, fixture.userID, payload["user_id"])
}

func TestCallbackAcceptsFormBody(t *testing.T) {
	fixture, router := newRouteFixture(t, "")
	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformGoogle)
	require.NoError(t, err)
	form := url.Values{"state": {stateFromURL(t, authorizationURL).Get("state")}, "code": {"code-1"}}

	request := httptest.NewRequest(http.MethodPost, "/api/integrations/google/callback", bytes.NewBufferString(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	response := serve(router, request)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
}

func TestCallbackJSONErrorHidesProviderBody(t *testing.T) {
	fixture, router := newRouteFixture(t, "")
	fixture.google.exchangeErr = errProviderDown
	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformGoogle)
	require.NoError(t, err)
	query := url.Values{"state": {stateFromURL(t, authorizationURL).Get("state")}, "code": {"code-1"}}

	response := serve(router, httptest.NewRequest(http.MethodGet, "/api/integrations/google/callback?"+query.Encode(), nil))
	require.Equal(t, http.StatusBadGateway, response.Code)
	assert.NotContains(t, response.Body.String(), errProviderDown.Error())
	assert.Zero(t, fixture.store.calls())
}
