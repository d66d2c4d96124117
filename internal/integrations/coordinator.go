// Package integrations drives the OAuth link flow for each supported platform:
// building the authorization URL, completing the callback and keeping tokens fresh.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/tyemirov/creatoros/internal/apierrors"
	"github.com/tyemirov/creatoros/internal/credentials"
	"github.com/tyemirov/creatoros/internal/metrics"
	"github.com/tyemirov/creatoros/internal/oauthstate"
)

// DefaultStateTTL bounds how long a user may stay on the provider consent page.
const DefaultStateTTL = 10 * time.Minute

const (
	metricLinkStarted   = "integrations.link.started"
	metricLinkCompleted = "integrations.link.completed"
	metricLinkFailed    = "integrations.link.failed"
	metricTokenRefresh  = "integrations.token.refreshed"
)

var (
	// ErrProviderNotConfigured indicates a supported platform without client credentials.
	ErrProviderNotConfigured = fmt.Errorf("integrations.provider_not_configured: %w", apierrors.ErrFeatureDisabled)
	// ErrConsentDenied indicates the provider redirected back with an error.
	ErrConsentDenied = fmt.Errorf("integrations.consent_denied: %w", apierrors.ErrConsentDenied)
	// ErrPlatformMismatch indicates a state minted for another platform's callback.
	ErrPlatformMismatch = fmt.Errorf("integrations.platform_mismatch: %w", apierrors.ErrInvalidState)
	// ErrMissingVerifier indicates a PKCE callback whose state carries no verifier.
	ErrMissingVerifier = fmt.Errorf("integrations.missing_verifier: %w", apierrors.ErrInvalidState)
	// ErrMissingCode indicates a callback without an authorization code.
	ErrMissingCode = fmt.Errorf("integrations.missing_code: %w", apierrors.ErrInvalidInput)
	// ErrProviderExchangeFailed indicates the token endpoint rejected the code or was unreachable.
	ErrProviderExchangeFailed = fmt.Errorf("integrations.exchange_failed: %w", apierrors.ErrProviderExchangeFailed)
	// ErrNotConnected indicates the user has no access token for the platform.
	ErrNotConnected = fmt.Errorf("integrations.not_connected: %w", apierrors.ErrNotFound)
	// ErrTokenRefreshFailed indicates the provider refused to refresh an expired token.
	ErrTokenRefreshFailed = fmt.Errorf("integrations.token_refresh_failed: %w", apierrors.ErrUpstreamFailed)

	errMissingStore = errors.New("integrations.coordinator.missing_store")
	errMissingCodec = errors.New("integrations.coordinator.missing_codec")
)

// StateCodec encodes and verifies state artifacts.
type StateCodec interface {
	Encode(payload oauthstate.Payload, ttl time.Duration) (string, error)
	Decode(token string) (oauthstate.Payload, error)
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// CoordinatorConfig wires the coordinator's collaborators.
type CoordinatorConfig struct {
	Store     credentials.CredentialStore
	Codec     StateCodec
	Providers []Provider
	StateTTL  time.Duration
	Clock     Clock
	Logger    *zap.Logger
	Metrics   metrics.Recorder
}

// CallbackParams carries what the provider echoed back on redirect.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Coordinator runs the link flow. It keeps no state between Begin and Complete;
// everything the callback needs travels inside the signed state.
type Coordinator struct {
	store     credentials.CredentialStore
	codec     StateCodec
	providers map[credentials.Platform]Provider
	stateTTL  time.Duration
	clock     Clock
	logger    *zap.Logger
	metrics   metrics.Recorder
}

// NewCoordinator validates the configuration and indexes providers by platform.
func NewCoordinator(configuration CoordinatorConfig) (*Coordinator, error) {
	if configuration.Store == nil {
		return nil, errMissingStore
	}
	if configuration.Codec == nil {
		return nil, errMissingCodec
	}
	providers := make(map[credentials.Platform]Provider, len(configuration.Providers))
	for _, provider := range configuration.Providers {
		if provider == nil {
			continue
		}
		providers[provider.Platform()] = provider
	}
	stateTTL := configuration.StateTTL
	if stateTTL <= 0 {
		stateTTL = DefaultStateTTL
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:     configuration.Store,
		codec:     configuration.Codec,
		providers: providers,
		stateTTL:  stateTTL,
		clock:     clock,
		logger:    logger,
		metrics:   metrics.OrNoop(configuration.Metrics),
	}, nil
}

// Provider returns the configured provider for platform.
func (coordinator *Coordinator) Provider(platform credentials.Platform) (Provider, error) {
	provider, ok := coordinator.providers[platform]
	if !ok {
		return nil, fmt.Errorf("integrations.provider.%s: %w", platform, ErrProviderNotConfigured)
	}
	return provider, nil
}

// Begin mints the state artifact and returns the provider authorization URL.
func (coordinator *Coordinator) Begin(ctx context.Context, userID string, platform credentials.Platform) (string, error) {
	provider, err := coordinator.Provider(platform)
	if err != nil {
		return "", err
	}
	payload := oauthstate.Payload{UserID: userID, Platform: platform}
	if provider.UsesPKCE() {
		payload.CodeVerifier = oauth2.GenerateVerifier()
	}
	state, err := coordinator.codec.Encode(payload, coordinator.stateTTL)
	if err != nil {
		return "", fmt.Errorf("integrations.begin.%s: %w", platform, err)
	}
	coordinator.metrics.Increment(metricLinkStarted)
	coordinator.logger.Info("link started",
		zap.String("code", "integrations.link.started"),
		zap.String("platform", string(platform)),
		zap.String("user_id", userID))
	return provider.AuthCodeURL(state, payload.CodeVerifier), nil
}

// Complete verifies the state, exchanges the code and persists the credential
// block for the user named in the state. It returns that user id.
func (coordinator *Coordinator) Complete(ctx context.Context, platform credentials.Platform, params CallbackParams) (string, error) {
	userID, err := coordinator.complete(ctx, platform, params)
	if err != nil {
		coordinator.metrics.Increment(metricLinkFailed)
		coordinator.logger.Warn("link failed",
			zap.String("code", "integrations.link.failed"),
			zap.String("platform", string(platform)),
			zap.String("reason", apierrors.Code(err)),
			zap.Error(err))
		return "", err
	}
	coordinator.metrics.Increment(metricLinkCompleted)
	coordinator.logger.Info("link completed",
		zap.String("code", "integrations.link.completed"),
		zap.String("platform", string(platform)),
		zap.String("user_id", userID))
	return userID, nil
}

func (coordinator *Coordinator) complete(ctx context.Context, platform credentials.Platform, params CallbackParams) (string, error) {
	if strings.TrimSpace(params.Error) != "" {
		coordinator.logger.Info("provider denied consent",
			zap.String("code", "integrations.consent.denied"),
			zap.String("platform", string(platform)),
			zap.String("provider_error", params.Error),
			zap.String("provider_error_description", params.ErrorDescription))
		return "", fmt.Errorf("integrations.complete.%s.%s: %w", platform, params.Error, ErrConsentDenied)
	}
	provider, err := coordinator.Provider(platform)
	if err != nil {
		return "", err
	}

	payload, err := coordinator.codec.Decode(params.State)
	if err != nil {
		return "", fmt.Errorf("integrations.complete.%s: %w", platform, err)
	}
	if payload.Platform != platform {
		return "", fmt.Errorf("integrations.complete.%s: %w", platform, ErrPlatformMismatch)
	}
	if provider.UsesPKCE() && payload.CodeVerifier == "" {
		return "", fmt.Errorf("integrations.complete.%s: %w", platform, ErrMissingVerifier)
	}
	if strings.TrimSpace(params.Code) == "" {
		return "", fmt.Errorf("integrations.complete.%s: %w", platform, ErrMissingCode)
	}

	token, err := provider.Exchange(ctx, params.Code, payload.CodeVerifier)
	if err != nil {
		coordinator.logExchangeFailure(platform, err)
		return "", fmt.Errorf("integrations.complete.%s.exchange: %w", platform, ErrProviderExchangeFailed)
	}
	if token == nil || token.AccessToken == "" {
		return "", fmt.Errorf("integrations.complete.%s.empty_token: %w", platform, ErrProviderExchangeFailed)
	}

	profile, profileErr := provider.FetchProfile(ctx, token)
	if profileErr != nil {
		coordinator.logger.Warn("profile fetch failed, storing tokens without profile",
			zap.String("code", "integrations.profile.failed"),
			zap.String("platform", string(platform)),
			zap.Error(profileErr))
		profile = credentials.Profile{}
	}

	connectedAt := coordinator.clock.Now().UTC()
	credential := credentials.PlatformCredential{
		AccessToken:  credentials.StringPointer(token.AccessToken),
		RefreshToken: credentials.StringPointer(token.RefreshToken),
		Expiry:       credentials.TimePointer(token.Expiry),
		Profile:      profile,
		ConnectedAt:  &connectedAt,
	}
	if err := coordinator.store.SetCredential(ctx, payload.UserID, platform, credential); err != nil {
		return "", fmt.Errorf("integrations.complete.%s.persist: %w", platform, err)
	}
	return payload.UserID, nil
}

// logExchangeFailure keeps the provider's response body in server logs only.
func (coordinator *Coordinator) logExchangeFailure(platform credentials.Platform, err error) {
	fields := []zap.Field{
		zap.String("code", "integrations.exchange.failed"),
		zap.String("platform", string(platform)),
		zap.Error(err),
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		fields = append(fields, zap.ByteString("provider_body", retrieveErr.Body))
		if retrieveErr.Response != nil {
			fields = append(fields, zap.Int("provider_status", retrieveErr.Response.StatusCode))
		}
		if retrieveErr.ErrorCode != "" {
			fields = append(fields, zap.String("provider_error", retrieveErr.ErrorCode))
		}
	}
	coordinator.logger.Warn("token exchange failed", fields...)
}

// Disconnect resets the platform block to its empty state.
func (coordinator *Coordinator) Disconnect(ctx context.Context, userID string, platform credentials.Platform) error {
	if err := coordinator.store.ClearCredential(ctx, userID, platform); err != nil {
		return fmt.Errorf("integrations.disconnect.%s: %w", platform, err)
	}
	coordinator.logger.Info("platform disconnected",
		zap.String("code", "integrations.disconnected"),
		zap.String("platform", string(platform)),
		zap.String("user_id", userID))
	return nil
}

// AuthorizedClient returns an HTTP client for calling the platform API on the
// user's behalf. Refreshed tokens are written back to the store.
func (coordinator *Coordinator) AuthorizedClient(ctx context.Context, user credentials.User, platform credentials.Platform) (*http.Client, error) {
	provider, err := coordinator.Provider(platform)
	if err != nil {
		return nil, err
	}
	credential := user.Credential(platform)
	if !credential.Connected() {
		return nil, fmt.Errorf("integrations.authorized_client.%s: %w", platform, ErrNotConnected)
	}
	token := &oauth2.Token{AccessToken: *credential.AccessToken}
	if credential.RefreshToken != nil {
		token.RefreshToken = *credential.RefreshToken
	}
	if credential.Expiry != nil {
		token.Expiry = *credential.Expiry
	}
	source := &persistingTokenSource{
		coordinator: coordinator,
		base:        provider.TokenSource(ctx, token),
		userID:      user.ID,
		platform:    platform,
		credential:  credential,
		ctx:         ctx,
	}
	return oauth2.NewClient(ctx, source), nil
}

// persistingTokenSource stores a refreshed token as a full block replace that
// keeps the profile and connection time.
type persistingTokenSource struct {
	coordinator *Coordinator
	base        oauth2.TokenSource
	userID      string
	platform    credentials.Platform
	ctx         context.Context

	mutex      sync.Mutex
	credential credentials.PlatformCredential
}

func (source *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := source.base.Token()
	if err != nil {
		source.coordinator.logger.Warn("token refresh failed",
			zap.String("code", "integrations.token.refresh_failed"),
			zap.String("platform", string(source.platform)),
			zap.Error(err))
		return nil, fmt.Errorf("integrations.token.%s: %w", source.platform, ErrTokenRefreshFailed)
	}

	source.mutex.Lock()
	defer source.mutex.Unlock()
	if source.credential.AccessToken != nil && *source.credential.AccessToken == token.AccessToken {
		return token, nil
	}
	refreshed := source.credential
	refreshed.AccessToken = credentials.StringPointer(token.AccessToken)
	if token.RefreshToken != "" {
		refreshed.RefreshToken = credentials.StringPointer(token.RefreshToken)
	}
	refreshed.Expiry = credentials.TimePointer(token.Expiry)
	if persistErr := source.coordinator.store.SetCredential(source.ctx, source.userID, source.platform, refreshed); persistErr != nil {
		source.coordinator.logger.Warn("refreshed token not persisted",
			zap.String("code", "integrations.token.persist_failed"),
			zap.String("platform", string(source.platform)),
			zap.Error(persistErr))
		return token, nil
	}
	source.credential = refreshed
	source.coordinator.metrics.Increment(metricTokenRefresh)
	return token, nil
}
