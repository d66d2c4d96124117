package integrations

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/oauth2"

	"github.com/tyemirov/creatoros/internal/apierrors"
	"github.com/tyemirov/creatoros/internal/credentials"
	"github.com/tyemirov/creatoros/internal/metrics"
	"github.com/tyemirov/creatoros/internal/oauthstate"
)

type coordinatorFixture struct {
	coordinator *Coordinator
	store       *recordingStore
	codec       *countingCodec
	google      *fakeProvider
	x           *fakeProvider
	counters    *metrics.CounterMetrics
	userID      string
}

func newCoordinatorFixture(t *testing.T) coordinatorFixture {
	t.Helper()
	store := newRecordingStore()
	user, err := store.CreateUser(context.Background(), "a@x.com", "hash", credentials.PlanNone)
	require.NoError(t, err)

	google := &fakeProvider{
		platform: credentials.PlatformGoogle,
		token:    &oauth2.Token{AccessToken: "T1", RefreshToken: "R1", Expiry: time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)},
		profile:  credentials.Profile{ExternalID: "UC1", DisplayName: "Channel", Handle: "@channel"},
	}
	x := &fakeProvider{
		platform: credentials.PlatformX,
		pkce:     true,
		token:    &oauth2.Token{AccessToken: "X1", RefreshToken: "XR1"},
		profile:  credentials.Profile{ExternalID: "42", DisplayName: "Creator", Handle: "creator"},
	}
	codec := newTestCodec(t)
	counters := metrics.NewCounterMetrics()
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:     store,
		Codec:     codec,
		Providers: []Provider{google, x},
		Clock:     fixedClock{current: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		Logger:    zaptest.NewLogger(t),
		Metrics:   counters,
	})
	require.NoError(t, err)
	store.gets, store.sets, store.clears = 0, 0, 0
	return coordinatorFixture{
		coordinator: coordinator,
		store:       store,
		codec:       codec,
		google:      google,
		x:           x,
		counters:    counters,
		userID:      user.ID,
	}
}

func stateFromURL(t *testing.T, authorizationURL string) url.Values {
	t.Helper()
	parsed, err := url.Parse(authorizationURL)
	require.NoError(t, err)
	return parsed.Query()
}

func TestNewCoordinatorRequiresCollaborators(t *testing.T) {
	_, err := NewCoordinator(CoordinatorConfig{Codec: newTestCodec(t)})
	require.Error(t, err)
	_, err = NewCoordinator(CoordinatorConfig{Store: newRecordingStore()})
	require.Error(t, err)
}

func TestBeginBuildsStateBoundURL(t *testing.T) {
	fixture := newCoordinatorFixture(t)

	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformGoogle)
	require.NoError(t, err)
	query := stateFromURL(t, authorizationURL)
	require.NotEmpty(t, query.Get("state"))
	assert.Empty(t, query.Get("code_challenge"), "google flow does not use PKCE")

	payload, err := fixture.codec.Codec.Decode(query.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, oauthstate.Payload{UserID: fixture.userID, Platform: credentials.PlatformGoogle}, payload)
	assert.Zero(t, fixture.store.calls(), "begin must not touch the store")
	assert.Equal(t, int64(1), fixture.counters.Count(metricLinkStarted))
}

func TestBeginEmbedsVerifierMatchingChallenge(t *testing.T) {
	fixture := newCoordinatorFixture(t)

	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformX)
	require.NoError(t, err)
	query := stateFromURL(t, authorizationURL)
	assert.Equal(t, "S256", query.Get("code_challenge_method"))

	payload, err := fixture.codec.Codec.Decode(query.Get("state"))
	require.NoError(t, err)
	require.NotEmpty(t, payload.CodeVerifier)
	digest := sha256.Sum256([]byte(payload.CodeVerifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(digest[:]), query.Get("code_challenge"))
}

func TestBeginRejectsUnconfiguredProvider(t *testing.T) {
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: newRecordingStore(), Codec: newTestCodec(t)})
	require.NoError(t, err)
	_, err = coordinator.Begin(context.Background(), "user", credentials.PlatformX)
	require.ErrorIs(t, err, ErrProviderNotConfigured)
	assert.Equal(t, 503, apierrors.Status(err))
}

func TestCompletePersistsExchangedTokens(t *testing.T) {
	fixture := newCoordinatorFixture(t)
	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformGoogle)
	require.NoError(t, err)
	state := stateFromURL(t, authorizationURL).Get("state")

	userID, err := fixture.coordinator.Complete(context.Background(), credentials.PlatformGoogle, CallbackParams{Code: "code-1", State: state})
	require.NoError(t, err)
	assert.Equal(t, fixture.userID, userID)

	user, err := fixture.store.MemoryStore.Get(context.Background(), fixture.userID)
	require.NoError(t, err)
	require.True(t, user.Google.Connected())
	assert.Equal(t, "T1", *user.Google.AccessToken)
	assert.Equal(t, "R1", *user.Google.RefreshToken)
	assert.Equal(t, "@channel", user.Google.Profile.Handle)
	require.NotNil(t, user.Google.ConnectedAt)
	assert.True(t, user.Google.ConnectedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, user.X.Connected())
	assert.Equal(t, int64(1), fixture.counters.Count(metricLinkCompleted))
}

func TestCompleteCarriesVerifierToExchange(t *testing.T) {
	fixture := newCoordinatorFixture(t)
	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformX)
	require.NoError(t, err)
	state := stateFromURL(t, authorizationURL).Get("state")
	payload, err := fixture.codec.Codec.Decode(state)
	require.NoError(t, err)

	_, err = fixture.coordinator.Complete(context.Background(), credentials.PlatformX, CallbackParams{Code: "code-x", State: state})
	require.NoError(t, err)

	calls := fixture.x.exchangeCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, exchangeCall{code: "code-x", verifier: payload.CodeVerifier}, calls[0])
}

func TestCompleteFailuresNeverWrite(t *testing.T) {
	validState := func(t *testing.T, fixture coordinatorFixture, platform credentials.Platform) string {
		authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, platform)
		require.NoError(t, err)
		return stateFromURL(t, authorizationURL).Get("state")
	}

	testCases := []struct {
		name           string
		platform       credentials.Platform
		params         func(t *testing.T, fixture coordinatorFixture) CallbackParams
		prepare        func(fixture coordinatorFixture)
		expectErr      error
		expectStatus   int
		expectExchange int
		expectDecode   int
	}{
		{
			name:     "missing state",
			platform: credentials.PlatformGoogle,
			params: func(t *testing.T, fixture coordinatorFixture) CallbackParams {
				return CallbackParams{Code: "code"}
			},
			expectErr:    oauthstate.ErrMissingState,
			expectStatus: 401,
			expectDecode: 1,
		},
		{
			name:     "tampered state",
			platform: credentials.PlatformGoogle,
			params: func(t *testing.T, fixture coordinatorFixture) CallbackParams {
				state := validState(t, fixture, credentials.PlatformGoogle)
				return CallbackParams{Code: "code", State: state + "x"}
			},
			expectErr:    oauthstate.ErrInvalidState,
			expectStatus: 401,
			expectDecode: 1,
		},
		{
			name:     "consent denied",
			platform: credentials.PlatformGoogle,
			params: func(t *testing.T, fixture coordinatorFixture) CallbackParams {
				return CallbackParams{Error: "access_denied", State: validState(t, fixture, credentials.PlatformGoogle)}
			},
			expectErr:    ErrConsentDenied,
			expectStatus: 403,
		},
		{
			name:     "state for other platform",
			platform: credentials.PlatformX,
			params: func(t *testing.T, fixture coordinatorFixture) CallbackParams {
				return CallbackParams{Code: "code", State: validState(t, fixture, credentials.PlatformGoogle)}
			},
			expectErr:    ErrPlatformMismatch,
			expectStatus: 401,
			expectDecode: 1,
		},
		{
			name:     "missing code",
			platform: credentials.PlatformGoogle,
			params: func(t *testing.T, fixture coordinatorFixture) CallbackParams {
				return CallbackParams{State: validState(t, fixture, credentials.PlatformGoogle)}
			},
			expectErr:    ErrMissingCode,
			expectStatus: 400,
			expectDecode: 1,
		},
		{
			name:     "exchange failure",
			platform: credentials.PlatformGoogle,
			params: func(t *testing.T, fixture coordinatorFixture) CallbackParams {
				return CallbackParams{Code: "code", State: validState(t, fixture, credentials.PlatformGoogle)}
			},
			prepare: func(fixture coordinatorFixture) {
				fixture.google.exchangeErr = &oauth2.RetrieveError{ErrorCode: "invalid_grant", Body: []byte("provider-secret-body")}
			},
			expectErr:      ErrProviderExchangeFailed,
			expectStatus:   502,
			expectExchange: 1,
			expectDecode:   1,
		},
		{
			name:     "empty access token",
			platform: credentials.PlatformGoogle,
			params: func(t *testing.T, fixture coordinatorFixture) CallbackParams {
				return CallbackParams{Code: "code", State: validState(t, fixture, credentials.PlatformGoogle)}
			},
			prepare: func(fixture coordinatorFixture) {
				fixture.google.token = &oauth2.Token{}
			},
			expectErr:      ErrProviderExchangeFailed,
			expectStatus:   502,
			expectExchange: 1,
			expectDecode:   1,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newCoordinatorFixture(t)
			if testCase.prepare != nil {
				testCase.prepare(fixture)
			}
			params := testCase.params(t, fixture)

			_, err := fixture.coordinator.Complete(context.Background(), testCase.platform, params)
			require.ErrorIs(t, err, testCase.expectErr)
			assert.Equal(t, testCase.expectStatus, apierrors.Status(err))
			assert.Zero(t, fixture.store.calls(), "failed callbacks must not touch the store")
			assert.Equal(t, testCase.expectExchange, len(fixture.google.exchangeCalls())+len(fixture.x.exchangeCalls()))
			assert.Equal(t, testCase.expectDecode, fixture.codec.decodes)
			assert.Equal(t, int64(1), fixture.counters.Count(metricLinkFailed))
		})
	}
}

func TestCompleteStoresTokensWhenProfileFails(t *testing.T) {
	fixture := newCoordinatorFixture(t)
	fixture.google.profileErr = errors.New("youtube quota exceeded")
	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformGoogle)
	require.NoError(t, err)

	_, err = fixture.coordinator.Complete(context.Background(), credentials.PlatformGoogle, CallbackParams{Code: "code", State: stateFromURL(t, authorizationURL).Get("state")})
	require.NoError(t, err)

	user, err := fixture.store.MemoryStore.Get(context.Background(), fixture.userID)
	require.NoError(t, err)
	require.True(t, user.Google.Connected())
	assert.True(t, user.Google.Profile.IsZero())
}

func TestCompleteReplayFailsAtProvider(t *testing.T) {
	fixture := newCoordinatorFixture(t)
	fixture.google.singleUse = true
	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformGoogle)
	require.NoError(t, err)
	params := CallbackParams{Code: "code", State: stateFromURL(t, authorizationURL).Get("state")}

	_, err = fixture.coordinator.Complete(context.Background(), credentials.PlatformGoogle, params)
	require.NoError(t, err)
	_, err = fixture.coordinator.Complete(context.Background(), credentials.PlatformGoogle, params)
	require.ErrorIs(t, err, ErrProviderExchangeFailed)
	assert.Len(t, fixture.google.exchangeCalls(), 2, "replays are not retried")
}

func TestCompleteUnknownUserSurfacesNotFound(t *testing.T) {
	fixture := newCoordinatorFixture(t)
	state, err := fixture.codec.Encode(oauthstate.Payload{UserID: "deleted-user", Platform: credentials.PlatformGoogle}, time.Minute)
	require.NoError(t, err)

	_, err = fixture.coordinator.Complete(context.Background(), credentials.PlatformGoogle, CallbackParams{Code: "code", State: state})
	require.ErrorIs(t, err, credentials.ErrUserNotFound)
	assert.Equal(t, 404, apierrors.Status(err))
}

func TestCompleteStoreUnavailable(t *testing.T) {
	fixture := newCoordinatorFixture(t)
	fixture.store.setError = credentials.ErrStoreUnavailable
	authorizationURL, err := fixture.coordinator.Begin(context.Background(), fixture.userID, credentials.PlatformGoogle)
	require.NoError(t, err)

	_, err = fixture.coordinator.Complete(context.Background(), credentials.PlatformGoogle, CallbackParams{Code: "code", State: stateFromURL(t, authorizationURL).Get("state")})
	assert.Equal(t, 503, apierrors.Status(err))
}

func TestDisconnectLeavesOtherPlatform(t *testing.T) {
	fixture := newCoordinatorFixture(t)
	ctx := context.Background()
	for _, platform := range []credentials.Platform{credentials.PlatformGoogle, credentials.PlatformX} {
		authorizationURL, err := fixture.coordinator.Begin(ctx, fixture.userID, platform)
		require.NoError(t, err)
		_, err = fixture.coordinator.Complete(ctx, platform, CallbackParams{Code: "code", State: stateFromURL(t, authorizationURL).Get("state")})
		require.NoError(t, err)
	}

	require.NoError(t, fixture.coordinator.Disconnect(ctx, fixture.userID, credentials.PlatformGoogle))
	user, err := fixture.store.MemoryStore.Get(ctx, fixture.userID)
	require.NoError(t, err)
	assert.Equal(t, credentials.PlatformCredential{}, user.Google)
	assert.True(t, user.X.Connected())
}

func TestCompleteLogsProviderErrorDescription(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	store := newRecordingStore()
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:     store,
		Codec:     newTestCodec(t),
		Providers: []Provider{&fakeProvider{platform: credentials.PlatformX, pkce: true}},
		Logger:    zap.New(core),
	})
	require.NoError(t, err)

	_, err = coordinator.Complete(context.Background(), credentials.PlatformX, CallbackParams{
		Error:            "access_denied",
		ErrorDescription: "The user cancelled the authorization",
	})
	require.ErrorIs(t, err, ErrConsentDenied)

	denied := logs.FilterField(zap.String("code", "integrations.consent.denied")).All()
	require.Len(t, denied, 1)
	fields := denied[0].ContextMap()
	assert.Equal(t, "access_denied", fields["provider_error"])
	assert.Equal(t, "The user cancelled the authorization", fields["provider_error_description"])
	assert.Zero(t, store.calls())
}
