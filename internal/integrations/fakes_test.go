package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/tyemirov/creatoros/internal/credentials"
	"github.com/tyemirov/creatoros/internal/oauthstate"
)

type fixedClock struct {
	current time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.current
}

// recordingStore wraps a MemoryStore and counts every call.
type recordingStore struct {
	*credentials.MemoryStore
	mutex    sync.Mutex
	gets     int
	sets     int
	clears   int
	setError error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: credentials.NewMemoryStore()}
}

func (store *recordingStore) Get(ctx context.Context, userID string) (credentials.User, error) {
	store.mutex.Lock()
	store.gets++
	store.mutex.Unlock()
	return store.MemoryStore.Get(ctx, userID)
}

func (store *recordingStore) SetCredential(ctx context.Context, userID string, platform credentials.Platform, credential credentials.PlatformCredential) error {
	store.mutex.Lock()
	store.sets++
	setError := store.setError
	store.mutex.Unlock()
	if setError != nil {
		return setError
	}
	return store.MemoryStore.SetCredential(ctx, userID, platform, credential)
}

func (store *recordingStore) ClearCredential(ctx context.Context, userID string, platform credentials.Platform) error {
	store.mutex.Lock()
	store.clears++
	store.mutex.Unlock()
	return store.MemoryStore.ClearCredential(ctx, userID, platform)
}

func (store *recordingStore) calls() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.gets + store.sets + store.clears
}

// fakeProvider scripts the provider side of the flow.
type fakeProvider struct {
	platform     credentials.Platform
	pkce         bool
	token        *oauth2.Token
	exchangeErr  error
	profile      credentials.Profile
	profileErr   error
	mutex        sync.Mutex
	exchanges    []exchangeCall
	usedCodes    map[string]bool
	singleUse    bool
	tokenSources int
}

type exchangeCall struct {
	code     string
	verifier string
}

func (provider *fakeProvider) Platform() credentials.Platform {
	return provider.platform
}

func (provider *fakeProvider) UsesPKCE() bool {
	return provider.pkce
}

func (provider *fakeProvider) AuthCodeURL(state string, verifier string) string {
	config := oauth2.Config{ClientID: "client", Endpoint: oauth2.Endpoint{AuthURL: "https://provider.example.com/authorize"}}
	if provider.pkce {
		return config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	}
	return config.AuthCodeURL(state)
}

func (provider *fakeProvider) Exchange(ctx context.Context, code string, verifier string) (*oauth2.Token, error) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	provider.exchanges = append(provider.exchanges, exchangeCall{code: code, verifier: verifier})
	if provider.exchangeErr != nil {
		return nil, provider.exchangeErr
	}
	if provider.singleUse {
		if provider.usedCodes == nil {
			provider.usedCodes = make(map[string]bool)
		}
		if provider.usedCodes[code] {
			return nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant", Body: []byte(`{"error":"invalid_grant"}`)}
		}
		provider.usedCodes[code] = true
	}
	return provider.token, nil
}

func (provider *fakeProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (credentials.Profile, error) {
	return provider.profile, provider.profileErr
}

func (provider *fakeProvider) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	provider.mutex.Lock()
	provider.tokenSources++
	provider.mutex.Unlock()
	return oauth2.StaticTokenSource(token)
}

func (provider *fakeProvider) exchangeCalls() []exchangeCall {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return append([]exchangeCall(nil), provider.exchanges...)
}

// countingCodec records whether Decode was attempted.
type countingCodec struct {
	*oauthstate.Codec
	mutex   sync.Mutex
	decodes int
}

func (codec *countingCodec) Decode(token string) (oauthstate.Payload, error) {
	codec.mutex.Lock()
	codec.decodes++
	codec.mutex.Unlock()
	return codec.Codec.Decode(token)
}

func newTestCodec(t *testing.T) *countingCodec {
	t.Helper()
	codec, err := oauthstate.NewCodec(oauthstate.Config{Secret: []byte("integration-secret"), Issuer: "creatoros"})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	return &countingCodec{Codec: codec}
}

func newTokenServer(t *testing.T, handler func(writer http.ResponseWriter, request *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	return server
}

func writeTokenJSON(writer http.ResponseWriter, payload map[string]any) {
	writer.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(writer).Encode(payload)
}

var errProviderDown = errors.New("provider unreachable")
