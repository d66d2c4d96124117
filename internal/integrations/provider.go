package integrations

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tyemirov/creatoros/internal/credentials"
)

// Provider hides the per-platform OAuth2 details from the coordinator.
type Provider interface {
	Platform() credentials.Platform
	// UsesPKCE reports whether the flow needs a code verifier carried in state.
	UsesPKCE() bool
	AuthCodeURL(state string, verifier string) string
	Exchange(ctx context.Context, code string, verifier string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (credentials.Profile, error)
	// TokenSource refreshes token when it expires.
	TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource
}

// oauthProvider implements the parts shared by every authorization-code provider.
type oauthProvider struct {
	platform    credentials.Platform
	config      *oauth2.Config
	pkce        bool
	authOptions []oauth2.AuthCodeOption
	httpClient  *http.Client
}

func (provider *oauthProvider) Platform() credentials.Platform {
	return provider.platform
}

func (provider *oauthProvider) UsesPKCE() bool {
	return provider.pkce
}

func (provider *oauthProvider) AuthCodeURL(state string, verifier string) string {
	options := append([]oauth2.AuthCodeOption{}, provider.authOptions...)
	if provider.pkce {
		options = append(options, oauth2.S256ChallengeOption(verifier))
	}
	return provider.config.AuthCodeURL(state, options...)
}

func (provider *oauthProvider) Exchange(ctx context.Context, code string, verifier string) (*oauth2.Token, error) {
	var options []oauth2.AuthCodeOption
	if provider.pkce {
		options = append(options, oauth2.VerifierOption(verifier))
	}
	return provider.config.Exchange(provider.withClient(ctx), code, options...)
}

func (provider *oauthProvider) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return provider.config.TokenSource(provider.withClient(ctx), token)
}

// authorizedClient returns an HTTP client that attaches token to every request.
func (provider *oauthProvider) authorizedClient(ctx context.Context, token *oauth2.Token) *http.Client {
	return oauth2.NewClient(provider.withClient(ctx), oauth2.StaticTokenSource(token))
}

// withClient makes the oauth2 package use the configured transport.
func (provider *oauthProvider) withClient(ctx context.Context) context.Context {
	if provider.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, provider.httpClient)
}
