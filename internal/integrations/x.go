package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/tyemirov/creatoros/internal/credentials"
)

const (
	defaultXAuthURL  = "https://twitter.com/i/oauth2/authorize"
	defaultXTokenURL = "https://api.twitter.com/2/oauth2/token"
	defaultXAPIURL   = "https://api.twitter.com"
)

var xScopes = []string{"tweet.read", "users.read", "offline.access"}

var errEmptyXUser = errors.New("integrations.x.users_me.empty_user")

// XConfig configures the X provider. Empty endpoint fields fall back to the
// production endpoints.
type XConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	HTTPClient   *http.Client
}

// XProvider links X accounts with an authorization-code + PKCE (S256) flow.
type XProvider struct {
	oauthProvider
	apiBaseURL string
}

// XUser is the subset of the users/me payload the service reads.
type XUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	PublicMetrics   struct {
		FollowersCount int64 `json:"followers_count"`
		FollowingCount int64 `json:"following_count"`
		TweetCount     int64 `json:"tweet_count"`
		ListedCount    int64 `json:"listed_count"`
	} `json:"public_metrics"`
}

// NewXProvider builds the provider. The client secret travels in the basic
// auth header of token requests.
func NewXProvider(configuration XConfig) *XProvider {
	authURL := firstNonEmpty(configuration.AuthURL, defaultXAuthURL)
	tokenURL := firstNonEmpty(configuration.TokenURL, defaultXTokenURL)
	return &XProvider{
		oauthProvider: oauthProvider{
			platform: credentials.PlatformX,
			config: &oauth2.Config{
				ClientID:     configuration.ClientID,
				ClientSecret: configuration.ClientSecret,
				RedirectURL:  configuration.RedirectURL,
				Endpoint: oauth2.Endpoint{
					AuthURL:   authURL,
					TokenURL:  tokenURL,
					AuthStyle: oauth2.AuthStyleInHeader,
				},
				Scopes: xScopes,
			},
			pkce:       true,
			httpClient: configuration.HTTPClient,
		},
		apiBaseURL: strings.TrimRight(firstNonEmpty(configuration.APIBaseURL, defaultXAPIURL), "/"),
	}
}

// FetchProfile reads the authenticated account from users/me.
func (provider *XProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (credentials.Profile, error) {
	user, err := provider.FetchUser(ctx, provider.authorizedClient(ctx, token))
	if err != nil {
		return credentials.Profile{}, err
	}
	return credentials.Profile{
		ExternalID:  user.ID,
		DisplayName: user.Name,
		Handle:      user.Username,
		AvatarURL:   user.ProfileImageURL,
	}, nil
}

// FetchUser calls users/me with profile and public metric fields.
func (provider *XProvider) FetchUser(ctx context.Context, httpClient *http.Client) (XUser, error) {
	endpoint := provider.apiBaseURL + "/2/users/me?user.fields=description,profile_image_url,public_metrics"
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return XUser{}, fmt.Errorf("integrations.x.users_me.request: %w", err)
	}
	response, err := httpClient.Do(request)
	if err != nil {
		return XUser{}, fmt.Errorf("integrations.x.users_me: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return XUser{}, fmt.Errorf("integrations.x.users_me.status_%d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	var envelope struct {
		Data XUser `json:"data"`
	}
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return XUser{}, fmt.Errorf("integrations.x.users_me.decode: %w", err)
	}
	if envelope.Data.ID == "" {
		return XUser{}, errEmptyXUser
	}
	return envelope.Data, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
