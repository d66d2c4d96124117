package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/tyemirov/creatoros/internal/credentials"
)

// Google scopes grant read access to channel data and analytics.
var googleScopes = []string{
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/yt-analytics.readonly",
}

var errNoChannel = errors.New("integrations.google.profile.no_channel")

// GoogleConfig configures the Google/YouTube provider. Empty endpoint fields
// fall back to Google's production endpoints.
type GoogleConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	AuthURL       string
	TokenURL      string
	YouTubeAPIURL string
	HTTPClient    *http.Client
}

// GoogleProvider links YouTube channels with a plain authorization-code flow.
type GoogleProvider struct {
	oauthProvider
	youtubeEndpoint string
}

// NewGoogleProvider builds the provider. Refresh tokens are requested with
// access_type=offline and prompt=consent so every link yields one.
func NewGoogleProvider(configuration GoogleConfig) *GoogleProvider {
	endpoint := google.Endpoint
	if configuration.AuthURL != "" {
		endpoint.AuthURL = configuration.AuthURL
	}
	if configuration.TokenURL != "" {
		endpoint.TokenURL = configuration.TokenURL
	}
	return &GoogleProvider{
		oauthProvider: oauthProvider{
			platform: credentials.PlatformGoogle,
			config: &oauth2.Config{
				ClientID:     configuration.ClientID,
				ClientSecret: configuration.ClientSecret,
				RedirectURL:  configuration.RedirectURL,
				Endpoint:     endpoint,
				Scopes:       googleScopes,
			},
			authOptions: []oauth2.AuthCodeOption{
				oauth2.AccessTypeOffline,
				oauth2.SetAuthURLParam("prompt", "consent"),
			},
			httpClient: configuration.HTTPClient,
		},
		youtubeEndpoint: strings.TrimSpace(configuration.YouTubeAPIURL),
	}
}

// YouTubeService returns a YouTube Data API client authorised by httpClient.
func (provider *GoogleProvider) YouTubeService(ctx context.Context, httpClient *http.Client) (*youtube.Service, error) {
	options := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if provider.youtubeEndpoint != "" {
		options = append(options, option.WithEndpoint(provider.youtubeEndpoint))
	}
	service, err := youtube.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("integrations.google.youtube_service: %w", err)
	}
	return service, nil
}

// FetchProfile reads the authenticated user's own channel.
func (provider *GoogleProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (credentials.Profile, error) {
	service, err := provider.YouTubeService(ctx, provider.authorizedClient(ctx, token))
	if err != nil {
		return credentials.Profile{}, err
	}
	response, err := service.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return credentials.Profile{}, fmt.Errorf("integrations.google.profile: %w", err)
	}
	if len(response.Items) == 0 || response.Items[0].Snippet == nil {
		return credentials.Profile{}, fmt.Errorf("integrations.google.profile: %w", errNoChannel)
	}
	channel := response.Items[0]
	profile := credentials.Profile{
		ExternalID:  channel.Id,
		DisplayName: channel.Snippet.Title,
		Handle:      channel.Snippet.CustomUrl,
	}
	if thumbnails := channel.Snippet.Thumbnails; thumbnails != nil && thumbnails.Default != nil {
		profile.AvatarURL = thumbnails.Default.Url
	}
	return profile, nil
}
