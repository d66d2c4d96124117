package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/youtube/v3"

	"github.com/tyemirov/creatoros/internal/credentials"
	"github.com/tyemirov/creatoros/internal/integrations"
)

var errNoChannel = errors.New("analysis.youtube.no_channel")

// ClientSource hands out HTTP clients authorised as the user on a platform.
type ClientSource interface {
	AuthorizedClient(ctx context.Context, user credentials.User, platform credentials.Platform) (*http.Client, error)
}

// YouTubeServiceFactory builds YouTube Data API clients.
type YouTubeServiceFactory interface {
	YouTubeService(ctx context.Context, httpClient *http.Client) (*youtube.Service, error)
}

// XUserFetcher reads the X users/me payload.
type XUserFetcher interface {
	FetchUser(ctx context.Context, httpClient *http.Client) (integrations.XUser, error)
}

func fetchYouTubeStats(ctx context.Context, clients ClientSource, factory YouTubeServiceFactory, user credentials.User) (*YouTubeStats, error) {
	httpClient, err := clients.AuthorizedClient(ctx, user, credentials.PlatformGoogle)
	if err != nil {
		return nil, fmt.Errorf("analysis.youtube.client: %w", err)
	}
	service, err := factory.YouTubeService(ctx, httpClient)
	if err != nil {
		return nil, err
	}
	response, err := service.Channels.List([]string{"snippet", "statistics"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("analysis.youtube.channels: %w", err)
	}
	if len(response.Items) == 0 {
		return nil, errNoChannel
	}
	channel := response.Items[0]
	stats := &YouTubeStats{}
	if channel.Snippet != nil {
		stats.Title = channel.Snippet.Title
		stats.Description = channel.Snippet.Description
	}
	if channel.Statistics != nil {
		stats.Subscribers = channel.Statistics.SubscriberCount
		stats.Videos = channel.Statistics.VideoCount
		stats.Views = channel.Statistics.ViewCount
	}
	return stats, nil
}

func fetchXStats(ctx context.Context, clients ClientSource, fetcher XUserFetcher, user credentials.User) (*XStats, error) {
	httpClient, err := clients.AuthorizedClient(ctx, user, credentials.PlatformX)
	if err != nil {
		return nil, fmt.Errorf("analysis.x.client: %w", err)
	}
	account, err := fetcher.FetchUser(ctx, httpClient)
	if err != nil {
		return nil, err
	}
	return &XStats{
		Username:    account.Username,
		Description: account.Description,
		Followers:   account.PublicMetrics.FollowersCount,
		Following:   account.PublicMetrics.FollowingCount,
		Tweets:      account.PublicMetrics.TweetCount,
	}, nil
}
