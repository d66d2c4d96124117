// Package analysis turns a user's linked-platform statistics into an
// LLM-generated growth roadmap.
package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tyemirov/creatoros/internal/apierrors"
	"github.com/tyemirov/creatoros/internal/credentials"
	"github.com/tyemirov/creatoros/internal/metrics"
)

const (
	metricRoadmapSuccess = "analysis.roadmap.success"
	metricRoadmapFailure = "analysis.roadmap.failure"
	metricStatsFailure   = "analysis.stats.failure"
)

// ErrAnalysisDisabled indicates no language model is configured.
var ErrAnalysisDisabled = fmt.Errorf("analysis.disabled: %w", apierrors.ErrFeatureDisabled)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ServiceConfig wires the roadmap service. YouTube and X may be nil when the
// platform is not configured; the platform then renders as not connected.
type ServiceConfig struct {
	Store     credentials.CredentialStore
	Clients   ClientSource
	YouTube   YouTubeServiceFactory
	X         XUserFetcher
	Generator Generator
	Logger    *zap.Logger
	Metrics   metrics.Recorder
}

// Service assembles prompts and calls the generator.
type Service struct {
	store     credentials.CredentialStore
	clients   ClientSource
	youtube   YouTubeServiceFactory
	x         XUserFetcher
	generator Generator
	logger    *zap.Logger
	metrics   metrics.Recorder
}

// NewService constructs the service. A nil Generator yields a service whose
// GenerateRoadmap reports ErrAnalysisDisabled.
func NewService(configuration ServiceConfig) *Service {
	if configuration.Store == nil {
		panic("credential store is required")
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     configuration.Store,
		clients:   configuration.Clients,
		youtube:   configuration.YouTube,
		x:         configuration.X,
		generator: configuration.Generator,
		logger:    logger,
		metrics:   metrics.OrNoop(configuration.Metrics),
	}
}

// CollectStats fetches stats for every connected platform. Fetch failures are
// logged and the platform is left empty.
func (service *Service) CollectStats(ctx context.Context, user credentials.User) PromptData {
	var data PromptData
	if service.clients == nil {
		return data
	}
	if user.Google.Connected() && service.youtube != nil {
		stats, err := fetchYouTubeStats(ctx, service.clients, service.youtube, user)
		if err != nil {
			service.logStatsFailure(credentials.PlatformGoogle, user.ID, err)
		} else {
			data.YouTube = stats
		}
	}
	if user.X.Connected() && service.x != nil {
		stats, err := fetchXStats(ctx, service.clients, service.x, user)
		if err != nil {
			service.logStatsFailure(credentials.PlatformX, user.ID, err)
		} else {
			data.X = stats
		}
	}
	return data
}

// GenerateRoadmap loads the user, collects stats and returns the generated text verbatim.
func (service *Service) GenerateRoadmap(ctx context.Context, userID string) (string, error) {
	if service.generator == nil {
		return "", ErrAnalysisDisabled
	}
	user, err := service.store.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("analysis.roadmap.load_user: %w", err)
	}
	prompt, err := RenderPrompt(service.CollectStats(ctx, user))
	if err != nil {
		service.metrics.Increment(metricRoadmapFailure)
		return "", err
	}
	roadmap, err := service.generator.Generate(ctx, prompt)
	if err != nil {
		service.metrics.Increment(metricRoadmapFailure)
		service.logger.Error("roadmap generation failed",
			zap.String("code", "analysis.roadmap.generate_failed"),
			zap.String("user_id", user.ID),
			zap.Error(err))
		return "", fmt.Errorf("analysis.roadmap.generate: %w", err)
	}
	service.metrics.Increment(metricRoadmapSuccess)
	return roadmap, nil
}

func (service *Service) logStatsFailure(platform credentials.Platform, userID string, err error) {
	service.metrics.Increment(metricStatsFailure)
	service.logger.Warn("platform stats unavailable",
		zap.String("code", "analysis.stats.fetch_failed"),
		zap.String("platform", string(platform)),
		zap.String("user_id", userID),
		zap.Error(err))
}
