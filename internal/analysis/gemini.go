package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/tyemirov/creatoros/internal/apierrors"
)

const (
	defaultGeminiModel      = "gemini-2.5-flash"
	defaultGeminiAPIVersion = "v1beta"
)

var (
	// ErrGenerationFailed indicates the language model call failed or returned no text.
	ErrGenerationFailed = fmt.Errorf("analysis.generation_failed: %w", apierrors.ErrUpstreamFailed)

	errMissingAPIKey = errors.New("analysis.gemini.missing_api_key")
)

// GeminiConfig configures the generateContent client.
// BaseURL replaces the API host; the version segment is appended by the SDK.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiClient generates text through the Gemini Developer API.
type GeminiClient struct {
	model  string
	client *genai.Client
}

// NewGeminiClient validates the configuration and builds the SDK client.
func NewGeminiClient(ctx context.Context, configuration GeminiConfig) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(configuration.APIKey)
	if apiKey == "" {
		return nil, errMissingAPIKey
	}
	model := strings.TrimSpace(configuration.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	httpOptions := genai.HTTPOptions{APIVersion: defaultGeminiAPIVersion}
	if baseURL := strings.TrimSpace(configuration.BaseURL); baseURL != "" {
		httpOptions.BaseURL = strings.TrimRight(baseURL, "/") + "/"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: httpOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis.gemini.client: %w", err)
	}
	return &GeminiClient{
		model:  model,
		client: client,
	}, nil
}

// Model returns the model name being used.
func (gemini *GeminiClient) Model() string {
	return gemini.model
}

// Generate sends prompt as a single user turn and returns the response text.
func (gemini *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := gemini.client.Models.GenerateContent(ctx, gemini.model, genai.Text(prompt), nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("analysis.gemini.api_error.%d.%s: %w: %s", apiErr.Code, apiErr.Status, ErrGenerationFailed, apiErr.Message)
		}
		return "", fmt.Errorf("analysis.gemini.generate: %w: %w", ErrGenerationFailed, err)
	}
	text := response.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("analysis.gemini.empty_candidates: %w", ErrGenerationFailed)
	}
	return text, nil
}
