package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tyemirov/creatoros/internal/analysis"
	"github.com/tyemirov/creatoros/internal/authkit"
	"github.com/tyemirov/creatoros/internal/integrations"
)

const (
	tokenIssuer = "creatoros"

	storeDriverGORM = "gorm"
	storeDriverPGX  = "pgx"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidSessionTTL       = "config.invalid_session_ttl"
	configCodeInvalidStateTTL         = "config.invalid_state_ttl"
	configCodeInvalidStoreDriver      = "config.invalid_store_driver"
	configCodePGXRequiresDatabaseURL  = "config.pgx_requires_database_url"
	configCodeInvalidFrontendURL      = "config.invalid_frontend_url"
	configCodeInvalidPublicBaseURL    = "config.invalid_public_base_url"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeStoreInit               = "config.store_init"
	configCodeRouterInit              = "config.router_init"
)

// serverConfig is everything runServer needs, resolved and validated.
type serverConfig struct {
	ListenAddr         string
	Auth               authkit.ServerConfig
	StateTTL           time.Duration
	DatabaseURL        string
	StoreDriver        string
	FrontendURL        string
	CORSAllowedOrigins []string
	Google             integrations.GoogleConfig
	X                  integrations.XConfig
	Gemini             analysis.GeminiConfig
	EnableMetrics      bool
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads flags and APP_* environment variables through viper.
func LoadServerConfig() (serverConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return serverConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	sessionTTL := authkit.DefaultSessionTTL
	if viper.IsSet("session_ttl") {
		sessionTTL = viper.GetDuration("session_ttl")
	}
	if sessionTTL <= 0 {
		return serverConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	stateTTL := integrations.DefaultStateTTL
	if viper.IsSet("state_ttl") {
		stateTTL = viper.GetDuration("state_ttl")
	}
	if stateTTL <= 0 {
		return serverConfig{}, configError(configCodeInvalidStateTTL, "state_ttl must be greater than zero")
	}

	databaseURL := strings.TrimSpace(viper.GetString("database_url"))
	storeDriver := strings.ToLower(strings.TrimSpace(viper.GetString("store_driver")))
	if storeDriver == "" {
		storeDriver = storeDriverGORM
	}
	switch storeDriver {
	case storeDriverGORM:
	case storeDriverPGX:
		if databaseURL == "" {
			return serverConfig{}, configError(configCodePGXRequiresDatabaseURL, "store_driver pgx requires database_url")
		}
	default:
		return serverConfig{}, configError(configCodeInvalidStoreDriver, "store_driver must be gorm or pgx")
	}

	frontendURL := strings.TrimSpace(viper.GetString("frontend_url"))
	if frontendURL != "" && !isAbsoluteURL(frontendURL) {
		return serverConfig{}, configError(configCodeInvalidFrontendURL, "frontend_url must be an absolute URL")
	}

	publicBaseURL := strings.TrimRight(strings.TrimSpace(viper.GetString("public_base_url")), "/")
	if publicBaseURL != "" && !isAbsoluteURL(publicBaseURL) {
		return serverConfig{}, configError(configCodeInvalidPublicBaseURL, "public_base_url must be an absolute URL")
	}

	return serverConfig{
		ListenAddr: viper.GetString("listen_addr"),
		Auth: authkit.ServerConfig{
			AppJWTSigningKey: []byte(jwtSigningKey),
			AppJWTIssuer:     tokenIssuer,
			SessionTTL:       sessionTTL,
		},
		StateTTL:           stateTTL,
		DatabaseURL:        databaseURL,
		StoreDriver:        storeDriver,
		FrontendURL:        frontendURL,
		CORSAllowedOrigins: viper.GetStringSlice("cors_allowed_origins"),
		Google: integrations.GoogleConfig{
			ClientID:      strings.TrimSpace(viper.GetString("google_client_id")),
			ClientSecret:  viper.GetString("google_client_secret"),
			RedirectURL:   redirectURL(viper.GetString("google_redirect_url"), publicBaseURL, "google"),
			AuthURL:       viper.GetString("google_auth_url"),
			TokenURL:      viper.GetString("google_token_url"),
			YouTubeAPIURL: viper.GetString("youtube_api_url"),
		},
		X: integrations.XConfig{
			ClientID:     strings.TrimSpace(viper.GetString("x_client_id")),
			ClientSecret: viper.GetString("x_client_secret"),
			RedirectURL:  redirectURL(viper.GetString("x_redirect_url"), publicBaseURL, "x"),
			AuthURL:      viper.GetString("x_auth_url"),
			TokenURL:     viper.GetString("x_token_url"),
			APIBaseURL:   viper.GetString("x_api_url"),
		},
		Gemini: analysis.GeminiConfig{
			APIKey:  viper.GetString("gemini_api_key"),
			Model:   viper.GetString("gemini_model"),
			BaseURL: viper.GetString("gemini_base_url"),
		},
		EnableMetrics: viper.GetBool("enable_metrics"),
	}, nil
}

// redirectURL prefers the explicit value, then derives the callback from public_base_url.
func redirectURL(explicit string, publicBaseURL string, platform string) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed
	}
	if publicBaseURL == "" {
		return ""
	}
	return publicBaseURL + "/api/integrations/" + platform + "/callback"
}

func isAbsoluteURL(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}
