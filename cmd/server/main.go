package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/creatoros/internal/analysis"
	"github.com/tyemirov/creatoros/internal/authkit"
	"github.com/tyemirov/creatoros/internal/credentials"
	"github.com/tyemirov/creatoros/internal/credentialspg"
	"github.com/tyemirov/creatoros/internal/integrations"
	"github.com/tyemirov/creatoros/internal/metrics"
	"github.com/tyemirov/creatoros/internal/oauthstate"
	"github.com/tyemirov/creatoros/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "creatoros",
		Short:   "Creator account linking service with OAuth2 platform connections and growth roadmaps",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	flags := rootCmd.Flags()
	flags.String("listen_addr", ":8080", "HTTP listen address")
	flags.String("jwt_signing_key", "", "HS256 secret for bearer tokens; state keys are derived from it")
	flags.Duration("session_ttl", authkit.DefaultSessionTTL, "Bearer token TTL")
	flags.Duration("state_ttl", integrations.DefaultStateTTL, "OAuth state artifact TTL")
	flags.String("database_url", "", "Database URL (postgres:// or sqlite://; leave empty for in-memory store)")
	flags.String("store_driver", storeDriverGORM, "Credential store driver: gorm or pgx")
	flags.String("frontend_url", "", "Frontend URL receiving link redirects; empty answers callbacks with JSON")
	flags.StringSlice("cors_allowed_origins", []string{}, "Allowed CORS origins; \"*\" allows all, empty disables CORS")
	flags.String("public_base_url", "", "Public base URL used to derive provider redirect URLs")
	flags.String("google_client_id", "", "Google OAuth client ID")
	flags.String("google_client_secret", "", "Google OAuth client secret")
	flags.String("google_redirect_url", "", "Google OAuth redirect URL")
	flags.String("google_auth_url", "", "Override for the Google authorization endpoint")
	flags.String("google_token_url", "", "Override for the Google token endpoint")
	flags.String("youtube_api_url", "", "Override for the YouTube Data API base URL")
	flags.String("x_client_id", "", "X OAuth client ID")
	flags.String("x_client_secret", "", "X OAuth client secret")
	flags.String("x_redirect_url", "", "X OAuth redirect URL")
	flags.String("x_auth_url", "", "Override for the X authorization endpoint")
	flags.String("x_token_url", "", "Override for the X token endpoint")
	flags.String("x_api_url", "", "Override for the X API base URL")
	flags.String("gemini_api_key", "", "Gemini API key; empty disables roadmap generation")
	flags.String("gemini_model", "", "Gemini model name")
	flags.String("gemini_base_url", "", "Override for the Gemini API base URL")
	flags.Bool("enable_metrics", false, "Expose Prometheus metrics on /metrics")

	flags.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(flag.Name, flag)
	})

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	loaded, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, loaded))
	return nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	configuration, ok := contextValue.(serverConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	store, closeStore, storeErr := openStore(commandContext, logger, configuration)
	if storeErr != nil {
		return fmt.Errorf("%s: %w", configCodeStoreInit, storeErr)
	}
	defer closeStore()

	recorder := buildRecorder(configuration)

	authkit.ProvideLogger(logger)
	defer authkit.ProvideLogger(nil)

	authkit.ProvideMetrics(recorder)
	defer authkit.ProvideMetrics(nil)

	gin.SetMode(gin.ReleaseMode)
	router, routerErr := buildRouter(commandContext, logger, configuration, store, recorder)
	if routerErr != nil {
		return fmt.Errorf("%s: %w", configCodeRouterInit, routerErr)
	}

	server := &http.Server{
		Addr:              configuration.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", configuration.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// openStore selects the credential store. An empty database URL keeps users in memory.
func openStore(ctx context.Context, logger *zap.Logger, configuration serverConfig) (credentials.Store, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if configuration.DatabaseURL == "" {
		logger.Warn("using in-memory credential store", zap.String("code", "store.memory"))
		return credentials.NewMemoryStore(), func() {}, nil
	}
	if configuration.StoreDriver == storeDriverPGX {
		pool, err := credentialspg.BuildPool(ctx, configuration.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := credentialspg.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using pgx credential store", zap.String("code", "store.pgx"))
		return credentialspg.NewPostgresStore(pool), pool.Close, nil
	}
	databaseStore, err := credentials.NewDatabaseStore(ctx, configuration.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using database credential store",
		zap.String("code", "store.gorm"),
		zap.String("driver", databaseStore.Driver()))
	return databaseStore, func() {}, nil
}

func buildRecorder(configuration serverConfig) metrics.Recorder {
	if configuration.EnableMetrics {
		return metrics.NewPrometheusRecorder("creatoros")
	}
	return metrics.NewCounterMetrics()
}

// buildRouter assembles the HTTP surface under /api plus health and metrics.
func buildRouter(ctx context.Context, logger *zap.Logger, configuration serverConfig, store credentials.Store, recorder metrics.Recorder) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	prometheusRecorder, exportsMetrics := recorder.(*metrics.PrometheusRecorder)
	if exportsMetrics {
		router.Use(prometheusRecorder.GinMiddleware())
		router.GET("/metrics", gin.WrapH(prometheusRecorder.Handler()))
	}

	if len(configuration.CORSAllowedOrigins) > 0 {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, configuration.CORSAllowedOrigins)
		if corsErr != nil {
			return nil, corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	requireSession, sessionErr := authkit.RequireSession(configuration.Auth)
	if sessionErr != nil {
		return nil, sessionErr
	}

	codec, codecErr := oauthstate.NewCodec(oauthstate.Config{
		Secret: configuration.Auth.AppJWTSigningKey,
		Issuer: configuration.Auth.AppJWTIssuer,
	})
	if codecErr != nil {
		return nil, codecErr
	}

	var (
		providers      []integrations.Provider
		googleProvider *integrations.GoogleProvider
		xProvider      *integrations.XProvider
	)
	if configuration.Google.ClientID != "" {
		googleProvider = integrations.NewGoogleProvider(configuration.Google)
		providers = append(providers, googleProvider)
	} else {
		logger.Warn("google integration disabled", zap.String("code", "integrations.google.disabled"))
	}
	if configuration.X.ClientID != "" {
		xProvider = integrations.NewXProvider(configuration.X)
		providers = append(providers, xProvider)
	} else {
		logger.Warn("x integration disabled", zap.String("code", "integrations.x.disabled"))
	}

	coordinator, coordinatorErr := integrations.NewCoordinator(integrations.CoordinatorConfig{
		Store:     store,
		Codec:     codec,
		Providers: providers,
		StateTTL:  configuration.StateTTL,
		Logger:    logger,
		Metrics:   recorder,
	})
	if coordinatorErr != nil {
		return nil, coordinatorErr
	}

	serviceConfig := analysis.ServiceConfig{
		Store:   store,
		Clients: coordinator,
		Logger:  logger,
		Metrics: recorder,
	}
	if googleProvider != nil {
		serviceConfig.YouTube = googleProvider
	}
	if xProvider != nil {
		serviceConfig.X = xProvider
	}
	if configuration.Gemini.APIKey != "" {
		if ctx == nil {
			ctx = context.Background()
		}
		gemini, geminiErr := analysis.NewGeminiClient(ctx, configuration.Gemini)
		if geminiErr != nil {
			return nil, geminiErr
		}
		serviceConfig.Generator = gemini
	} else {
		logger.Warn("roadmap generation disabled", zap.String("code", "analysis.disabled"))
	}

	api := router.Group("/api")
	authkit.MountAuthRoutes(api, configuration.Auth, store)
	integrations.MountRoutes(api, coordinator, requireSession, integrations.RouteConfig{
		FrontendURL: configuration.FrontendURL,
		Logger:      logger,
	})
	web.MountUserRoutes(api, requireSession, web.NewUserHandlers(logger, store, coordinator))
	analysis.MountRoutes(api, analysis.NewService(serviceConfig), requireSession, logger)

	return router, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.String("route", contextGin.FullPath()),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
