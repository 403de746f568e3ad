package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sano/sano-api/internal/config"
	"github.com/sano/sano-api/internal/domain/analysis"
	"github.com/sano/sano-api/internal/domain/billing"
	"github.com/sano/sano-api/internal/domain/consultation"
	"github.com/sano/sano-api/internal/domain/documents"
	"github.com/sano/sano-api/internal/platform/attachments"
	"github.com/sano/sano-api/internal/platform/metrics"
	"github.com/sano/sano-api/internal/platform/middleware"
	"github.com/sano/sano-api/internal/platform/pipeline"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "sano-server",
		Short: "Consultation assistant API server",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// pipelineEndpoints maps the configured URLs onto the pipeline client.
func pipelineEndpoints(cfg *config.Config) pipeline.Endpoints {
	return pipeline.Endpoints{
		TranscribeURL: cfg.TranscribeURL,
		StructureURL:  cfg.StructureURL,
		RelanceURL:    cfg.RelanceURL,
		AnalyzeURL:    cfg.AnalyzeURL,
		ArretURL:      cfg.ArretURL,
		DictationURL:  cfg.DictationURL,
	}
}

// newAnalyzer picks the in-process model service when an API key is
// configured, otherwise analysis goes through the remote pipeline stage.
func newAnalyzer(cfg *config.Config, client *pipeline.Client, logger zerolog.Logger) consultation.Analyzer {
	if cfg.OpenAIAPIKey != "" {
		return analysis.NewService(analysis.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.OpenAITemp,
		}, logger)
	}
	return client
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Remote pipeline client
	client := pipeline.NewClient(pipelineEndpoints(cfg), logger)

	// Stores and services
	store := consultation.NewMemoryStore()
	analyzer := newAnalyzer(cfg, client, logger)
	consultSvc := consultation.NewService(store, client, analyzer, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.Audit(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.AudioBodyLimit))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.ETagMiddleware(middleware.DefaultCacheConfig()))

	// Domain handlers
	consultation.NewHandler(consultSvc).RegisterRoutes(apiV1)
	billing.NewHandler().RegisterRoutes(apiV1)
	documents.NewHandler(store, client, logger).RegisterRoutes(apiV1)
	attachments.NewHandler(attachments.NewInMemoryStore()).RegisterRoutes(apiV1)
	if cfg.OpenAIAPIKey != "" {
		if svc, ok := analyzer.(*analysis.Service); ok {
			analysis.NewHandler(svc, logger).RegisterRoutes(apiV1)
		}
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", metrics.Handler())

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
