package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blossom/config"
	"blossom/internal/ai"
	"blossom/internal/api"
	"blossom/internal/artifacts"
	"blossom/internal/generation"
	"blossom/internal/pipeline"
	"blossom/internal/projects"
	"blossom/internal/session"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the builder HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srv, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
		logger.Info("running in gin debug mode")
	}

	// No WriteTimeout: streams and typing replays outlive any fixed write deadline.
	server := &http.Server{
		Addr:        cfg.ServerAddress,
		Handler:     newRouter(srv.handler),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting API server", zap.String("addr", cfg.ServerAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("shutting down server", zap.Stringer("signal", sig))
	case err, ok := <-serveErr:
		if ok {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.shutdown(shutdownCtx, server); err != nil {
		logger.Warn("API server forced shutdown", zap.Error(err))
		// ends whatever is still streaming
		cancel()
		_ = server.Close()
	} else {
		logger.Info("API server gracefully stopped")
	}
	return nil
}

func newRouter(handler *api.APIHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	api.RegisterRoutes(router, handler)
	return router
}

// app is the wired service behind the HTTP server.
type app struct {
	handler  *api.APIHandler
	surfaces *session.Store
	projects *projects.Store
}

// shutdown ends the typing replays, which never finish on their own schedule, and then
// drains the server.
func (a *app) shutdown(ctx context.Context, server *http.Server) error {
	a.surfaces.Close()
	return server.Shutdown(ctx)
}

func (a *app) close() {
	a.surfaces.Close()
	if a.projects != nil {
		if err := a.projects.Close(); err != nil {
			logger.Warn("closing project store failed", zap.Error(err))
		}
	}
}

// buildServer wires providers, the generation pipeline, the surface store and the
// project stores into the API handler.
func buildServer(ctx context.Context, cfg config.Config) (*app, error) {
	providers, err := ai.NewRegistry(ctx, cfg.ProviderSettings(), logger)
	if err != nil {
		return nil, err
	}

	client, err := generation.New(cfg.GenerationConfig(), generation.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	runner := pipeline.New(client, logger)
	runner.Preview = cfg.Sandbox()

	store := session.NewStore(cfg.Sandbox(), cfg.TypingCharsPerTick, cfg.TypingInterval)
	submitter := session.NewSubmitter(runner, store, logger)

	deps := api.Deps{
		Submitter:  submitter,
		Providers:  providers,
		Sandbox:    cfg.Sandbox(),
		RelayToken: cfg.RelayToken,
		Logger:     logger,
	}

	a := &app{surfaces: store}
	if cfg.DatabaseURL != "" {
		a.projects, err = projects.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("project storage disabled", zap.Error(err))
			a.projects = nil
		}
	}
	if a.projects != nil {
		deps.Projects = a.projects
		deps.Artifacts = openArtifacts(cfg)
	}
	a.handler = api.NewAPIHandler(deps)
	return a, nil
}

// openArtifacts returns the S3 store when an endpoint is configured and an in-memory
// store otherwise.
func openArtifacts(cfg config.Config) artifacts.Store {
	if !cfg.Artifacts.Enabled() {
		logger.Info("artifact storage is in memory; saved files are lost on restart")
		return artifacts.NewMemoryStore()
	}
	s3, err := artifacts.NewS3Store(cfg.Artifacts, logger)
	if err != nil {
		logger.Warn("S3 artifact storage unavailable, falling back to memory", zap.Error(err))
		return artifacts.NewMemoryStore()
	}
	return s3
}
