package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bolsa-empleo/portal/internal/app"
	"github.com/bolsa-empleo/portal/internal/auth"
	"github.com/bolsa-empleo/portal/internal/backend"
	"github.com/bolsa-empleo/portal/internal/observability"
	"github.com/bolsa-empleo/portal/internal/platform/cache"
	"github.com/bolsa-empleo/portal/internal/platform/db"
	"github.com/bolsa-empleo/portal/internal/rbac"
	"github.com/bolsa-empleo/portal/internal/shared"
	"github.com/bolsa-empleo/portal/internal/view"
	"github.com/bolsa-empleo/portal/jobs"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				slog.Default().Info("test mode detected, skipping runtime startup")
				return nil
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.AppAddr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides APP_ADDR")
	return cmd
}

// loadRules returns the configured rule table or the built-in one.
func loadRules(path string) (rbac.Rules, error) {
	if path == "" {
		return rbac.DefaultRules(), nil
	}
	return rbac.LoadRules(path)
}

func serve(ctx context.Context, cfg *app.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := app.NewLogger(cfg)

	rules, err := loadRules(cfg.RouteRulesFile)
	if err != nil {
		return err
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var repo auth.Repository = auth.NopRepository{}
	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = auth.NewRepository(pool)
	}

	metrics := observability.NewMetrics()
	serviceConfig := auth.ServiceConfig{
		Backend:    backend.NewClient(cfg.APIEndpoint, cfg.BackendTimeout),
		Repository: repo,
		Metrics:    metrics,
		Logger:     logger,
	}

	var inspector jobs.QueueInspector
	if cfg.JobsEnabled {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		serviceConfig.Retrier = jobClient

		asynqInspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := asynqInspector.Close(); err != nil {
				logger.Warn("jobs inspector close", slog.Any("error", err))
			}
		}()
		inspector = asynqInspector
	}
	service := auth.NewService(serviceConfig)

	templates, err := view.NewEngine(cfg.PublicAPI)
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthService:    service,
		AuthHandler:    auth.NewHandler(logger, service, templates, sessionManager, csrfManager, cfg.LoginRateLimit),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Rules:          rules,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Int("route_rules", rules.Len()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
