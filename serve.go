package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/audit"
	"github.com/ekaya-inc/tenantsql/pkg/auth"
	"github.com/ekaya-inc/tenantsql/pkg/handlers"
	"github.com/ekaya-inc/tenantsql/pkg/middleware"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the rewrite API over HTTP",
		Long: `Serve POST /api/rewrite behind bearer-token authentication.

The tenant of each request is the tid claim of its JWT. GET /health and
GET /ping are unauthenticated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, c)
		},
	}
}

func runServer(ctx context.Context, c *cli) error {
	cfg, logger := c.cfg, c.logger

	eng, err := buildEngine(ctx, cfg, defaultProviders(nil), logger)
	if err != nil {
		return err
	}

	validator, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		return fmt.Errorf("creating token validator: %w", err)
	}
	if !cfg.Auth.EnableVerification {
		logger.Warn("JWT verification disabled; tokens are trusted without a signature check")
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, eng.Rule(), logger).RegisterRoutes(mux)
	auditor := audit.NewSecurityAuditor(logger, cfg.Log.AuditScoped)
	handlers.NewRewriteHandler(eng, auditor, logger).RegisterRoutes(mux, auth.NewMiddleware(validator, logger).RequireTenant)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.Recoverer(logger)(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting tenantsql server",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down tenantsql server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
