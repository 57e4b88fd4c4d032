package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Showtimes_Sync/internal/handler"
	"Showtimes_Sync/internal/pkg"
	"Showtimes_Sync/internal/router"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noAPI bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the resync reconciler and the operator API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !noAPI {
				if err := cfg.RequireAPI(); err != nil {
					return err
				}
			}
			log, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err := os.MkdirAll(cfg.Paths.LockDir, 0o755); err != nil {
				return fmt.Errorf("create lock directory: %w", err)
			}
			lockPath := filepath.Join(cfg.Paths.LockDir, "showtimes.lock")
			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another showtimes instance is already running")
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					log.Warn("failed to release instance lock", zap.Error(err))
				}
			}()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEngine(runCtx, cfg, log)
			if err != nil {
				return err
			}
			defer e.Close()

			done := make(chan struct{})
			go func() {
				defer close(done)
				e.Reconciler.Run(runCtx)
			}()

			var srv *http.Server
			if !noAPI {
				gin.SetMode(gin.ReleaseMode)
				tokens := pkg.NewTokenIssuer(cfg.API.AccessSecret, cfg.API.RefreshSecret)
				engine := router.New(router.Deps{
					Auth:   handler.NewAuthHandler(cfg.API.Operator, cfg.API.OperatorPasswordHash, tokens),
					Ops:    handler.NewOpsHandler(e.Communities, e.Projects, e.Reconciler, log.Named("api")),
					Tokens: tokens,
					Log:    log.Named("http"),
				})
				srv = &http.Server{Addr: cfg.API.Bind, Handler: engine, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					log.Info("operator api listening", zap.String("addr", cfg.API.Bind))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("operator api stopped", zap.Error(err))
						stop()
					}
				}()
			}

			log.Info("showtimes started", zap.String("lock", lockPath))
			<-runCtx.Done()
			log.Info("shutting down")

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn("operator api shutdown", zap.Error(err))
				}
			}
			<-done
			return nil
		},
	}

	cmd.Flags().BoolVar(&noAPI, "no-api", false, "Run only the resync reconciler")
	return cmd
}
