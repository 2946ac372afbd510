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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/server"
	"github.com/hyperjump/ragdocs/pkg/utils"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var debug bool
	var port int

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedConfigPath, err := loadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			debugMode := cfg.Debug || debug
			logger, err := utils.NewLogger(debugMode)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			logger.Info("config loaded",
				zap.String("config_path", resolvedConfigPath),
				zap.Bool("debug", debugMode),
			)
			if cfg.Auth.JWTSecret == "" {
				return errors.New("ACCESS_TOKEN_SECRET is not set")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Close()

			components.Enricher.Start(ctx)

			srv := server.NewServer(components.Sessions, components.Metrics, &cfg.Server, cfg.Auth.JWTSecret, logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	serve.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	serve.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config file path")

	return serve
}
