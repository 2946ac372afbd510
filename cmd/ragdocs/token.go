package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/ragdocs/internal/server"
)

// tokenCMD issues a bearer token for local development against the configured secret.
func tokenCMD() *cobra.Command {
	var userID int64
	var ttl time.Duration
	var cfgPath string

	token := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("ACCESS_TOKEN_SECRET is not set")
			}
			signed, err := server.SignToken([]byte(cfg.Auth.JWTSecret), userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	token.Flags().Int64Var(&userID, "user", 1, "user id")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	token.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config file path")

	return token
}
