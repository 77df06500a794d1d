package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/showtime-sync/internal/app"
	"github.com/iliyamo/showtime-sync/internal/config"
	"github.com/iliyamo/showtime-sync/internal/logger"
	"github.com/iliyamo/showtime-sync/internal/middleware"
	"github.com/iliyamo/showtime-sync/internal/utils"
)

func newTokenCmd() *cobra.Command {
	var (
		secret, subject, role string
		ttl                   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the sync endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
				secret = os.Getenv("JWT_SECRET")
			}
			tok, err := utils.NewAccessToken(secret, subject, role, ttl)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"token":     tok.Token,
				"expiresAt": tok.Exp.Format(time.RFC3339),
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret; defaults to JWT_SECRET")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, e.g. an operator email")
	cmd.Flags().StringVar(&role, "role", middleware.RoleOperator, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the venues, performances and schedules tables if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level, _ := cmd.Flags().GetString("log-level")
			log := logger.NewWithWriter(cmd.ErrOrStderr(), "schedulectl", level)
			a, err := app.New(cfg, log, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
