package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheet-enricher/internal/config"
	"github.com/sells-group/sheet-enricher/pkg/sheets"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Google Sheets access and store the token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(config.ModeAuth); err != nil {
			return err
		}

		oauthCfg, err := sheets.LoadOAuthConfig(cfg.Sheets.CredentialsFile)
		if err != nil {
			return err
		}
		file := sheets.NewTokenFile(cfg.Sheets.TokenFile)

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			if tok, err := file.Load(); err == nil && tok.RefreshToken != "" {
				zap.L().Info("token already present; use --force to authorize again", zap.String("path", file.Path()))
				return nil
			}
		}

		wait, _ := cmd.Flags().GetDuration("timeout")
		if wait > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, wait)
			defer cancel()
		}

		tok, err := sheets.Authorize(ctx, oauthCfg, os.Stdout)
		if err != nil {
			return err
		}
		if err := file.Save(tok); err != nil {
			return err
		}
		zap.L().Info("token saved", zap.String("path", file.Path()))
		return nil
	},
}

func init() {
	authCmd.Flags().Bool("force", false, "authorize even if a token is already stored")
	authCmd.Flags().Duration("timeout", 5*time.Minute, "how long to wait for the browser redirect")
	rootCmd.AddCommand(authCmd)
}
