package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sheet-enricher/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached lookups",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cached lookups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpiredLookups(ctx)
		if err != nil {
			return eris.Wrap(err, "cache prune")
		}
		_, _ = fmt.Fprintf(os.Stdout, "deleted %d expired lookups\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
