package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sheet-enricher/internal/model"
	"github.com/sells-group/sheet-enricher/internal/progress"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect or move the saved cursor",
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved cursor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ps := progress.NewFileStore(cfg.Progress.File, defaultProgress(cfg))
		p, err := ps.Load()
		if err != nil {
			return err
		}
		printProgress(os.Stdout, ps.Path(), p)
		return nil
	},
}

var progressSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Overwrite the saved cursor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ps := progress.NewFileStore(cfg.Progress.File, defaultProgress(cfg))
		cur, err := ps.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("row-start") {
			cur.RowStart, _ = cmd.Flags().GetInt("row-start")
		}
		if cmd.Flags().Changed("batch-size") {
			cur.MaxCountPerCycle, _ = cmd.Flags().GetInt("batch-size")
		}
		return saveProgress(ps, cur)
	},
}

var progressResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the cursor to the configured start row and batch size",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ps := progress.NewFileStore(cfg.Progress.File, defaultProgress(cfg))
		return saveProgress(ps, defaultProgress(cfg))
	},
}

func init() {
	progressSetCmd.Flags().Int("row-start", 0, "first row of the next cycle")
	progressSetCmd.Flags().Int("batch-size", 0, "rows per cycle")

	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressSetCmd)
	progressCmd.AddCommand(progressResetCmd)
	rootCmd.AddCommand(progressCmd)
}

// saveProgress validates and writes p while holding the run lock, so a
// running enricher is never overwritten.
func saveProgress(ps *progress.FileStore, p model.Progress) error {
	if err := p.Validate(); err != nil {
		return eris.Wrap(err, "progress")
	}
	lock, err := progress.AcquireLock(ps.Path())
	if err != nil {
		return err
	}
	defer lock.Release() //nolint:errcheck

	if err := ps.Save(p); err != nil {
		return err
	}
	printProgress(os.Stdout, ps.Path(), p)
	return nil
}

func printProgress(w io.Writer, path string, p model.Progress) {
	_, _ = fmt.Fprintf(w, "%s: row_start=%d max_count_per_cycle=%d\n", path, p.RowStart, p.MaxCountPerCycle)
}
