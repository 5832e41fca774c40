package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sheet-enricher/internal/browser"
	"github.com/sells-group/sheet-enricher/internal/config"
	"github.com/sells-group/sheet-enricher/internal/dataset"
	"github.com/sells-group/sheet-enricher/internal/engine"
	"github.com/sells-group/sheet-enricher/internal/progress"
	"github.com/sells-group/sheet-enricher/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich the spreadsheet from the saved cursor until it is exhausted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(config.ModeRun); err != nil {
			return err
		}

		lock, err := progress.AcquireLock(cfg.Progress.File)
		if err != nil {
			return err
		}
		defer lock.Release() //nolint:errcheck

		env, err := initRunEnv(ctx)
		if err != nil {
			return err
		}
		defer env.close()

		rowStart, _ := cmd.Flags().GetInt("row-start")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		opts := engineOptions(cfg, env.dataset.Describe())
		opts.RowStart = rowStart
		opts.BatchSize = batchSize

		ps := progress.NewFileStore(cfg.Progress.File, defaultProgress(cfg))
		eng := engine.New(ps, env.dataset, env.dataset, newProvider(env.session, env.store), opts)
		if env.store != nil {
			eng.WithLedger(env.store)
		}

		rep, err := eng.Run(ctx)
		if rep != nil {
			printReport(os.Stdout, rep)
		}
		return err
	},
}

func init() {
	runCmd.Flags().Int("max-cycles", 0, "stop after this many cycles (0 = until the sheet is exhausted)")
	runCmd.Flags().Int("row-start", 0, "override the saved cursor's start row")
	runCmd.Flags().Int("batch-size", 0, "override the number of rows per cycle")
	runCmd.Flags().Int("item-timeout", 0, "per-company deadline in seconds")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	if cmd.Flags().Changed("max-cycles") {
		n, err := cmd.Flags().GetInt("max-cycles")
		if err != nil {
			return eris.Wrap(err, "max-cycles")
		}
		c.Engine.MaxCycles = n
	}
	if cmd.Flags().Changed("item-timeout") {
		n, err := cmd.Flags().GetInt("item-timeout")
		if err != nil {
			return eris.Wrap(err, "item-timeout")
		}
		c.Engine.ItemTimeoutSecs = n
	}
	return nil
}

// runEnv holds the collaborators a run needs.
type runEnv struct {
	dataset dataset.Dataset
	session *browser.Session
	store   store.Store
}

// initRunEnv opens the dataset, the store, and Chrome concurrently. On any
// failure everything already opened is closed.
func initRunEnv(ctx context.Context) (*runEnv, error) {
	env := &runEnv{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ds, err := initDataset(gctx)
		env.dataset = ds
		return err
	})
	g.Go(func() error {
		st, err := initStore(gctx)
		env.store = st
		return err
	})
	g.Go(func() error {
		sess, err := startSession(gctx)
		env.session = sess
		return err
	})

	if err := g.Wait(); err != nil {
		env.close()
		return nil, err
	}
	return env, nil
}

// close releases the store and the browser. The engine closes the browser
// through the provider as well; Session.Close is idempotent.
func (e *runEnv) close() {
	if e.session != nil {
		if err := e.session.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// printReport writes the run summary for the operator.
func printReport(w io.Writer, rep *engine.Report) {
	_, _ = fmt.Fprintf(w, "run %s: %s\n", rep.RunID, rep.Status())
	_, _ = fmt.Fprintf(w, "  rows %d, cycles %d, items %d\n", rep.Rows, rep.Cycles, rep.Items)
	_, _ = fmt.Fprintf(w, "  found %d, not found %d, timed out %d, failed %d\n", rep.Found, rep.NotFound, rep.TimedOut, rep.Failed)
	_, _ = fmt.Fprintf(w, "  cursor %d -> %d (batch %d), elapsed %s\n", rep.Start.RowStart, rep.End.RowStart, rep.End.MaxCountPerCycle, rep.Elapsed.Round(time.Millisecond))
	if rep.Err != nil {
		_, _ = fmt.Fprintf(w, "  stopped early: %v\n", rep.Err)
	}
}
