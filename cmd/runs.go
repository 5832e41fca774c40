package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sheet-enricher/internal/config"
	"github.com/sells-group/sheet-enricher/internal/model"
	"github.com/sells-group/sheet-enricher/internal/monitoring"
	"github.com/sells-group/sheet-enricher/internal/store"
)

// Output formats for ledger commands.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded enrichment runs",
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

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(runs) == 0 && format == formatTable {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		return writeRuns(os.Stdout, runs, format)
	},
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles <run-id>",
	Short: "Show the cycles of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		if _, err := st.GetRun(ctx, args[0]); err != nil {
			return eris.Wrap(err, "cycles")
		}
		cycles, err := st.ListCycles(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "cycles")
		}
		format, _ := cmd.Flags().GetString("format")
		return writeCycles(os.Stdout, cycles, format)
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent runs and lookup outcomes",
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

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			hours = 1
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		format, _ := cmd.Flags().GetString("format")
		if format == formatTable {
			formatRunStats(os.Stdout, snap)
			return nil
		}
		return encode(os.Stdout, snap, format)
	},
}

func init() {
	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 168h)")
	runsStatsCmd.Flags().String("format", formatTable, "output format: table, json, or yaml")
	runsCmd.AddCommand(runsStatsCmd)

	runsCmd.Flags().String("status", "", "filter by run status (running, complete, recovered, failed)")
	runsCmd.Flags().Int("limit", 20, "max number of runs to display")
	runsCmd.Flags().String("format", formatTable, "output format: table, json, or yaml")
	cyclesCmd.Flags().String("format", formatTable, "output format: table, json, or yaml")

	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(cyclesCmd)
}

func writeRuns(w io.Writer, runs []model.Run, format string) error {
	switch format {
	case formatTable:
		formatRunsList(w, runs)
		return nil
	case formatJSON, formatYAML:
		return encode(w, runs, format)
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

func writeCycles(w io.Writer, cycles []model.CycleRecord, format string) error {
	switch format {
	case formatTable:
		formatCyclesList(w, cycles)
		return nil
	case formatJSON, formatYAML:
		return encode(w, cycles, format)
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

// encode writes v as indented JSON or as YAML. YAML goes through the JSON
// form so both formats share field names.
func encode(w io.Writer, v any, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "encode")
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return enc.Close()
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tROWS\tCYCLES\tSTARTED\tDURATION")
	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d-%d\t%d\t%s\t%s\n",
			shortID(r.ID),
			r.Source,
			r.Status,
			r.RowStart, r.RowEnd,
			r.Cycles,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatCyclesList writes one line per cycle with item counts.
func formatCyclesList(out io.Writer, cycles []model.CycleRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROWS\tITEMS\tFOUND\tNOT_FOUND\tTIMEOUT\tERROR\tWRITTEN\tFLUSHED\tNOTE")
	for _, c := range cycles {
		_, _ = fmt.Fprintf(w, "[%d,%d)\t%d\t%d\t%d\t%d\t%d\t%d\t%t\t%s\n",
			c.RowStart, c.RowEnd,
			len(c.Items),
			c.Count(model.ItemFound),
			c.Count(model.ItemNotFound),
			c.Count(model.ItemTimeout),
			c.Count(model.ItemError),
			c.RowsWritten,
			c.Flushed,
			c.Error,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes a health snapshot as aligned key/value lines.
func formatRunStats(out io.Writer, s *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (complete %d, recovered %d, failed %d, running %d)\n",
		s.RunsTotal, s.RunsComplete, s.RunsRecovered, s.RunsFailed, s.RunsRunning)
	_, _ = fmt.Fprintf(w, "Run fail rate:\t%.1f%%\n", s.RunFailRate*100)
	_, _ = fmt.Fprintf(w, "Cycles:\t%d (%d not flushed)\n", s.Cycles, s.CyclesUnflushed)
	_, _ = fmt.Fprintf(w, "Items:\t%d (found %d, not found %d, timed out %d, errored %d)\n",
		s.Items, s.Found, s.NotFound, s.TimedOut, s.Errored)
	_, _ = fmt.Fprintf(w, "Found rate:\t%.1f%%\n", s.FoundRate*100)
	_, _ = fmt.Fprintf(w, "Avg item time:\t%s\n", time.Duration(s.AvgItemMillis)*time.Millisecond)
	_, _ = fmt.Fprintf(w, "Rows written:\t%d\n", s.RowsWritten)
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
