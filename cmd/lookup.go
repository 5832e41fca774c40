package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sheet-enricher/internal/config"
	"github.com/sells-group/sheet-enricher/internal/engine"
	"github.com/sells-group/sheet-enricher/internal/model"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <company name>",
	Short: "Enrich a single company and print the result as JSON",
	Long:  "Runs the same lookup the engine performs for one spreadsheet row, without reading or writing the spreadsheet or the cursor.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(config.ModeLookup); err != nil {
			return err
		}

		item := model.WorkItem{Name: strings.Join(args, " ")}
		item.KnownProfileURL, _ = cmd.Flags().GetString("profile")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		sess, err := startSession(ctx)
		if err != nil {
			return err
		}
		provider := newProvider(sess, st)
		defer provider.Close() //nolint:errcheck

		out, err := engine.New(nil, nil, nil, provider, engineOptions(cfg, "lookup")).Lookup(ctx, item)
		if err != nil {
			return eris.Wrapf(err, "lookup %q", item.Name)
		}
		return writeOutcome(os.Stdout, out)
	},
}

func init() {
	lookupCmd.Flags().String("profile", "", "known LinkedIn company URL; skips the search")
	rootCmd.AddCommand(lookupCmd)
}

// lookupOutput is the JSON shape printed by the lookup command.
type lookupOutput struct {
	Name      string                 `json:"name"`
	Status    model.ItemStatus       `json:"status"`
	Result    model.EnrichmentResult `json:"result"`
	ElapsedMS int64                  `json:"elapsed_ms"`
}

func writeOutcome(w io.Writer, out model.ItemOutcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(lookupOutput{
		Name:      out.Name,
		Status:    out.Status,
		Result:    out.Result,
		ElapsedMS: out.Duration.Milliseconds(),
	})
}
