package dataset

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheet-enricher/internal/model"
	"github.com/sells-group/sheet-enricher/pkg/sheets"
)

// Driver names a dataset backend.
const (
	DriverSheets = "sheets"
	DriverXLSX   = "xlsx"
)

// Dataset is a spreadsheet the engine reads rows from and writes results to.
type Dataset interface {
	// ReadRows returns every row across the configured column span. Row 0
	// is the header.
	ReadRows(ctx context.Context) ([][]string, error)
	// Apply writes results into each row whose first cell names a key of
	// results and returns the number of rows written.
	Apply(ctx context.Context, rows [][]string, results model.CycleMap) (int, error)
	// Describe identifies the dataset in logs and the run ledger.
	Describe() string
}

// Config selects and configures a backend.
type Config struct {
	Driver  string
	Columns Columns
	Sheets  SheetsConfig
	XLSX    XLSXConfig
}

// Open returns the configured dataset. client is only used by the sheets
// backend and may be nil otherwise.
func Open(cfg Config, client sheets.Client) (Dataset, error) {
	if err := cfg.Columns.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverSheets, "":
		if client == nil {
			return nil, eris.New("dataset: sheets driver needs a client")
		}
		return NewSheets(client, cfg.Sheets, cfg.Columns)
	case DriverXLSX:
		return NewXLSX(cfg.XLSX, cfg.Columns)
	default:
		return nil, eris.Errorf("dataset: unknown driver %q", cfg.Driver)
	}
}

// matches yields the index and result of every row whose first cell is a key
// of results.
func matches(rows [][]string, results model.CycleMap, fn func(i int, r model.EnrichmentResult)) int {
	n := 0
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		r, ok := results[row[0]]
		if !ok {
			continue
		}
		fn(i, r)
		n++
	}
	return n
}
