package dataset

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheet-enricher/internal/model"
	"github.com/sells-group/sheet-enricher/pkg/sheets"
)

// SheetsConfig locates a Google spreadsheet tab.
type SheetsConfig struct {
	SpreadsheetID string
	SheetName     string
	// SheetID is the numeric tab ID used for writes. A negative value is
	// resolved from SheetName on first write.
	SheetID int64
}

// Sheets is a Dataset backed by the Google Sheets API.
type Sheets struct {
	client sheets.Client
	cfg    SheetsConfig
	cols   Columns

	mu       sync.Mutex
	resolved bool
}

// NewSheets returns a Sheets dataset.
func NewSheets(client sheets.Client, cfg SheetsConfig, cols Columns) (*Sheets, error) {
	if cfg.SpreadsheetID == "" {
		return nil, eris.New("dataset: spreadsheet id is required")
	}
	if cfg.SheetName == "" {
		return nil, eris.New("dataset: sheet name is required")
	}
	return &Sheets{client: client, cfg: cfg, cols: cols, resolved: cfg.SheetID >= 0}, nil
}

// Describe implements Dataset.
func (s *Sheets) Describe() string {
	return "sheets:" + s.cfg.SpreadsheetID + "/" + s.cfg.SheetName
}

// readRange is the A1 range covering the column span on the configured tab.
func (s *Sheets) readRange() string {
	return quoteSheetName(s.cfg.SheetName) + "!" + s.cols.span()
}

// ReadRows implements Dataset.
func (s *Sheets) ReadRows(ctx context.Context) ([][]string, error) {
	rows, err := s.client.GetValues(ctx, s.cfg.SpreadsheetID, s.readRange())
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read sheet")
	}
	zap.L().Debug("dataset: sheet read", zap.String("range", s.readRange()), zap.Int("rows", len(rows)))
	return rows, nil
}

// Apply implements Dataset with a single batch update holding one request
// per matching row.
func (s *Sheets) Apply(ctx context.Context, rows [][]string, results model.CycleMap) (int, error) {
	sheetID, err := s.sheetID(ctx)
	if err != nil {
		return 0, err
	}

	col := s.cols.profileIndex()
	var requests []sheets.Request
	n := matches(rows, results, func(i int, r model.EnrichmentResult) {
		requests = append(requests, sheets.UpdateRow(sheetID, i, col, r.Values()))
	})
	if n == 0 {
		return 0, nil
	}

	if err := s.client.BatchUpdate(ctx, s.cfg.SpreadsheetID, requests); err != nil {
		return 0, eris.Wrap(err, "dataset: write sheet")
	}
	return n, nil
}

func (s *Sheets) sheetID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return s.cfg.SheetID, nil
	}

	ss, err := s.client.GetSpreadsheet(ctx, s.cfg.SpreadsheetID)
	if err != nil {
		return 0, eris.Wrap(err, "dataset: resolve sheet id")
	}
	id, ok := ss.SheetID(s.cfg.SheetName)
	if !ok {
		return 0, eris.Errorf("dataset: sheet %q not found in %q", s.cfg.SheetName, ss.Title)
	}
	zap.L().Info("dataset: resolved sheet id", zap.String("sheet", s.cfg.SheetName), zap.Int64("sheet_id", id))
	s.cfg.SheetID = id
	s.resolved = true
	return id, nil
}

// quoteSheetName quotes a tab name for A1 notation when it holds anything
// other than letters, digits, and underscores.
func quoteSheetName(name string) string {
	plain := true
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			plain = false
			break
		}
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
