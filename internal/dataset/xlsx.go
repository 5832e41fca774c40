package dataset

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/sheet-enricher/internal/model"
)

// XLSXConfig locates a workbook on disk.
type XLSXConfig struct {
	Path string
	// SheetName selects the worksheet; empty means the first one.
	SheetName string
	// OutputPath receives the updated workbook; empty means Path.
	OutputPath string
}

// XLSX is a Dataset backed by a local workbook. The workbook is loaded once
// and every Apply saves it whole.
type XLSX struct {
	cfg  XLSXConfig
	cols Columns

	mu    sync.Mutex
	file  *xlsx.File
	sheet *xlsx.Sheet
}

// NewXLSX returns an XLSX dataset.
func NewXLSX(cfg XLSXConfig, cols Columns) (*XLSX, error) {
	if cfg.Path == "" {
		return nil, eris.New("dataset: xlsx path is required")
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = cfg.Path
	}
	return &XLSX{cfg: cfg, cols: cols}, nil
}

// Describe implements Dataset.
func (x *XLSX) Describe() string {
	if x.cfg.SheetName == "" {
		return "xlsx:" + x.cfg.Path
	}
	return "xlsx:" + x.cfg.Path + "/" + x.cfg.SheetName
}

// ReadRows implements Dataset. Each row is cut to the column span with
// trailing empty cells dropped.
func (x *XLSX) ReadRows(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	sheet, err := x.load()
	if err != nil {
		return nil, err
	}

	first := x.cols.nameIndex()
	last := first + 3
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, spanCells(row, first, last))
	}
	zap.L().Debug("dataset: workbook read", zap.String("path", x.cfg.Path), zap.Int("rows", len(rows)))
	return rows, nil
}

// Apply implements Dataset.
func (x *XLSX) Apply(ctx context.Context, rows [][]string, results model.CycleMap) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	sheet, err := x.load()
	if err != nil {
		return 0, err
	}

	col := x.cols.profileIndex()
	n := matches(rows, results, func(i int, r model.EnrichmentResult) {
		for j, v := range r.Values() {
			sheet.Cell(i, col+j).SetString(v)
		}
	})
	if n == 0 {
		return 0, nil
	}

	if err := x.save(); err != nil {
		return 0, err
	}
	return n, nil
}

func (x *XLSX) load() (*xlsx.Sheet, error) {
	if x.sheet != nil {
		return x.sheet, nil
	}
	f, err := xlsx.OpenFile(x.cfg.Path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	var sheet *xlsx.Sheet
	if x.cfg.SheetName != "" {
		s, ok := f.Sheet[x.cfg.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", x.cfg.SheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("xlsx: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}
	x.file, x.sheet = f, sheet
	return sheet, nil
}

// save writes the workbook next to its destination and renames it into
// place.
func (x *XLSX) save() error {
	tmp, err := os.CreateTemp(filepath.Dir(x.cfg.OutputPath), filepath.Base(x.cfg.OutputPath)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "xlsx: create temp file")
	}
	name := tmp.Name()
	defer os.Remove(name) //nolint:errcheck
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "xlsx: create temp file")
	}

	if err := x.file.Save(name); err != nil {
		return eris.Wrap(err, "xlsx: save workbook")
	}
	return eris.Wrapf(os.Rename(name, x.cfg.OutputPath), "xlsx: replace %s", x.cfg.OutputPath)
}

func spanCells(row *xlsx.Row, first, last int) []string {
	if row == nil {
		return nil
	}
	end := min(last+1, len(row.Cells))
	if first >= end {
		return nil
	}
	cells := make([]string, 0, end-first)
	for _, c := range row.Cells[first:end] {
		cells = append(cells, c.String())
	}
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}
