package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheet-enricher/internal/model"
	"github.com/sells-group/sheet-enricher/pkg/sheets"
	"github.com/sells-group/sheet-enricher/pkg/sheets/mocks"
)

func newSheets(t *testing.T, client sheets.Client, sheetID int64) *Sheets {
	t.Helper()
	ds, err := NewSheets(client, SheetsConfig{SpreadsheetID: "file-1", SheetName: "Leads", SheetID: sheetID}, DefaultColumns())
	require.NoError(t, err)
	return ds
}

func TestSheets_ReadRows(t *testing.T) {
	client := mocks.NewMockClient(t)
	rows := [][]string{{"Company"}, {"Acme"}}
	client.On("GetValues", mock.Anything, "file-1", "Leads!A:D").Return(rows, nil)

	got, err := newSheets(t, client, 0).ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestSheets_ReadRowsError(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("GetValues", mock.Anything, "file-1", "Leads!A:D").Return(nil, errors.New("status 404"))

	_, err := newSheets(t, client, 0).ReadRows(context.Background())
	assert.ErrorContains(t, err, "status 404")
}

func TestSheets_ApplyBuildsOneRequestPerMatchingRow(t *testing.T) {
	client := mocks.NewMockClient(t)
	rows := [][]string{
		{"Company", "LinkedIn", "Size", "Industry"},
		{"Acme"},
		{"Globex", "https://www.linkedin.com/company/globex"},
		{},
		{"Acme", ""},
		{"Initech"},
	}
	results := model.CycleMap{
		"Acme":   {ProfileURL: "https://www.linkedin.com/company/acme", Size: "11-50", Industry: "Retail"},
		"Globex": {ProfileURL: "https://www.linkedin.com/company/globex", Size: "NA", Industry: "NA"},
	}

	client.On("BatchUpdate", mock.Anything, "file-1", mock.MatchedBy(func(reqs []sheets.Request) bool {
		if len(reqs) != 3 {
			return false
		}
		want := []int{1, 2, 4}
		for i, r := range reqs {
			s := r.UpdateCells.Start
			if s.SheetID != 42 || s.RowIndex != want[i] || s.ColumnIndex != 1 {
				return false
			}
		}
		return *reqs[0].UpdateCells.Rows[0].Values[2].UserEnteredValue.StringValue == "Retail"
	})).Return(nil)

	n, err := newSheets(t, client, 42).Apply(context.Background(), rows, results)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSheets_ApplyNothingToWrite(t *testing.T) {
	client := mocks.NewMockClient(t)

	n, err := newSheets(t, client, 0).Apply(context.Background(), [][]string{{"Acme"}}, model.CycleMap{"Other": {}})
	require.NoError(t, err)
	assert.Zero(t, n)
	client.AssertNotCalled(t, "BatchUpdate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSheets_ApplyWriteError(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("BatchUpdate", mock.Anything, "file-1", mock.Anything).Return(errors.New("status 500"))

	n, err := newSheets(t, client, 0).Apply(context.Background(), [][]string{{"Acme"}}, model.CycleMap{"Acme": {}})
	assert.ErrorContains(t, err, "write sheet")
	assert.Zero(t, n)
}

func TestSheets_ResolvesSheetIDOnce(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("GetSpreadsheet", mock.Anything, "file-1").Return(&sheets.Spreadsheet{
		Title:  "Prospects",
		Sheets: []sheets.Sheet{{ID: 0, Title: "Sheet1"}, {ID: 777, Title: "Leads"}},
	}, nil).Once()
	client.On("BatchUpdate", mock.Anything, "file-1", mock.MatchedBy(func(reqs []sheets.Request) bool {
		return reqs[0].UpdateCells.Start.SheetID == 777
	})).Return(nil).Twice()

	ds := newSheets(t, client, -1)
	for range 2 {
		_, err := ds.Apply(context.Background(), [][]string{{"Acme"}}, model.CycleMap{"Acme": {}})
		require.NoError(t, err)
	}
}

func TestSheets_UnknownSheetName(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("GetSpreadsheet", mock.Anything, "file-1").Return(&sheets.Spreadsheet{Title: "Prospects"}, nil)

	_, err := newSheets(t, client, -1).Apply(context.Background(), [][]string{{"Acme"}}, model.CycleMap{"Acme": {}})
	assert.ErrorContains(t, err, `sheet "Leads" not found`)
}

func TestNewSheets_Validation(t *testing.T) {
	_, err := NewSheets(mocks.NewMockClient(t), SheetsConfig{SheetName: "Leads"}, DefaultColumns())
	assert.Error(t, err)
	_, err = NewSheets(mocks.NewMockClient(t), SheetsConfig{SpreadsheetID: "f"}, DefaultColumns())
	assert.Error(t, err)
}

func TestQuoteSheetName(t *testing.T) {
	assert.Equal(t, "Sheet1", quoteSheetName("Sheet1"))
	assert.Equal(t, "'Q3 Leads'", quoteSheetName("Q3 Leads"))
	assert.Equal(t, "'Bob''s'", quoteSheetName("Bob's"))
}

func TestOpen(t *testing.T) {
	_, err := Open(Config{Driver: "csv", Columns: DefaultColumns()}, nil)
	assert.ErrorContains(t, err, "unknown driver")

	_, err = Open(Config{Driver: DriverSheets, Columns: DefaultColumns()}, nil)
	assert.ErrorContains(t, err, "needs a client")

	_, err = Open(Config{Driver: DriverXLSX, Columns: Columns{Name: "A", Profile: "C", Size: "D", Industry: "E"}}, nil)
	assert.Error(t, err)

	ds, err := Open(Config{Driver: DriverXLSX, Columns: DefaultColumns(), XLSX: XLSXConfig{Path: "leads.xlsx"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "xlsx:leads.xlsx", ds.Describe())
}
