package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheet-enricher/internal/resilience"
)

const defaultBaseURL = "https://sheets.googleapis.com"

// Client reads and writes spreadsheet cells.
type Client interface {
	// GetValues returns the formatted cell values in a1Range, one slice per
	// row. Trailing empty cells are omitted by the service.
	GetValues(ctx context.Context, spreadsheetID, a1Range string) ([][]string, error)
	// BatchUpdate applies requests in one call.
	BatchUpdate(ctx context.Context, spreadsheetID string, requests []Request) error
	// GetSpreadsheet returns the spreadsheet title and its sheets.
	GetSpreadsheet(ctx context.Context, spreadsheetID string) (*Spreadsheet, error)
}

// Request is one entry of a batchUpdate call.
type Request struct {
	UpdateCells *UpdateCellsRequest `json:"updateCells,omitempty"`
}

// UpdateCellsRequest overwrites cells starting at Start.
type UpdateCellsRequest struct {
	Rows   []RowData      `json:"rows"`
	Fields string         `json:"fields"`
	Start  GridCoordinate `json:"start"`
}

// RowData holds a row of cells.
type RowData struct {
	Values []CellData `json:"values"`
}

// CellData holds a single cell.
type CellData struct {
	UserEnteredValue *ExtendedValue `json:"userEnteredValue,omitempty"`
}

// ExtendedValue is a typed cell value.
type ExtendedValue struct {
	StringValue *string `json:"stringValue,omitempty"`
}

// GridCoordinate is a zero-based cell position.
type GridCoordinate struct {
	SheetID     int64 `json:"sheetId"`
	RowIndex    int   `json:"rowIndex"`
	ColumnIndex int   `json:"columnIndex"`
}

// Spreadsheet describes a spreadsheet document.
type Spreadsheet struct {
	ID     string  `json:"spreadsheetId"`
	Title  string  `json:"-"`
	Sheets []Sheet `json:"-"`
}

// Sheet is one tab of a spreadsheet.
type Sheet struct {
	ID    int64
	Title string
	Index int
}

// SheetID returns the ID of the sheet titled title.
func (s *Spreadsheet) SheetID(title string) (int64, bool) {
	for _, sh := range s.Sheets {
		if sh.Title == title {
			return sh.ID, true
		}
	}
	return 0, false
}

// UpdateRow builds a request writing values as strings into one row,
// starting at the given zero-based row and column.
func UpdateRow(sheetID int64, rowIndex, columnIndex int, values []string) Request {
	cells := make([]CellData, len(values))
	for i := range values {
		v := values[i]
		cells[i] = CellData{UserEnteredValue: &ExtendedValue{StringValue: &v}}
	}
	return Request{UpdateCells: &UpdateCellsRequest{
		Rows:   []RowData{{Values: cells}},
		Fields: "userEnteredValue",
		Start:  GridCoordinate{SheetID: sheetID, RowIndex: rowIndex, ColumnIndex: columnIndex},
	}}
}

// Option configures the Sheets client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client, normally one carrying OAuth2
// credentials.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	http    *http.Client
	baseURL string
	retry   resilience.RetryConfig
}

// NewClient creates a Sheets API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: defaultBaseURL,
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type valueRange struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension"`
	Values         [][]any `json:"values"`
}

func (c *httpClient) GetValues(ctx context.Context, spreadsheetID, a1Range string) ([][]string, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?majorDimension=ROWS",
		c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(a1Range))

	var vr valueRange
	if err := c.do(ctx, http.MethodGet, u, nil, &vr); err != nil {
		return nil, eris.Wrapf(err, "sheets: get values %s", a1Range)
	}

	rows := make([][]string, len(vr.Values))
	for i, raw := range vr.Values {
		row := make([]string, len(raw))
		for j, v := range raw {
			row[j] = cellString(v)
		}
		rows[i] = row
	}
	return rows, nil
}

func (c *httpClient) BatchUpdate(ctx context.Context, spreadsheetID string, requests []Request) error {
	if len(requests) == 0 {
		return nil
	}
	body, err := json.Marshal(struct {
		Requests []Request `json:"requests"`
	}{requests})
	if err != nil {
		return eris.Wrap(err, "sheets: marshal batch update")
	}
	u := fmt.Sprintf("%s/v4/spreadsheets/%s:batchUpdate", c.baseURL, url.PathEscape(spreadsheetID))
	if err := c.do(ctx, http.MethodPost, u, body, nil); err != nil {
		return eris.Wrapf(err, "sheets: batch update (%d requests)", len(requests))
	}
	return nil
}

func (c *httpClient) GetSpreadsheet(ctx context.Context, spreadsheetID string) (*Spreadsheet, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s?fields=%s", c.baseURL, url.PathEscape(spreadsheetID),
		url.QueryEscape("spreadsheetId,properties.title,sheets.properties"))

	var raw struct {
		SpreadsheetID string `json:"spreadsheetId"`
		Properties    struct {
			Title string `json:"title"`
		} `json:"properties"`
		Sheets []struct {
			Properties struct {
				SheetID int64  `json:"sheetId"`
				Title   string `json:"title"`
				Index   int    `json:"index"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &raw); err != nil {
		return nil, eris.Wrapf(err, "sheets: get spreadsheet %s", spreadsheetID)
	}

	ss := &Spreadsheet{ID: raw.SpreadsheetID, Title: raw.Properties.Title}
	for _, s := range raw.Sheets {
		ss.Sheets = append(ss.Sheets, Sheet{ID: s.Properties.SheetID, Title: s.Properties.Title, Index: s.Properties.Index})
	}
	return ss, nil
}

// do sends the request, retrying rate limits and server errors, and decodes
// a JSON response into out when out is non-nil.
func (c *httpClient) do(ctx context.Context, method, u string, body []byte, out any) error {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rdr)
		if err != nil {
			return resilience.Permanent(eris.Wrap(err, "create request"))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "http request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			err := eris.Errorf("status %d: %s", resp.StatusCode, string(respBody))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return resilience.Permanent(err)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resilience.Permanent(eris.Wrap(err, "decode response"))
		}
		return nil
	})
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
