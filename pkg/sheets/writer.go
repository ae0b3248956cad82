package sheets

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/teslashibe/qrlog/internal/log"
	"github.com/teslashibe/qrlog/pkg/record"
)

// Default worksheet created when a spreadsheet has none.
const (
	DefaultWorksheet     = "Sheet1"
	DefaultWorksheetRows = 100
	DefaultWorksheetCols = 20
)

// HeaderAction describes what Append did with row 1.
type HeaderAction int

const (
	// HeadersPresent means row 1 already matched.
	HeadersPresent HeaderAction = iota
	// HeadersInserted means row 1 was empty and headers were inserted above existing rows.
	HeadersInserted
	// HeadersWritten means row 1 held only blank cells and was overwritten.
	HeadersWritten
	// HeadersMismatch means row 1 holds other headers; the row was appended anyway.
	HeadersMismatch
)

func (a HeaderAction) String() string {
	switch a {
	case HeadersPresent:
		return "present"
	case HeadersInserted:
		return "inserted"
	case HeadersWritten:
		return "written"
	case HeadersMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// MarshalText renders the action by name in JSON.
func (a HeaderAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// decideHeaders compares row 1 with the wanted headers.
func decideHeaders(existing, want []string) HeaderAction {
	if len(existing) == 0 {
		return HeadersInserted
	}
	if equalRows(existing, want) {
		return HeadersPresent
	}
	for _, h := range existing {
		if strings.TrimSpace(h) != "" {
			return HeadersMismatch
		}
	}
	return HeadersWritten
}

func equalRows(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Result describes a successful append.
type Result struct {
	SpreadsheetID      string       `json:"spreadsheet_id"`
	URL                string       `json:"url"`
	Worksheet          string       `json:"worksheet"`
	CreatedSpreadsheet bool         `json:"created_spreadsheet"`
	CreatedWorksheet   bool         `json:"created_worksheet"`
	Headers            HeaderAction `json:"headers"`
}

// Writer appends records to a spreadsheet found by title.
type Writer struct {
	api           func() (spreadsheetAPI, error)
	onAuthExpired func()
	logger        *slog.Logger
}

// NewWriter creates a writer that uses the client's current token.
func NewWriter(c *Client) *Writer {
	return &Writer{
		api:           c.sheetsAPI,
		onAuthExpired: c.invalidateToken,
		logger:        log.With("component", "sheets"),
	}
}

// Append opens (or creates) the spreadsheet titled sheetName, makes sure its
// first worksheet carries the header row, and appends rec.
func (w *Writer) Append(ctx context.Context, sheetName string, rec record.Record) (Result, error) {
	res, err := w.append(ctx, sheetName, rec)
	if errors.Is(err, ErrAuthExpired) && w.onAuthExpired != nil {
		w.onAuthExpired()
	}
	return res, err
}

func (w *Writer) append(ctx context.Context, sheetName string, rec record.Record) (Result, error) {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		return Result{}, ErrSheetNameRequired
	}

	api, err := w.api()
	if err != nil {
		return Result{}, err
	}

	var res Result
	logger := w.logger.With("spreadsheet", sheetName)

	id, found, err := api.FindSpreadsheet(ctx, sheetName)
	if err != nil {
		return res, err
	}
	if !found {
		logger.Info("spreadsheet not found, creating it")
		if id, err = api.CreateSpreadsheet(ctx, sheetName); err != nil {
			return res, err
		}
		res.CreatedSpreadsheet = true
	}
	res.SpreadsheetID = id
	res.URL = SpreadsheetURL(id)

	ws, found, err := api.FirstWorksheet(ctx, id)
	if err != nil {
		return res, err
	}
	if !found {
		logger.Info("worksheet not found, creating it", "worksheet", DefaultWorksheet)
		if ws, err = api.AddWorksheet(ctx, id, DefaultWorksheet, DefaultWorksheetRows, DefaultWorksheetCols); err != nil {
			return res, err
		}
		res.CreatedWorksheet = true
	}
	res.Worksheet = ws.Title

	existing, err := api.FirstRow(ctx, id, ws)
	if err != nil {
		if errors.Is(err, ErrAuthExpired) {
			return res, err
		}
		logger.Warn("could not read headers, treating sheet as empty", "error", err)
		existing = nil
	}

	headers := record.Headers()
	res.Headers = decideHeaders(existing, headers)
	switch res.Headers {
	case HeadersInserted:
		err = api.InsertRow(ctx, id, ws, headers)
	case HeadersWritten:
		err = api.UpdateFirstRow(ctx, id, ws, headers)
	case HeadersMismatch:
		logger.Warn("headers do not match, appending anyway", "existing", existing)
	}
	if err != nil {
		return res, err
	}

	if err := api.AppendRow(ctx, id, ws, rec.Row()); err != nil {
		return res, err
	}

	logger.Info("row appended", "worksheet", ws.Title, "object_id", rec.ObjectID, "headers", res.Headers.String())
	return res, nil
}
