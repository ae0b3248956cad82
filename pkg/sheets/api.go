package sheets

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/drive/v3"
	gsheets "google.golang.org/api/sheets/v4"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// Worksheet identifies one tab of a spreadsheet.
type Worksheet struct {
	ID    int64
	Title string
}

// spreadsheetAPI is the slice of the Google APIs the writer needs.
type spreadsheetAPI interface {
	FindSpreadsheet(ctx context.Context, title string) (id string, found bool, err error)
	CreateSpreadsheet(ctx context.Context, title string) (id string, err error)
	FirstWorksheet(ctx context.Context, spreadsheetID string) (ws Worksheet, found bool, err error)
	AddWorksheet(ctx context.Context, spreadsheetID, title string, rows, cols int64) (Worksheet, error)
	FirstRow(ctx context.Context, spreadsheetID string, ws Worksheet) ([]string, error)
	InsertRow(ctx context.Context, spreadsheetID string, ws Worksheet, values []string) error
	UpdateFirstRow(ctx context.Context, spreadsheetID string, ws Worksheet, values []string) error
	AppendRow(ctx context.Context, spreadsheetID string, ws Worksheet, values []string) error
}

// googleAPI implements spreadsheetAPI with the Sheets v4 and Drive v3 services.
type googleAPI struct {
	sheets *gsheets.Service
	drive  *drive.Service
}

func (g *googleAPI) FindSpreadsheet(ctx context.Context, title string) (string, bool, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(title), spreadsheetMimeType)

	res, err := g.drive.Files.List().
		Q(q).
		Fields("files(id, name)").
		OrderBy("modifiedTime desc").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, wrapAPIError("find spreadsheet", err)
	}
	if len(res.Files) == 0 {
		return "", false, nil
	}
	return res.Files[0].Id, true, nil
}

func (g *googleAPI) CreateSpreadsheet(ctx context.Context, title string) (string, error) {
	created, err := g.sheets.Spreadsheets.Create(&gsheets.Spreadsheet{
		Properties: &gsheets.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", wrapAPIError("create spreadsheet", err)
	}
	return created.SpreadsheetId, nil
}

func (g *googleAPI) FirstWorksheet(ctx context.Context, spreadsheetID string) (Worksheet, bool, error) {
	ss, err := g.sheets.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties(sheetId,title,index)").
		Context(ctx).
		Do()
	if err != nil {
		return Worksheet{}, false, wrapAPIError("get spreadsheet", err)
	}

	var first *gsheets.SheetProperties
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		if first == nil || sh.Properties.Index < first.Index {
			first = sh.Properties
		}
	}
	if first == nil {
		return Worksheet{}, false, nil
	}
	return Worksheet{ID: first.SheetId, Title: first.Title}, true, nil
}

func (g *googleAPI) AddWorksheet(ctx context.Context, spreadsheetID, title string, rows, cols int64) (Worksheet, error) {
	res, err := g.sheets.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{
					Title: title,
					GridProperties: &gsheets.GridProperties{
						RowCount:    rows,
						ColumnCount: cols,
					},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return Worksheet{}, wrapAPIError("add worksheet", err)
	}

	if len(res.Replies) > 0 && res.Replies[0].AddSheet != nil && res.Replies[0].AddSheet.Properties != nil {
		p := res.Replies[0].AddSheet.Properties
		return Worksheet{ID: p.SheetId, Title: p.Title}, nil
	}
	return Worksheet{Title: title}, nil
}

func (g *googleAPI) FirstRow(ctx context.Context, spreadsheetID string, ws Worksheet) ([]string, error) {
	vr, err := g.sheets.Spreadsheets.Values.Get(spreadsheetID, a1Range(ws.Title, "1:1")).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("read header row", err)
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}

	row := make([]string, len(vr.Values[0]))
	for i, v := range vr.Values[0] {
		row[i] = fmt.Sprint(v)
	}
	return row, nil
}

func (g *googleAPI) InsertRow(ctx context.Context, spreadsheetID string, ws Worksheet, values []string) error {
	_, err := g.sheets.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			InsertDimension: &gsheets.InsertDimensionRequest{
				Range: &gsheets.DimensionRange{
					SheetId:         ws.ID,
					Dimension:       "ROWS",
					StartIndex:      0,
					EndIndex:        1,
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return wrapAPIError("insert header row", err)
	}
	return g.UpdateFirstRow(ctx, spreadsheetID, ws, values)
}

func (g *googleAPI) UpdateFirstRow(ctx context.Context, spreadsheetID string, ws Worksheet, values []string) error {
	_, err := g.sheets.Spreadsheets.Values.Update(spreadsheetID, a1Range(ws.Title, "A1"), valueRange(values)).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return wrapAPIError("write header row", err)
}

func (g *googleAPI) AppendRow(ctx context.Context, spreadsheetID string, ws Worksheet, values []string) error {
	_, err := g.sheets.Spreadsheets.Values.Append(spreadsheetID, a1Range(ws.Title, "A1"), valueRange(values)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return wrapAPIError("append row", err)
}

func valueRange(values []string) *gsheets.ValueRange {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return &gsheets.ValueRange{Values: [][]interface{}{row}}
}

// a1Range quotes a sheet title for A1 notation.
func a1Range(sheet, rng string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + rng
}

// escapeQuery escapes a value for a Drive query string literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
