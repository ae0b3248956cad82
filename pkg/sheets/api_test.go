package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

type apiRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// newFakeGoogle serves Sheets and Drive calls from handler and records them.
func newFakeGoogle(t *testing.T, handler func(req apiRequest) (int, string)) (*googleAPI, *[]apiRequest) {
	t.Helper()
	var seen []apiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := apiRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)}
		seen = append(seen, req)

		status, resp := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	opts := []option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithHTTPClient(srv.Client())}
	sheetsService, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		t.Fatal(err)
	}
	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return &googleAPI{sheets: sheetsService, drive: driveService}, &seen
}

func TestGoogleAPIFindSpreadsheet(t *testing.T) {
	api, seen := newFakeGoogle(t, func(req apiRequest) (int, string) {
		return 200, `{"files":[{"id":"sheet-42","name":"Bob's Scans"}]}`
	})

	id, found, err := api.FindSpreadsheet(context.Background(), "Bob's Scans")
	if err != nil {
		t.Fatal(err)
	}
	if !found || id != "sheet-42" {
		t.Errorf("got id=%q found=%v", id, found)
	}

	req := (*seen)[0]
	if !strings.HasSuffix(req.Path, "/files") {
		t.Errorf("unexpected path %s", req.Path)
	}
	if !strings.Contains(req.Query, "trashed") || !strings.Contains(req.Query, "Bob%5C%27s") {
		t.Errorf("query not escaped as expected: %s", req.Query)
	}
}

func TestGoogleAPIFindSpreadsheetNone(t *testing.T) {
	api, _ := newFakeGoogle(t, func(apiRequest) (int, string) { return 200, `{"files":[]}` })

	_, found, err := api.FindSpreadsheet(context.Background(), "Missing")
	if err != nil || found {
		t.Errorf("expected not found, got found=%v err=%v", found, err)
	}
}

func TestGoogleAPIFirstWorksheetByIndex(t *testing.T) {
	api, _ := newFakeGoogle(t, func(apiRequest) (int, string) {
		return 200, `{"sheets":[
			{"properties":{"sheetId":7,"title":"Second","index":1}},
			{"properties":{"sheetId":3,"title":"First","index":0}}]}`
	})

	ws, found, err := api.FirstWorksheet(context.Background(), "ss")
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if ws.ID != 3 || ws.Title != "First" {
		t.Errorf("unexpected worksheet %+v", ws)
	}
}

func TestGoogleAPIFirstRow(t *testing.T) {
	api, seen := newFakeGoogle(t, func(apiRequest) (int, string) {
		return 200, `{"range":"'Sheet1'!A1:C1","majorDimension":"ROWS","values":[["Object ID","Name","Timestamp"]]}`
	})

	row, err := api.FirstRow(context.Background(), "ss", Worksheet{Title: "Sheet1"})
	if err != nil {
		t.Fatal(err)
	}
	if !equalRows(row, []string{"Object ID", "Name", "Timestamp"}) {
		t.Errorf("unexpected row %v", row)
	}
	if !strings.Contains((*seen)[0].Path, "/v4/spreadsheets/ss/values/") {
		t.Errorf("unexpected path %s", (*seen)[0].Path)
	}
}

func TestGoogleAPIAppendRow(t *testing.T) {
	api, seen := newFakeGoogle(t, func(apiRequest) (int, string) { return 200, `{}` })

	err := api.AppendRow(context.Background(), "ss", Worksheet{Title: "Sheet1"}, []string{"OBJ-1", "Drill", "2024-01-01 10:00:00"})
	if err != nil {
		t.Fatal(err)
	}

	req := (*seen)[0]
	if req.Method != http.MethodPost || !strings.HasSuffix(req.Path, ":append") {
		t.Errorf("unexpected request %s %s", req.Method, req.Path)
	}
	if !strings.Contains(req.Query, "valueInputOption=RAW") || !strings.Contains(req.Query, "insertDataOption=INSERT_ROWS") {
		t.Errorf("unexpected query %s", req.Query)
	}

	var body struct {
		Values [][]string `json:"values"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		t.Fatalf("bad body %s: %v", req.Body, err)
	}
	if len(body.Values) != 1 || body.Values[0][1] != "Drill" {
		t.Errorf("unexpected values %v", body.Values)
	}
}

func TestGoogleAPIInsertRow(t *testing.T) {
	api, seen := newFakeGoogle(t, func(apiRequest) (int, string) { return 200, `{}` })

	if err := api.InsertRow(context.Background(), "ss", Worksheet{ID: 0, Title: "Sheet1"}, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if len(*seen) != 2 {
		t.Fatalf("expected batchUpdate then update, got %d requests", len(*seen))
	}
	if !strings.HasSuffix((*seen)[0].Path, ":batchUpdate") {
		t.Errorf("first call should be batchUpdate, got %s", (*seen)[0].Path)
	}
	if !strings.Contains((*seen)[0].Body, `"sheetId":0`) || !strings.Contains((*seen)[0].Body, `"startIndex":0`) {
		t.Errorf("zero-valued range fields must be sent: %s", (*seen)[0].Body)
	}
	if (*seen)[1].Method != http.MethodPut {
		t.Errorf("second call should be a values update, got %s", (*seen)[1].Method)
	}
}

func TestGoogleAPIErrorMessage(t *testing.T) {
	api, _ := newFakeGoogle(t, func(apiRequest) (int, string) {
		return 403, `{"error":{"code":403,"message":"The caller does not have permission","status":"PERMISSION_DENIED"}}`
	})

	err := api.AppendRow(context.Background(), "ss", Worksheet{Title: "Sheet1"}, []string{"x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != 403 || apiErr.Message != "The caller does not have permission" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "append row") {
		t.Errorf("error should name the operation: %v", err)
	}
}

func TestA1RangeAndQueryEscaping(t *testing.T) {
	if got := a1Range("Bob's", "A1"); got != "'Bob''s'!A1" {
		t.Errorf("a1Range = %q", got)
	}
	if got := escapeQuery(`a'b\c`); got != `a\'b\\c` {
		t.Errorf("escapeQuery = %q", got)
	}
}

func TestWrapAPIErrorNil(t *testing.T) {
	if wrapAPIError("op", nil) != nil {
		t.Error("nil error should stay nil")
	}
	if err := wrapAPIError("op", errors.New("dial tcp: refused")); err == nil || !strings.Contains(err.Error(), "op") {
		t.Errorf("transport errors should be wrapped with the op, got %v", err)
	}
}
