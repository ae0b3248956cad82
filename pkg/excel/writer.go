// Package excel appends scan records to a local .xlsx workbook.
package excel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/teslashibe/qrlog/internal/log"
	"github.com/teslashibe/qrlog/pkg/record"
	"github.com/xuri/excelize/v2"
)

// DefaultPath is the workbook used when none is configured.
const DefaultPath = "qr_scans.xlsx"

// ErrFileLocked is returned when the workbook cannot be written,
// usually because it is open in a spreadsheet application.
var ErrFileLocked = errors.New("permission denied: close the workbook if it is open and try again")

// Writer appends records to the active sheet of one workbook.
type Writer struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewWriter creates a writer for the workbook at path.
func NewWriter(path string) *Writer {
	if path == "" {
		path = DefaultPath
	}
	return &Writer{
		path:   path,
		logger: log.With("component", "excel"),
	}
}

// Path returns the workbook path.
func (w *Writer) Path() string {
	return w.path
}

// Append adds rec as a new row. A new workbook gets the header row first;
// an existing workbook's headers are left untouched.
func (w *Writer) Append(ctx context.Context, rec record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, sheet, created, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	next := len(rows) + 1

	if created {
		if err := setRow(f, sheet, next, record.Headers()); err != nil {
			return err
		}
		next++
	}

	if err := setRow(f, sheet, next, rec.Row()); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return mapWriteError(w.path, err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return mapWriteError(w.path, err)
	}

	w.logger.Info("row appended", "path", w.path, "sheet", sheet, "row", next, "object_id", rec.ObjectID)
	return nil
}

// open loads the workbook, or creates an empty one if the file is missing.
func (w *Writer) open() (*excelize.File, string, bool, error) {
	_, err := os.Stat(w.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f := excelize.NewFile()
		return f, f.GetSheetName(f.GetActiveSheetIndex()), true, nil
	case err != nil:
		return nil, "", false, mapWriteError(w.path, err)
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, "", false, mapWriteError(w.path, err)
		}
		return nil, "", false, fmt.Errorf("open workbook %s: %w", w.path, err)
	}
	return f, f.GetSheetName(f.GetActiveSheetIndex()), false, nil
}

// ReadRows returns every row of the workbook's active sheet.
func ReadRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	return f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}

	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}

	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func mapWriteError(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w (%s): %v", ErrFileLocked, path, err)
	}
	return fmt.Errorf("save workbook %s: %w", path, err)
}
