// Package session holds the front-end independent state of a qrlog run:
// the last scanned record, where it gets saved, and the webcam scan in
// flight. The terminal UI, the web dashboard and the CLI all drive it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/qrlog/internal/config"
	"github.com/teslashibe/qrlog/internal/log"
	"github.com/teslashibe/qrlog/pkg/excel"
	"github.com/teslashibe/qrlog/pkg/journal"
	"github.com/teslashibe/qrlog/pkg/record"
	"github.com/teslashibe/qrlog/pkg/scanner"
	"github.com/teslashibe/qrlog/pkg/sheets"
)

var (
	// ErrNoRecord is returned when saving before anything was scanned.
	ErrNoRecord = errors.New("no data has been scanned yet")

	// ErrScanInProgress is returned when a webcam scan is already running.
	ErrScanInProgress = errors.New("a webcam scan is already running")

	// ErrGoogleUnavailable means no Google client could be configured.
	ErrGoogleUnavailable = errors.New("google sheets is not available")

	// ErrInvalidExcelPath is returned for a workbook path without an .xlsx extension.
	ErrInvalidExcelPath = errors.New("excel path must end in .xlsx")
)

// Scanner decodes QR codes from files, uploads and frame sources.
type Scanner interface {
	ScanFile(path string) (record.Record, string, error)
	ScanBytes(data []byte) (record.Record, string, error)
	Watch(ctx context.Context, src scanner.FrameSource, hooks scanner.Hooks) (record.Record, error)
}

// SheetsAppender appends records to a Google spreadsheet.
type SheetsAppender interface {
	Append(ctx context.Context, sheetName string, rec record.Record) (sheets.Result, error)
}

// Authenticator runs the Google consent flow.
type Authenticator interface {
	Authenticate(ctx context.Context, open func(authURL string)) error
	IsAuthenticated() bool
}

// Options configures a Session. Scanner is required.
type Options struct {
	ExcelPath string
	SheetName string
	Camera    int

	Scanner Scanner

	// OpenCamera opens the webcam. Defaults to scanner.OpenWebcam.
	OpenCamera func(device int) (scanner.FrameSource, error)

	// Google and Sheets are nil when Google is not configured; GoogleErr
	// then says why.
	Google    Authenticator
	Sheets    SheetsAppender
	GoogleErr error

	// Journal records scans and saves when set.
	Journal journal.Store
}

// Session is the application controller.
type Session struct {
	scanner    Scanner
	openCamera func(int) (scanner.FrameSource, error)
	camera     int
	google     Authenticator
	sheets     SheetsAppender
	googleErr  error
	journal    journal.Store

	mu         sync.Mutex
	current    record.Record
	hasRecord  bool
	entryID    string
	excelPath  string
	sheetName  string
	lastStatus Message
	listeners  []Listener

	// Webcam scan in flight
	scanCancel context.CancelFunc
	scanDone   chan struct{}
	scanErr    error

	logger *slog.Logger
}

// New creates a session.
func New(opts Options) (*Session, error) {
	if opts.Scanner == nil {
		return nil, errors.New("session: scanner is required")
	}
	if opts.ExcelPath == "" {
		opts.ExcelPath = excel.DefaultPath
	}
	if opts.SheetName == "" {
		opts.SheetName = config.DefaultSheetName
	}
	if opts.OpenCamera == nil {
		opts.OpenCamera = openWebcam
	}
	if opts.Google == nil && opts.GoogleErr == nil {
		opts.GoogleErr = sheets.ErrCredentialsMissing
	}

	return &Session{
		scanner:    opts.Scanner,
		openCamera: opts.OpenCamera,
		camera:     opts.Camera,
		google:     opts.Google,
		sheets:     opts.Sheets,
		googleErr:  opts.GoogleErr,
		journal:    opts.Journal,
		excelPath:  opts.ExcelPath,
		sheetName:  opts.SheetName,
		lastStatus: Message{Level: LevelInfo, Text: "Ready.", Time: time.Now()},
		logger:     log.With("component", "session"),
	}, nil
}

func openWebcam(device int) (scanner.FrameSource, error) {
	w, err := scanner.OpenWebcam(device)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// AddListener subscribes l to session events.
func (s *Session) AddListener(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Session) snapshotListeners() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Listener(nil), s.listeners...)
}

// setStatus updates the status line, logs it and notifies listeners.
func (s *Session) setStatus(level Level, format string, args ...any) {
	msg := Message{Level: level, Text: fmt.Sprintf(format, args...), Time: time.Now()}

	s.mu.Lock()
	s.lastStatus = msg
	s.mu.Unlock()

	switch level {
	case LevelError:
		s.logger.Error(msg.Text)
	case LevelWarning:
		s.logger.Warn(msg.Text)
	default:
		s.logger.Info(msg.Text)
	}

	for _, l := range s.snapshotListeners() {
		if l.OnStatus != nil {
			l.OnStatus(msg)
		}
	}
}

// ScanFile decodes a QR code from an image file. A file without a QR code
// clears the current record; an invalid payload leaves it unchanged.
func (s *Session) ScanFile(path string) (record.Record, error) {
	rec, payload, err := s.scanner.ScanFile(path)
	return s.finishScan(rec, payload, err, journal.SourceFile, filepath.Base(path))
}

// ScanUpload decodes a QR code from encoded image bytes.
func (s *Session) ScanUpload(data []byte, name string) (record.Record, error) {
	if name == "" {
		name = "uploaded image"
	}
	rec, payload, err := s.scanner.ScanBytes(data)
	return s.finishScan(rec, payload, err, journal.SourceUpload, name)
}

func (s *Session) finishScan(rec record.Record, payload string, err error, src journal.Source, name string) (record.Record, error) {
	switch {
	case errors.Is(err, scanner.ErrNoCode):
		s.clearRecord()
		s.setStatus(LevelWarning, "No QR code found in %s.", name)
		return record.Record{}, err
	case errors.Is(err, record.ErrInvalidFormat):
		s.setStatus(LevelError, "Invalid QR data format. Expected 'ObjectID,ObjectName'. Found: %q", payload)
		return record.Record{}, err
	case err != nil:
		s.setStatus(LevelError, "Error reading image file: %v", err)
		return record.Record{}, err
	}

	s.setStatus(LevelInfo, "QR detected in %s: %s", name, payload)
	s.accept(rec, src)
	return rec, nil
}

func (s *Session) clearRecord() {
	s.mu.Lock()
	s.current = record.Record{}
	s.hasRecord = false
	s.entryID = ""
	s.mu.Unlock()
}

// accept makes rec the current record and journals it.
func (s *Session) accept(rec record.Record, src journal.Source) {
	entry := journal.Entry{Record: rec, Source: src, ScannedAt: time.Now()}
	if s.journal != nil {
		added, err := s.journal.Add(rec, src)
		if err != nil {
			s.logger.Warn("failed to journal scan", "error", err)
		}
		entry = added
	}

	s.mu.Lock()
	s.current = rec
	s.hasRecord = true
	s.entryID = entry.ID
	s.mu.Unlock()

	s.setStatus(LevelSuccess, "QR code successfully scanned and parsed.")
	for _, l := range s.snapshotListeners() {
		if l.OnScan != nil {
			l.OnScan(entry)
		}
	}
}

// ScanWebcam opens the webcam and polls it in the background until a valid
// QR code is read, StopWebcam is called, or ctx ends. Preview frames go to
// onFrame (may be nil) and to listeners.
func (s *Session) ScanWebcam(ctx context.Context, onFrame func(jpeg []byte)) error {
	s.mu.Lock()
	if s.scanCancel != nil {
		s.mu.Unlock()
		return ErrScanInProgress
	}
	// Reserve the slot while the camera opens.
	scanCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.scanCancel = cancel
	s.scanDone = done
	s.scanErr = nil
	device := s.camera
	s.mu.Unlock()

	s.setStatus(LevelInfo, "Starting webcam...")
	src, err := s.openCamera(device)
	if err != nil {
		cancel()
		s.endScan(err)
		s.setStatus(LevelError, "Could not open webcam: %v", err)
		return err
	}

	s.notifyWebcam(true)
	s.setStatus(LevelInfo, "Webcam active. Looking for QR code...")

	hooks := scanner.Hooks{
		OnFrame: func(jpeg []byte) {
			if onFrame != nil {
				onFrame(jpeg)
			}
			for _, l := range s.snapshotListeners() {
				if l.OnFrame != nil {
					l.OnFrame(jpeg)
				}
			}
		},
		OnDetect: func(payload string) {
			s.setStatus(LevelInfo, "QR detected: %s", payload)
		},
		OnInvalid: func(payload string, err error) {
			s.setStatus(LevelError, "Invalid QR data format. Expected 'ObjectID,ObjectName'. Found: %q", payload)
		},
	}

	go func() {
		defer cancel()

		rec, err := s.scanner.Watch(scanCtx, src, hooks)
		switch {
		case err == nil:
			s.accept(rec, journal.SourceWebcam)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			s.setStatus(LevelInfo, "Webcam stopped.")
		default:
			s.setStatus(LevelError, "Webcam scanning error: %v", err)
		}

		s.notifyWebcam(false)
		s.endScan(err)
	}()

	return nil
}

func (s *Session) endScan(err error) {
	s.mu.Lock()
	s.scanErr = err
	s.scanCancel = nil
	done := s.scanDone
	s.mu.Unlock()
	close(done)
}

func (s *Session) notifyWebcam(active bool) {
	for _, l := range s.snapshotListeners() {
		if l.OnWebcam != nil {
			l.OnWebcam(active)
		}
	}
}

// StopWebcam cancels a running webcam scan. It reports whether one was running.
func (s *Session) StopWebcam() bool {
	s.mu.Lock()
	cancel := s.scanCancel
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// WaitWebcam blocks until the most recent webcam scan finishes and returns
// its outcome. It returns nil immediately if no scan was started.
func (s *Session) WaitWebcam(ctx context.Context) error {
	s.mu.Lock()
	done := s.scanDone
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanErr
}

// Current returns the current record and whether there is one.
func (s *Session) Current() (record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasRecord
}

// pending returns what a save needs under one lock.
func (s *Session) pending() (record.Record, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.entryID, s.hasRecord
}

// SaveExcel appends the current record to the local workbook.
func (s *Session) SaveExcel(ctx context.Context) error {
	rec, entryID, ok := s.pending()
	if !ok {
		s.setStatus(LevelWarning, "No data has been scanned yet.")
		return ErrNoRecord
	}

	s.mu.Lock()
	path := s.excelPath
	s.mu.Unlock()

	if err := excel.NewWriter(path).Append(ctx, rec); err != nil {
		if errors.Is(err, excel.ErrFileLocked) {
			s.setStatus(LevelError, "Permission denied for %s. Is the file open?", path)
		} else {
			s.setStatus(LevelError, "Error saving to Excel: %v", err)
		}
		s.markFailed(entryID, journal.SinkExcel, err)
		return err
	}

	s.setStatus(LevelSuccess, "Data saved to Excel: %s", path)
	s.markSaved(entryID, journal.SinkExcel, path)
	return nil
}

// SaveSheets appends the current record to the configured Google Sheet.
func (s *Session) SaveSheets(ctx context.Context) (sheets.Result, error) {
	rec, entryID, ok := s.pending()
	if !ok {
		s.setStatus(LevelWarning, "No data has been scanned yet.")
		return sheets.Result{}, ErrNoRecord
	}

	if s.google == nil || s.sheets == nil {
		s.setStatus(LevelError, "Google Sheets unavailable: %v", s.googleErr)
		return sheets.Result{}, fmt.Errorf("%w: %v", ErrGoogleUnavailable, s.googleErr)
	}
	if !s.google.IsAuthenticated() {
		s.setStatus(LevelError, "Not authenticated with Google Sheets. Please authenticate first.")
		return sheets.Result{}, sheets.ErrNotAuthenticated
	}

	s.mu.Lock()
	name := strings.TrimSpace(s.sheetName)
	s.mu.Unlock()

	if name == "" {
		s.setStatus(LevelError, "Google Sheet name is empty.")
		return sheets.Result{}, sheets.ErrSheetNameRequired
	}

	s.setStatus(LevelInfo, "Accessing Google Sheet: %s...", name)
	res, err := s.sheets.Append(ctx, name, rec)
	if err != nil {
		var apiErr *sheets.APIError
		switch {
		case errors.As(err, &apiErr):
			s.setStatus(LevelError, "Google Sheets API Error: %s", apiErr.Message)
		case errors.Is(err, sheets.ErrAuthExpired):
			s.setStatus(LevelError, "Google authorization expired. Please authenticate again.")
		default:
			s.setStatus(LevelError, "Error saving to Google Sheets: %v", err)
		}
		s.markFailed(entryID, journal.SinkSheets, err)
		return res, err
	}

	if res.Headers == sheets.HeadersMismatch {
		s.setStatus(LevelWarning, "Headers in %s do not match. Data appended anyway.", name)
	}
	s.setStatus(LevelSuccess, "Data saved to Google Sheet: %s (%s)", name, res.Worksheet)
	s.markSaved(entryID, journal.SinkSheets, name)
	return res, nil
}

func (s *Session) markSaved(id string, sink journal.Sink, target string) {
	if s.journal == nil || id == "" {
		return
	}
	if err := s.journal.MarkSaved(id, sink, target); err != nil {
		s.logger.Warn("failed to journal save", "sink", sink, "error", err)
	}
}

func (s *Session) markFailed(id string, sink journal.Sink, cause error) {
	if s.journal == nil || id == "" {
		return
	}
	if err := s.journal.MarkFailed(id, sink, cause); err != nil {
		s.logger.Warn("failed to journal save failure", "sink", sink, "error", err)
	}
}

// SetExcelPath changes the workbook path. A path without an extension gets
// ".xlsx" appended.
func (s *Session) SetExcelPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		s.setStatus(LevelInfo, "Excel path selection cancelled.")
		return "", ErrInvalidExcelPath
	}

	switch ext := filepath.Ext(path); {
	case ext == "":
		path += ".xlsx"
	case !strings.EqualFold(ext, ".xlsx"):
		s.setStatus(LevelError, "Excel path must end in .xlsx: %s", path)
		return "", fmt.Errorf("%w: %s", ErrInvalidExcelPath, path)
	}

	s.mu.Lock()
	s.excelPath = path
	s.mu.Unlock()

	s.setStatus(LevelInfo, "Excel save path set to: %s", path)
	return path, nil
}

// SetSheetName changes the Google spreadsheet title.
func (s *Session) SetSheetName(name string) {
	name = strings.TrimSpace(name)

	s.mu.Lock()
	s.sheetName = name
	s.mu.Unlock()

	s.setStatus(LevelInfo, "Google Sheet name set to: %s", name)
}

// Authenticate runs the Google consent flow, or refreshes a stored token.
func (s *Session) Authenticate(ctx context.Context, open func(authURL string)) error {
	if s.google == nil {
		s.setStatus(LevelError, "Google Sheets unavailable: %v", s.googleErr)
		return fmt.Errorf("%w: %v", ErrGoogleUnavailable, s.googleErr)
	}

	s.setStatus(LevelInfo, "Authenticating Google Sheets...")
	if err := s.google.Authenticate(ctx, open); err != nil {
		s.setStatus(LevelError, "Google Sheets authentication failed: %v", err)
		return err
	}

	s.setStatus(LevelSuccess, "Google Sheets authenticated successfully.")
	return nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() State {
	authenticated := s.google != nil && s.google.IsAuthenticated()
	count := 0
	if s.journal != nil {
		count = s.journal.Count()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Record:        s.current,
		HasRecord:     s.hasRecord,
		EntryID:       s.entryID,
		ExcelPath:     s.excelPath,
		SheetName:     s.sheetName,
		Scanning:      s.scanCancel != nil,
		GoogleEnabled: s.google != nil,
		Authenticated: authenticated,
		LastStatus:    s.lastStatus,
		JournalCount:  count,
	}
}

// Journal returns the scan journal, or nil.
func (s *Session) Journal() journal.Store {
	return s.journal
}

// Close stops any webcam scan and waits for it to finish.
func (s *Session) Close() {
	if s.StopWebcam() {
		s.WaitWebcam(context.Background())
	}
}
