package web

import (
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/qrlog/pkg/excel"
	"github.com/teslashibe/qrlog/pkg/journal"
	"github.com/teslashibe/qrlog/pkg/record"
	"github.com/teslashibe/qrlog/pkg/scanner"
	"github.com/teslashibe/qrlog/pkg/session"
	"github.com/teslashibe/qrlog/pkg/sheets"
)

// handleStatus returns the session state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.session.Status())
}

// handleScanUpload decodes a QR code from an uploaded image ("image" field)
func (s *Server) handleScanUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "multipart field 'image' is required",
		})
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	rec, err := s.session.ScanUpload(data, fh.Filename)
	if err != nil {
		return c.Status(scanStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"record": rec})
}

func scanStatus(err error) int {
	switch {
	case errors.Is(err, scanner.ErrNoCode), errors.Is(err, record.ErrInvalidFormat):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, scanner.ErrUnreadableImage):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// handleStartWebcam starts a background webcam scan
func (s *Server) handleStartWebcam(c *fiber.Ctx) error {
	// The scan outlives this request.
	err := s.session.ScanWebcam(context.Background(), nil)
	switch {
	case errors.Is(err, session.ErrScanInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, scanner.ErrCameraUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"scanning": true})
}

// handleStopWebcam cancels a running webcam scan
func (s *Server) handleStopWebcam(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"stopped": s.session.StopWebcam()})
}

// handleSaveExcel appends the current record to the workbook
func (s *Server) handleSaveExcel(c *fiber.Ctx) error {
	if err := s.session.SaveExcel(c.UserContext()); err != nil {
		return c.Status(saveStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"saved": true, "path": s.session.Status().ExcelPath})
}

// handleSaveSheets appends the current record to the Google Sheet
func (s *Server) handleSaveSheets(c *fiber.Ctx) error {
	res, err := s.session.SaveSheets(c.UserContext())
	if err != nil {
		return c.Status(saveStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"saved": true, "result": res})
}

func saveStatus(err error) int {
	var apiErr *sheets.APIError
	switch {
	case errors.Is(err, session.ErrNoRecord):
		return fiber.StatusConflict
	case errors.Is(err, excel.ErrFileLocked):
		return fiber.StatusLocked
	case errors.Is(err, sheets.ErrNotAuthenticated), errors.Is(err, sheets.ErrAuthExpired):
		return fiber.StatusUnauthorized
	case errors.Is(err, sheets.ErrSheetNameRequired):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrGoogleUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// SettingsRequest is the body of PUT /api/settings. Absent fields are unchanged.
type SettingsRequest struct {
	ExcelPath *string `json:"excel_path"`
	SheetName *string `json:"sheet_name"`
}

// handleSettings updates the Excel path and sheet name
func (s *Server) handleSettings(c *fiber.Ctx) error {
	var req SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid settings body"})
	}

	if req.ExcelPath != nil {
		if _, err := s.session.SetExcelPath(*req.ExcelPath); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if req.SheetName != nil {
		s.session.SetSheetName(*req.SheetName)
	}

	st := s.session.Status()
	if s.onSettings != nil && (req.ExcelPath != nil || req.SheetName != nil) {
		s.onSettings(st.ExcelPath, st.SheetName)
	}
	return c.JSON(fiber.Map{"excel_path": st.ExcelPath, "sheet_name": st.SheetName})
}

// handleJournal returns the scan history
func (s *Server) handleJournal(c *fiber.Ctx) error {
	j := s.session.Journal()
	if j == nil {
		return c.JSON([]journal.Entry{})
	}
	return c.JSON(j.List())
}

// GoogleStatus reports whether Google Sheets can be used.
type GoogleStatus struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// handleGoogleStatus returns the Google connection status
func (s *Server) handleGoogleStatus(c *fiber.Ctx) error {
	if s.google == nil {
		return c.JSON(GoogleStatus{Error: s.googleErr.Error()})
	}
	return c.JSON(GoogleStatus{Enabled: true, Connected: s.google.IsAuthenticated()})
}

// handleGoogleAuth redirects the browser to Google's consent screen
func (s *Server) handleGoogleAuth(c *fiber.Ctx) error {
	if s.google == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": s.googleErr.Error()})
	}
	return c.Redirect(s.google.AuthURL(s.redirectURL(c)), fiber.StatusFound)
}

// handleGoogleCallback completes the consent flow
func (s *Server) handleGoogleCallback(c *fiber.Ctx) error {
	if s.google == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": s.googleErr.Error()})
	}
	return s.google.CallbackHandler(func(err error) {
		if err != nil {
			s.logger.Warn("google consent failed", "error", err)
		}
		s.publish("google", GoogleStatus{Enabled: true, Connected: err == nil && s.google.IsAuthenticated()})
	})(c)
}

// handleGoogleDisconnect forgets the stored Google token
func (s *Server) handleGoogleDisconnect(c *fiber.Ctx) error {
	if s.google == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": s.googleErr.Error()})
	}
	if err := s.google.Disconnect(); err != nil {
		return err
	}
	s.publish("google", GoogleStatus{Enabled: true})
	return c.JSON(GoogleStatus{Enabled: true})
}
