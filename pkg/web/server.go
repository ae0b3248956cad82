// Package web serves the qrlog dashboard: a JSON API over the session,
// the Google OAuth redirect endpoint, and websockets for live status and
// webcam preview.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/teslashibe/qrlog/internal/log"
	"github.com/teslashibe/qrlog/pkg/hub"
	"github.com/teslashibe/qrlog/pkg/journal"
	"github.com/teslashibe/qrlog/pkg/session"
	"github.com/teslashibe/qrlog/pkg/sheets"
)

//go:embed static
var staticFiles embed.FS

// CallbackPath is where Google redirects after consent.
const CallbackPath = "/api/google/callback"

// maxUploadSize bounds image uploads to /api/scan.
const maxUploadSize = 16 * 1024 * 1024

// Options configures the dashboard.
type Options struct {
	Port    string
	Session *session.Session

	// Google is nil when no OAuth client is configured; GoogleErr says why.
	Google    *sheets.Client
	GoogleErr error

	// OnSettings is called after settings change so they can be persisted.
	OnSettings func(excelPath, sheetName string)
}

// Server is the web dashboard server
type Server struct {
	app  *fiber.App
	port string

	session    *session.Session
	google     *sheets.Client
	googleErr  error
	onSettings func(excelPath, sheetName string)

	// Hubs for websocket broadcast
	eventHub  *hub.Hub
	cameraHub *hub.Hub

	logger *slog.Logger
}

// NewServer creates a dashboard server bound to sess.
func NewServer(opts Options) *Server {
	s := &Server{
		port:       opts.Port,
		session:    opts.Session,
		google:     opts.Google,
		googleErr:  opts.GoogleErr,
		onSettings: opts.OnSettings,
		eventHub:   hub.New("events"),
		cameraHub:  hub.New("camera"),
		logger:     log.With("component", "web"),
	}
	if s.google == nil && s.googleErr == nil {
		s.googleErr = sheets.ErrCredentialsMissing
	}

	app := fiber.New(fiber.Config{
		AppName:               "qrlog",
		DisableStartupMessage: true,
		BodyLimit:             maxUploadSize,
		ErrorHandler:          errorHandler,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/scan", s.handleScanUpload)
	api.Post("/scan/webcam", s.handleStartWebcam)
	api.Delete("/scan/webcam", s.handleStopWebcam)
	api.Post("/save/excel", s.handleSaveExcel)
	api.Post("/save/sheets", s.handleSaveSheets)
	api.Put("/settings", s.handleSettings)
	api.Get("/journal", s.handleJournal)
	api.Get("/google/status", s.handleGoogleStatus)
	api.Get("/google/auth", s.handleGoogleAuth)
	api.Get("/google/callback", s.handleGoogleCallback)
	api.Post("/google/disconnect", s.handleGoogleDisconnect)

	// WebSocket routes
	app.Use("/ws", hub.RequireUpgrade)
	app.Get("/ws/events", s.eventHub.Handler())
	app.Get("/ws/camera", s.cameraHub.Handler())

	app.Use("/", filesystem.New(filesystem.Config{
		Root:       http.FS(staticFiles),
		PathPrefix: "static",
		Index:      "index.html",
	}))

	s.app = app

	s.session.AddListener(session.Listener{
		OnStatus: func(m session.Message) { s.publish("status", m) },
		OnScan:   func(e journal.Entry) { s.publish("scan", e) },
		OnWebcam: func(active bool) { s.publish("webcam", fiber.Map{"active": active}) },
		OnFrame:  s.cameraHub.BroadcastBinary,
	})

	return s
}

func (s *Server) publish(eventType string, payload any) {
	if err := s.eventHub.Publish(eventType, payload); err != nil {
		s.logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured port and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.eventHub.Run(hubCtx)
	go s.cameraHub.Run(hubCtx)

	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("web dashboard listening", "url", "http://"+ln.Addr().String())
	if err := s.app.Listener(ln); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// redirectURL is the OAuth redirect for consent started from the dashboard.
func (s *Server) redirectURL(c *fiber.Ctx) string {
	return c.BaseURL() + CallbackPath
}

// errorHandler renders fiber errors as JSON.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
