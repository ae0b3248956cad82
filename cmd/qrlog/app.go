package main

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/teslashibe/qrlog/internal/config"
	"github.com/teslashibe/qrlog/internal/log"
	"github.com/teslashibe/qrlog/pkg/journal"
	"github.com/teslashibe/qrlog/pkg/scanner"
	"github.com/teslashibe/qrlog/pkg/session"
	"github.com/teslashibe/qrlog/pkg/sheets"
	"github.com/teslashibe/qrlog/pkg/web"
)

// app owns the components shared by the commands.
type app struct {
	cfg       config.Config
	scanner   *scanner.Scanner
	journal   *journal.JSONStore
	google    *sheets.Client
	googleErr error
	session   *session.Session
}

// newApp builds the scanner, journal, Google client and session from cfg.
// A missing Google configuration is not fatal; Sheets saves report it.
func newApp(cfg config.Config) (*app, error) {
	scanCfg := scanner.DefaultConfig()
	scanCfg.Device = cfg.Camera
	sc, err := scanner.New(scanCfg)
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}

	store, err := journal.NewJSONStore(cfg.JournalPath)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("journal: %w", err)
	}

	a := &app{cfg: cfg, scanner: sc, journal: store}

	a.google, a.googleErr = sheets.NewClient(sheets.Config{
		CredentialsFile: cfg.CredentialsFile,
		ClientID:        cfg.GoogleClientID,
		ClientSecret:    cfg.GoogleClientSecret,
		RedirectURL:     "http://localhost:" + cfg.WebPort + web.CallbackPath,
		TokenPath:       cfg.TokenFile,
	})
	if a.googleErr != nil {
		log.Warn("Google Sheets disabled", "error", a.googleErr)
	}

	opts := session.Options{
		ExcelPath: cfg.ExcelPath,
		SheetName: cfg.SheetName,
		Camera:    cfg.Camera,
		Scanner:   sc,
		GoogleErr: a.googleErr,
		Journal:   store,
	}
	if a.google != nil {
		opts.Google = a.google
		opts.Sheets = sheets.NewWriter(a.google)
	}

	a.session, err = session.New(opts)
	if err != nil {
		sc.Close()
		return nil, err
	}
	return a, nil
}

// saveSettings persists a changed Excel path or sheet name.
func (a *app) saveSettings(excelPath, sheetName string) {
	a.cfg.ExcelPath = excelPath
	a.cfg.SheetName = sheetName
	if err := config.Save(a.cfg); err != nil {
		log.Warn("failed to save settings", "path", config.Path(), "error", err)
	}
}

func (a *app) Close() {
	a.session.Close()
	a.scanner.Close()
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
