// qrlog: scan "ObjectID,ObjectName" QR codes and log them to Excel or Google Sheets.
//
// Usage:
//
//	qrlog                 interactive terminal UI
//	qrlog scan            scan once from a file or the webcam and save
//	qrlog auth            connect a Google account
//	qrlog serve           web dashboard
//	qrlog label           render a QR label PNG
//	qrlog list            show the scan history
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/qrlog/internal/config"
)

var version = "1.0.0"

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "":
		err = runTUI(ctx, args)
	case "scan":
		err = runScan(ctx, args)
	case "auth":
		err = runAuth(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "label":
		err = runLabel(args)
	case "list":
		err = runList(args)
	case "version":
		fmt.Println("qrlog " + version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `qrlog - scan QR codes into Excel or Google Sheets

Commands:
  (none)   interactive terminal UI
  scan     scan once:   qrlog scan -file label.png -to excel
  auth     connect Google Sheets
  serve    web dashboard on -port
  label    render a label: qrlog label -id OBJ-1 -name Drill -out drill.png
  list     show the scan history
  version  print the version

Run "qrlog <command> -h" for flags.
`)
}

// commonFlags are shared by every command that touches the session.
type commonFlags struct {
	excel       *string
	sheet       *string
	camera      *int
	credentials *string
	token       *string
	logLevel    *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		excel:       fs.String("excel", "", "Excel workbook path (overrides config)"),
		sheet:       fs.String("sheet", "", "Google spreadsheet name (overrides config)"),
		camera:      fs.Int("camera", -1, "Webcam device index (overrides config)"),
		credentials: fs.String("credentials", "", "Google OAuth client-secrets JSON"),
		token:       fs.String("token", "", "Google token file"),
		logLevel:    fs.String("log-level", "", "Log level: debug, info, warn, error"),
	}
}

// loadConfig layers flags over the config file and environment.
func loadConfig(f *commonFlags) (config.Config, error) {
	cfg, err := config.LoadWithOverrides()
	if err != nil {
		return cfg, err
	}

	if *f.excel != "" {
		cfg.ExcelPath = *f.excel
	}
	if *f.sheet != "" {
		cfg.SheetName = *f.sheet
	}
	if *f.camera >= 0 {
		cfg.Camera = *f.camera
	}
	if *f.credentials != "" {
		cfg.CredentialsFile = *f.credentials
	}
	if *f.token != "" {
		cfg.TokenFile = *f.token
	}
	if *f.logLevel != "" {
		cfg.LogLevel = *f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
