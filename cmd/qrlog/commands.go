package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/teslashibe/qrlog/internal/config"
	"github.com/teslashibe/qrlog/internal/log"
	"github.com/teslashibe/qrlog/internal/tui"
	"github.com/teslashibe/qrlog/pkg/excel"
	"github.com/teslashibe/qrlog/pkg/journal"
	"github.com/teslashibe/qrlog/pkg/label"
	"github.com/teslashibe/qrlog/pkg/session"
	"github.com/teslashibe/qrlog/pkg/web"
)

// runTUI starts the interactive terminal UI. Logs go to a file because
// stdout belongs to the UI.
func runTUI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("qrlog", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}

	logFile, err := log.OpenFile(config.LogPath())
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log.InitWithWriter(cfg.LogLevel, logFile)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	go func() {
		<-ctx.Done()
		a.session.StopWebcam()
	}()

	return tui.Run(a.session, tui.Options{
		OpenBrowser: openBrowser,
		OnSettings:  a.saveSettings,
	})
}

// runScan scans one code and saves it to the chosen sinks.
func runScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	common := addCommonFlags(fs)
	file := fs.String("file", "", "Image file to decode")
	webcam := fs.Bool("webcam", false, "Scan from the webcam until a code is read")
	timeout := fs.Duration("timeout", 0, "Give up on the webcam after this long (0 = wait)")
	to := fs.String("to", "excel", "Destination: excel, sheets, both, none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*file == "") == !*webcam {
		return errors.New("scan: pass exactly one of -file or -webcam")
	}
	saveExcel, saveSheets, err := parseDestination(*to)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if *file != "" {
		if _, err := a.session.ScanFile(*file); err != nil {
			return err
		}
	} else {
		scanCtx := ctx
		if *timeout > 0 {
			var cancel context.CancelFunc
			scanCtx, cancel = context.WithTimeout(ctx, *timeout)
			defer cancel()
		}
		fmt.Println("📷 Looking for a QR code... (Ctrl+C to stop)")
		if err := a.session.ScanWebcam(scanCtx, nil); err != nil {
			return err
		}
		if err := a.session.WaitWebcam(ctx); err != nil {
			return fmt.Errorf("webcam scan: %w", err)
		}
	}

	rec, ok := a.session.Current()
	if !ok {
		return session.ErrNoRecord
	}
	fmt.Println("✅ " + rec.String())

	if saveExcel {
		if err := a.session.SaveExcel(ctx); err != nil {
			return err
		}
		fmt.Println("💾 Saved to " + a.session.Status().ExcelPath)
	}
	if saveSheets {
		res, err := a.session.SaveSheets(ctx)
		if err != nil {
			return err
		}
		fmt.Println("💾 Saved to " + res.URL)
	}
	return nil
}

func parseDestination(to string) (toExcel, toSheets bool, err error) {
	switch to {
	case "excel":
		return true, false, nil
	case "sheets":
		return false, true, nil
	case "both":
		return true, true, nil
	case "none":
		return false, false, nil
	default:
		return false, false, fmt.Errorf("scan: unknown destination %q (want excel, sheets, both or none)", to)
	}
}

// runAuth runs the Google consent flow and stores the token.
func runAuth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("auth", flag.ContinueOnError)
	common := addCommonFlags(fs)
	disconnect := fs.Bool("disconnect", false, "Remove the stored token instead")
	noBrowser := fs.Bool("no-browser", false, "Print the consent URL without opening a browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.google == nil {
		return fmt.Errorf("google sheets: %w", a.googleErr)
	}

	if *disconnect {
		if err := a.google.Disconnect(); err != nil {
			return err
		}
		fmt.Println("🔌 Google Sheets disconnected")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	err = a.google.Authenticate(ctx, func(url string) {
		fmt.Println("🔑 Open this URL to grant access:")
		fmt.Println("   " + url)
		if *noBrowser {
			return
		}
		if err := openBrowser(url); err != nil {
			log.Debug("could not open browser", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println("✅ Google Sheets connected")
	return nil
}

// runServe starts the web dashboard.
func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	common := addCommonFlags(fs)
	port := fs.String("port", "", "HTTP port (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.WebPort = *port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	log.Init(cfg.LogLevel)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := web.NewServer(web.Options{
		Port:       cfg.WebPort,
		Session:    a.session,
		Google:     a.google,
		GoogleErr:  a.googleErr,
		OnSettings: a.saveSettings,
	})

	fmt.Println()
	fmt.Println("📋 qrlog v" + version)
	fmt.Printf("   Dashboard: http://localhost:%s\n", cfg.WebPort)
	fmt.Println()

	return srv.Start(ctx)
}

// runLabel renders a QR label PNG for an object.
func runLabel(args []string) error {
	fs := flag.NewFlagSet("label", flag.ContinueOnError)
	id := fs.String("id", "", "Object ID (required)")
	name := fs.String("name", "", "Object name")
	out := fs.String("out", "", "Output PNG path (default <id>.png)")
	size := fs.Int("size", label.DefaultSize, "Edge length in pixels")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("label: -id is required")
	}
	if *out == "" {
		*out = *id + ".png"
	}

	if err := label.WriteFile(*out, *id, *name, *size); err != nil {
		return err
	}
	fmt.Println("🏷️  Wrote " + *out)
	return nil
}

// runList prints the scan history, or the rows of a workbook with -excel.
func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	workbook := fs.String("excel", "", "Print the rows of this workbook instead of the history")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if *workbook != "" {
		rows, err := excel.ReadRows(*workbook)
		if err != nil {
			return err
		}
		for _, row := range rows {
			for i, v := range row {
				if i > 0 {
					fmt.Fprint(w, "\t")
				}
				fmt.Fprint(w, v)
			}
			fmt.Fprintln(w)
		}
		return nil
	}

	cfg, err := config.LoadWithOverrides()
	if err != nil {
		return err
	}
	store, err := journal.NewJSONStore(cfg.JournalPath)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "SCANNED\tOBJECT ID\tNAME\tSOURCE\tEXCEL\tSHEETS")
	for _, e := range store.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ScannedAt.Format("2006-01-02 15:04:05"),
			e.Record.ObjectID, e.Record.Name, e.Source,
			sinkState(e, journal.SinkExcel), sinkState(e, journal.SinkSheets))
	}
	return nil
}

func sinkState(e journal.Entry, sink journal.Sink) string {
	return string(e.Status(sink).State)
}
