// Package tui is the interactive terminal front end for qrlog.
//
// It follows the bubbletea model: session events are turned into messages,
// Update folds them into the App, and View renders the App.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/teslashibe/qrlog/internal/log"
	"github.com/teslashibe/qrlog/pkg/journal"
	"github.com/teslashibe/qrlog/pkg/session"
)

// inputMode is what the text input is collecting, if anything.
type inputMode int

const (
	modeMain inputMode = iota
	modeScanFile
	modeExcelPath
	modeSheetName
)

const (
	authTimeout = 5 * time.Minute
	saveTimeout = 60 * time.Second
)

// Options configures the App.
type Options struct {
	// OpenBrowser opens the Google consent URL. The URL is shown in the
	// UI either way.
	OpenBrowser func(url string) error

	// OnSettings is called after the Excel path or sheet name changes.
	OnSettings func(excelPath, sheetName string)
}

// Messages delivered from the session and from background commands.
type (
	statusMsg  session.Message
	scannedMsg journal.Entry
	webcamMsg  bool
	authURLMsg string

	opDoneMsg struct {
		op  string
		err error
	}
)

// App is the terminal UI model.
type App struct {
	session *session.Session
	opts    Options

	events chan tea.Msg
	ctx    context.Context
	cancel context.CancelFunc

	input   textinput.Model
	spinner spinner.Model
	mode    inputMode

	status   session.Message
	scanning bool
	busy     string // running operation, "" when idle
	authURL  string
	lastScan journal.Entry

	authCancel context.CancelFunc

	width  int
	height int
}

// NewApp creates the UI over sess.
func NewApp(sess *session.Session, opts Options) *App {
	ti := textinput.New()
	ti.CharLimit = 512
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		session: sess,
		opts:    opts,
		events:  make(chan tea.Msg, 256),
		ctx:     ctx,
		cancel:  cancel,
		input:   ti,
		spinner: sp,
		status:  sess.Status().LastStatus,
	}

	sess.AddListener(session.Listener{
		OnStatus: func(m session.Message) { a.send(statusMsg(m)) },
		OnScan:   func(e journal.Entry) { a.send(scannedMsg(e)) },
		OnWebcam: func(active bool) { a.send(webcamMsg(active)) },
	})
	return a
}

// send queues msg for the program without blocking the session.
func (a *App) send(msg tea.Msg) {
	select {
	case a.events <- msg:
	default:
		log.Warn("tui event queue full, dropping event", "type", fmt.Sprintf("%T", msg))
	}
}

// pump forwards session events to the program until the app is done.
func (a *App) pump(p *tea.Program) {
	for {
		select {
		case msg := <-a.events:
			p.Send(msg)
		case <-a.ctx.Done():
			return
		}
	}
}

// Init starts the spinner.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case statusMsg:
		a.status = session.Message(msg)
		return a, nil

	case scannedMsg:
		a.lastScan = journal.Entry(msg)
		return a, nil

	case webcamMsg:
		a.scanning = bool(msg)
		return a, nil

	case authURLMsg:
		a.authURL = string(msg)
		return a, nil

	case opDoneMsg:
		a.busy = ""
		if msg.op == "auth" {
			a.authCancel = nil
			if msg.err == nil {
				a.authURL = ""
			}
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if a.mode != modeMain {
			return a.updateInput(msg)
		}
		return a.updateMain(msg)
	}

	return a, nil
}

func (a *App) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return a, a.quit()

	case "esc":
		switch {
		case a.scanning:
			a.session.StopWebcam()
		case a.authCancel != nil:
			a.authCancel()
		}
		return a, nil

	case "w":
		if a.scanning {
			return a, nil
		}
		return a, func() tea.Msg {
			err := a.session.ScanWebcam(a.ctx, nil)
			if errors.Is(err, session.ErrScanInProgress) {
				return nil
			}
			return opDoneMsg{op: "webcam", err: err}
		}

	case "f":
		if a.busy != "" {
			return a, nil
		}
		return a.prompt(modeScanFile, "Image path: ", "")

	case "e":
		return a.prompt(modeExcelPath, "Excel file: ", a.session.Status().ExcelPath)

	case "n":
		return a.prompt(modeSheetName, "Google Sheet name: ", a.session.Status().SheetName)

	case "s":
		return a.runOp("excel", func(ctx context.Context) error {
			return a.session.SaveExcel(ctx)
		}, saveTimeout)

	case "g":
		return a.runOp("sheets", func(ctx context.Context) error {
			_, err := a.session.SaveSheets(ctx)
			return err
		}, saveTimeout)

	case "a":
		if a.busy != "" {
			return a, nil
		}
		ctx, cancel := context.WithTimeout(a.ctx, authTimeout)
		a.authCancel = cancel
		a.busy = "auth"
		return a, func() tea.Msg {
			defer cancel()
			err := a.session.Authenticate(ctx, a.openConsent)
			return opDoneMsg{op: "auth", err: err}
		}
	}
	return a, nil
}

// openConsent shows the consent URL and tries to open a browser.
func (a *App) openConsent(url string) {
	a.send(authURLMsg(url))
	if a.opts.OpenBrowser == nil {
		return
	}
	if err := a.opts.OpenBrowser(url); err != nil {
		log.Warn("could not open browser", "error", err)
	}
}

// runOp runs a save in the background with the spinner showing.
func (a *App) runOp(op string, fn func(context.Context) error, timeout time.Duration) (tea.Model, tea.Cmd) {
	if a.busy != "" {
		return a, nil
	}
	a.busy = op
	return a, func() tea.Msg {
		ctx, cancel := context.WithTimeout(a.ctx, timeout)
		defer cancel()
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (a *App) prompt(mode inputMode, label, value string) (tea.Model, tea.Cmd) {
	a.mode = mode
	a.input.Prompt = label
	a.input.SetValue(value)
	a.input.CursorEnd()
	return a, a.input.Focus()
}

func (a *App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, a.quit()

	case "esc":
		a.closePrompt()
		return a, nil

	case "enter":
		value := strings.TrimSpace(a.input.Value())
		mode := a.mode
		a.closePrompt()
		return a.submit(mode, value)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) closePrompt() {
	a.mode = modeMain
	a.input.Blur()
	a.input.SetValue("")
}

func (a *App) submit(mode inputMode, value string) (tea.Model, tea.Cmd) {
	switch mode {
	case modeScanFile:
		if value == "" {
			a.status = session.Message{Level: session.LevelInfo, Text: "File selection cancelled.", Time: time.Now()}
			return a, nil
		}
		if a.busy != "" {
			return a, nil
		}
		a.busy = "scan"
		return a, func() tea.Msg {
			_, err := a.session.ScanFile(value)
			return opDoneMsg{op: "scan", err: err}
		}

	case modeExcelPath:
		if _, err := a.session.SetExcelPath(value); err == nil {
			a.persistSettings()
		}

	case modeSheetName:
		a.session.SetSheetName(value)
		a.persistSettings()
	}
	return a, nil
}

func (a *App) persistSettings() {
	if a.opts.OnSettings == nil {
		return
	}
	st := a.session.Status()
	a.opts.OnSettings(st.ExcelPath, st.SheetName)
}

// quit stops background work and exits.
func (a *App) quit() tea.Cmd {
	a.session.Close()
	a.cancel()
	return tea.Quit
}

// Run starts the UI and blocks until the user quits.
func Run(sess *session.Session, opts Options) error {
	app := NewApp(sess, opts)
	defer app.cancel()

	p := tea.NewProgram(app, tea.WithAltScreen())
	go app.pump(p)

	_, err := p.Run()
	return err
}
