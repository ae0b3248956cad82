package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/teslashibe/qrlog/pkg/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	keyStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E0E0E0"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))

	levelColors = map[session.Level]lipgloss.Color{
		session.LevelInfo:    lipgloss.Color("#AAAAAA"),
		session.LevelSuccess: lipgloss.Color("#4CAF50"),
		session.LevelWarning: lipgloss.Color("#FFB300"),
		session.LevelError:   lipgloss.Color("#FF5252"),
	}
)

// View renders the UI.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 80
	}
	inner := max(30, width-4)

	st := a.session.Status()

	sections := []string{
		titleStyle.Render("QR Code Scanner"),
		boxStyle.Width(inner).Render(a.renderResult(st)),
		boxStyle.Width(inner).Render(a.renderSettings(st)),
	}
	if a.authURL != "" {
		sections = append(sections, boxStyle.Width(inner).Render(
			headStyle.Render("GOOGLE SIGN-IN")+"\n"+
				"Open this URL to authorize qrlog:\n"+a.authURL))
	}
	if a.mode != modeMain {
		sections = append(sections, a.input.View(), dimStyle.Render("enter to confirm · esc to cancel"))
	} else {
		sections = append(sections, a.renderHelp())
	}
	sections = append(sections, a.renderStatus(inner))

	return strings.Join(sections, "\n")
}

func (a *App) renderResult(st session.State) string {
	head := headStyle.Render("SCANNED DATA")
	if a.scanning {
		head += "  " + a.spinner.View() + " webcam active, looking for a QR code (esc to stop)"
	} else if a.busy != "" {
		head += "  " + a.spinner.View() + " " + busyLabel(a.busy)
	}

	body := "No data scanned yet."
	if st.HasRecord {
		body = "Successfully Scanned!\n" + st.Record.String()
	}
	return head + "\n" + body
}

func busyLabel(op string) string {
	switch op {
	case "excel":
		return "saving to Excel..."
	case "sheets":
		return "saving to Google Sheets..."
	case "auth":
		return "waiting for Google sign-in (esc to cancel)..."
	case "scan":
		return "decoding image..."
	default:
		return op + "..."
	}
}

func (a *App) renderSettings(st session.State) string {
	google := "not configured"
	switch {
	case st.Authenticated:
		google = "connected"
	case st.GoogleEnabled:
		google = "not authenticated"
	}

	lines := []string{
		headStyle.Render("SAVE OPTIONS"),
		labelStyle.Render("Excel file:    ") + st.ExcelPath,
		labelStyle.Render("Google Sheet:  ") + st.SheetName,
		labelStyle.Render("Google:        ") + google,
		labelStyle.Render("History:       ") + fmt.Sprintf("%d scans", st.JournalCount),
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderHelp() string {
	keys := []struct{ key, desc string }{
		{"w", "scan webcam"},
		{"f", "scan file"},
		{"e", "excel path"},
		{"n", "sheet name"},
		{"a", "authenticate"},
		{"s", "save excel"},
		{"g", "save sheets"},
		{"q", "quit"},
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = keyStyle.Render(k.key) + " " + dimStyle.Render(k.desc)
	}
	return strings.Join(parts, dimStyle.Render(" · "))
}

func (a *App) renderStatus(width int) string {
	color, ok := levelColors[a.status.Level]
	if !ok {
		color = levelColors[session.LevelInfo]
	}
	return lipgloss.NewStyle().
		Foreground(color).
		Width(width).
		MarginTop(1).
		Render(a.status.Text)
}
