package session

import (
	"time"

	"github.com/teslashibe/qrlog/pkg/journal"
	"github.com/teslashibe/qrlog/pkg/record"
)

// Level classifies a status message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is one status bar update.
type Message struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// Listener receives session events. Any field may be nil. Callbacks run
// on the goroutine that caused the event and must not block.
type Listener struct {
	// OnStatus receives every status message.
	OnStatus func(Message)

	// OnScan receives the journal entry of each successful scan.
	OnScan func(journal.Entry)

	// OnFrame receives webcam preview JPEGs while a scan is running.
	OnFrame func(jpeg []byte)

	// OnWebcam reports webcam scans starting and stopping.
	OnWebcam func(active bool)
}

// State is a snapshot of the session for front ends.
type State struct {
	Record        record.Record `json:"record"`
	HasRecord     bool          `json:"has_record"`
	EntryID       string        `json:"entry_id,omitempty"`
	ExcelPath     string        `json:"excel_path"`
	SheetName     string        `json:"sheet_name"`
	Scanning      bool          `json:"scanning"`
	GoogleEnabled bool          `json:"google_enabled"`
	Authenticated bool          `json:"authenticated"`
	LastStatus    Message       `json:"last_status"`
	JournalCount  int           `json:"journal_count"`
}
