// Package journal keeps a local history of scans and where each one was saved.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/qrlog/pkg/record"
)

// Source is where a scan came from.
type Source string

const (
	SourceWebcam Source = "webcam"
	SourceFile   Source = "file"
	SourceUpload Source = "upload"
)

// Sink is a save destination.
type Sink string

const (
	SinkExcel  Sink = "excel"
	SinkSheets Sink = "sheets"
)

// State is the save state of an entry for one sink.
type State string

const (
	StatePending State = "pending"
	StateSaved   State = "saved"
	StateError   State = "error"
)

// ErrNotFound is returned for an unknown entry ID.
var ErrNotFound = errors.New("journal entry not found")

// SinkStatus records the last save attempt to one sink.
type SinkStatus struct {
	State     State     `json:"state"`
	Target    string    `json:"target,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is one scan.
type Entry struct {
	ID        string               `json:"id"`
	Record    record.Record        `json:"record"`
	Source    Source               `json:"source"`
	ScannedAt time.Time            `json:"scanned_at"`
	Sinks     map[Sink]*SinkStatus `json:"sinks"`
}

// Status returns the save state for sink, pending if never attempted.
func (e Entry) Status(sink Sink) SinkStatus {
	if s, ok := e.Sinks[sink]; ok && s != nil {
		return *s
	}
	return SinkStatus{State: StatePending}
}

func (e *Entry) clone() Entry {
	c := *e
	c.Sinks = make(map[Sink]*SinkStatus, len(e.Sinks))
	for k, v := range e.Sinks {
		if v == nil {
			continue
		}
		s := *v
		c.Sinks[k] = &s
	}
	return c
}

// Store defines the journal operations.
type Store interface {
	// Add records a new scan and returns its entry
	Add(rec record.Record, src Source) (Entry, error)

	// MarkSaved records a successful save of an entry to sink
	MarkSaved(id string, sink Sink, target string) error

	// MarkFailed records a failed save of an entry to sink
	MarkFailed(id string, sink Sink, cause error) error

	// Get retrieves an entry by ID
	Get(id string) (Entry, error)

	// List returns all entries in scan order
	List() []Entry

	// Count returns the number of entries
	Count() int
}

// JSONStore implements Store using a JSON file for persistence.
type JSONStore struct {
	path    string
	entries []*Entry
	byID    map[string]*Entry
	mu      sync.RWMutex

	now func() time.Time
}

// storeData is the JSON structure for the journal file.
type storeData struct {
	Version   int      `json:"version"`
	UpdatedAt string   `json:"updated_at"`
	Entries   []*Entry `json:"entries"`
}

const currentVersion = 1

// NewJSONStore opens the journal at path. The file is created on first write.
func NewJSONStore(path string) (*JSONStore, error) {
	store := &JSONStore{
		path: path,
		byID: make(map[string]*Entry),
		now:  time.Now,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := store.load(); err != nil {
			return nil, fmt.Errorf("failed to load journal: %w", err)
		}
	}

	return store, nil
}

// Path returns the journal file path.
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	s.entries = s.entries[:0]
	s.byID = make(map[string]*Entry, len(stored.Entries))
	for _, e := range stored.Entries {
		if e == nil || e.ID == "" {
			continue
		}
		if e.Sinks == nil {
			e.Sinks = make(map[Sink]*SinkStatus)
		}
		for sink, st := range e.Sinks {
			if st == nil {
				delete(e.Sinks, sink)
			}
		}
		s.entries = append(s.entries, e)
		s.byID[e.ID] = e
	}
	return nil
}

// save writes the journal to disk. Callers hold the write lock.
func (s *JSONStore) save() error {
	stored := storeData{
		Version:   currentVersion,
		UpdatedAt: s.now().Format(time.RFC3339),
		Entries:   s.entries,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to temp file first, then rename
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Add records a new scan.
func (s *JSONStore) Add(rec record.Record, src Source) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &Entry{
		ID:        uuid.New().String(),
		Record:    rec,
		Source:    src,
		ScannedAt: s.now(),
		Sinks:     make(map[Sink]*SinkStatus),
	}
	s.entries = append(s.entries, e)
	s.byID[e.ID] = e

	if err := s.save(); err != nil {
		return e.clone(), err
	}
	return e.clone(), nil
}

// MarkSaved records a successful save.
func (s *JSONStore) MarkSaved(id string, sink Sink, target string) error {
	return s.mark(id, sink, SinkStatus{State: StateSaved, Target: target})
}

// MarkFailed records a failed save.
func (s *JSONStore) MarkFailed(id string, sink Sink, cause error) error {
	status := SinkStatus{State: StateError}
	if cause != nil {
		status.Error = cause.Error()
	}
	return s.mark(id, sink, status)
}

func (s *JSONStore) mark(id string, sink Sink, status SinkStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	status.UpdatedAt = s.now()
	e.Sinks[sink] = &status
	return s.save()
}

// Get retrieves an entry by ID.
func (s *JSONStore) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.clone(), nil
}

// List returns all entries in scan order.
func (s *JSONStore) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

// Count returns the number of entries.
func (s *JSONStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
