// Package record defines the scan record and the QR payload parser.
//
// A QR payload has the form "ObjectID,ObjectName". Only the first comma
// separates the fields, so object names may themselves contain commas.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout used for the capture timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Column headers, in row order.
const (
	HeaderObjectID  = "Object ID"
	HeaderName      = "Name"
	HeaderTimestamp = "Timestamp"
)

// ErrInvalidFormat is returned when a payload has no comma separator.
var ErrInvalidFormat = errors.New("invalid QR payload: expected 'ObjectID,ObjectName'")

// Record is one scanned object.
type Record struct {
	ObjectID  string `json:"object_id"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

// Parse splits a QR payload into a Record stamped with now.
func Parse(payload string, now time.Time) (Record, error) {
	id, name, ok := strings.Cut(payload, ",")
	if !ok {
		return Record{}, fmt.Errorf("%w: got %q", ErrInvalidFormat, payload)
	}

	return Record{
		ObjectID:  strings.TrimSpace(id),
		Name:      strings.TrimSpace(name),
		Timestamp: now.Format(TimestampLayout),
	}, nil
}

// Payload renders the QR payload that parses back into id and name.
func Payload(id, name string) string {
	return id + "," + name
}

// Headers returns the header row shared by every sink.
func Headers() []string {
	return []string{HeaderObjectID, HeaderName, HeaderTimestamp}
}

// Row returns the record values in header order.
func (r Record) Row() []string {
	return []string{r.ObjectID, r.Name, r.Timestamp}
}

// IsZero reports whether r is the empty record.
func (r Record) IsZero() bool {
	return r == Record{}
}

// String returns a multi-line summary for display.
func (r Record) String() string {
	return fmt.Sprintf("ID: %s\nName: %s\nTimestamp: %s", r.ObjectID, r.Name, r.Timestamp)
}
