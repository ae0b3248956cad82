package record

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantID   string
		wantName string
	}{
		{"simple", "OBJ-001,Drill", "OBJ-001", "Drill"},
		{"trims whitespace", "  OBJ-002 ,  Hammer  ", "OBJ-002", "Hammer"},
		{"name keeps later commas", "OBJ-003,Saw, circular, 7in", "OBJ-003", "Saw, circular, 7in"},
		{"empty name allowed", "OBJ-004,", "OBJ-004", ""},
		{"empty id allowed", ",Orphan", "", "Orphan"},
		{"unicode", "Ω-1,Caméra", "Ω-1", "Caméra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Parse(tt.payload, fixedNow)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.ObjectID != tt.wantID {
				t.Errorf("ObjectID = %q, want %q", rec.ObjectID, tt.wantID)
			}
			if rec.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", rec.Name, tt.wantName)
			}
			if rec.Timestamp != "2024-03-09 14:05:07" {
				t.Errorf("Timestamp = %q", rec.Timestamp)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, payload := range []string{"", "no separator", "https://example.com"} {
		_, err := Parse(payload, fixedNow)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidFormat", payload, err)
		}
		if err != nil && !strings.Contains(err.Error(), payload) {
			t.Errorf("error should quote the payload, got %q", err.Error())
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	rec, err := Parse(Payload("A-17", "Tape measure"), fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ObjectID != "A-17" || rec.Name != "Tape measure" {
		t.Errorf("round trip mismatch: %+v", rec)
	}
}

func TestRowMatchesHeaders(t *testing.T) {
	rec := Record{ObjectID: "1", Name: "n", Timestamp: "t"}
	headers := Headers()
	row := rec.Row()

	if len(row) != len(headers) {
		t.Fatalf("row has %d values, headers has %d", len(row), len(headers))
	}
	want := []string{"Object ID", "Name", "Timestamp"}
	for i := range want {
		if headers[i] != want[i] {
			t.Errorf("header[%d] = %q, want %q", i, headers[i], want[i])
		}
	}
	if row[0] != "1" || row[1] != "n" || row[2] != "t" {
		t.Errorf("unexpected row order: %v", row)
	}
}

func TestIsZeroAndString(t *testing.T) {
	if !(Record{}).IsZero() {
		t.Error("empty record should be zero")
	}
	rec := Record{ObjectID: "X", Name: "Y", Timestamp: "Z"}
	if rec.IsZero() {
		t.Error("populated record should not be zero")
	}
	s := rec.String()
	for _, part := range []string{"ID: X", "Name: Y", "Timestamp: Z"} {
		if !strings.Contains(s, part) {
			t.Errorf("String() missing %q: %s", part, s)
		}
	}
}
