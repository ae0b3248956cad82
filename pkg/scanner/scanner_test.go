package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/teslashibe/qrlog/pkg/record"
	"gocv.io/x/gocv"
)

// qrPNG renders payload as a PNG QR code.
func qrPNG(t *testing.T, payload string) []byte {
	t.Helper()
	png, err := qrcode.Encode(payload, qrcode.Medium, 320)
	if err != nil {
		t.Fatalf("qrcode.Encode failed: %v", err)
	}
	return png
}

// fakeSource replays encoded images, then fails like a disconnected camera.
type fakeSource struct {
	frames [][]byte // nil entry = blank frame
	reads  int
	closed bool
}

func (f *fakeSource) Read(dst *gocv.Mat) error {
	if f.reads >= len(f.frames) {
		return ErrFrameRead
	}
	data := f.frames[f.reads]
	f.reads++

	if data == nil {
		blank := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
		defer blank.Close()
		blank.CopyTo(dst)
		return nil
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return err
	}
	defer img.Close()
	img.CopyTo(dst)
	return nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 0, 0, time.Local) }
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = -3
	if _, err := New(cfg); err == nil {
		t.Error("expected validation error")
	}
}

func TestDecodeBytes(t *testing.T) {
	d := NewDecoder()
	defer d.Close()

	payload, err := d.DecodeBytes(qrPNG(t, "OBJ-42,Soldering iron"))
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}
	if payload != "OBJ-42,Soldering iron" {
		t.Errorf("payload = %q", payload)
	}
}

func TestDecodeBytesInvalid(t *testing.T) {
	d := NewDecoder()
	defer d.Close()

	if _, err := d.DecodeBytes(nil); !errors.Is(err, ErrUnreadableImage) {
		t.Errorf("expected ErrUnreadableImage for empty data, got %v", err)
	}
	if _, err := d.DecodeBytes([]byte("not an image")); !errors.Is(err, ErrUnreadableImage) {
		t.Errorf("expected ErrUnreadableImage for garbage, got %v", err)
	}
}

func TestDecodeMatNoCode(t *testing.T) {
	d := NewDecoder()
	defer d.Close()

	blank := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer blank.Close()

	if _, err := d.DecodeMat(blank); !errors.Is(err, ErrNoCode) {
		t.Errorf("expected ErrNoCode, got %v", err)
	}
}

func TestScanFile(t *testing.T) {
	s := newTestScanner(t)

	path := filepath.Join(t.TempDir(), "label.png")
	if err := os.WriteFile(path, qrPNG(t, " OBJ-7 , Multimeter "), 0644); err != nil {
		t.Fatal(err)
	}

	rec, payload, err := s.ScanFile(path)
	if err != nil {
		t.Fatalf("ScanFile failed: %v", err)
	}
	if payload != " OBJ-7 , Multimeter " {
		t.Errorf("payload = %q", payload)
	}
	want := record.Record{ObjectID: "OBJ-7", Name: "Multimeter", Timestamp: "2024-05-01 08:30:00"}
	if rec != want {
		t.Errorf("record = %+v, want %+v", rec, want)
	}
}

func TestScanFileInvalidPayload(t *testing.T) {
	s := newTestScanner(t)

	path := filepath.Join(t.TempDir(), "url.png")
	if err := os.WriteFile(path, qrPNG(t, "https://example.com"), 0644); err != nil {
		t.Fatal(err)
	}

	_, payload, err := s.ScanFile(path)
	if !errors.Is(err, record.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	if payload != "https://example.com" {
		t.Errorf("payload = %q", payload)
	}
}

func TestScanFileMissing(t *testing.T) {
	s := newTestScanner(t)
	if _, _, err := s.ScanFile(filepath.Join(t.TempDir(), "missing.png")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestWatchStopsOnFirstValidCode(t *testing.T) {
	s := newTestScanner(t)
	src := &fakeSource{frames: [][]byte{
		nil,
		qrPNG(t, "no comma here"),
		qrPNG(t, "no comma here"),
		qrPNG(t, "OBJ-9,Caliper"),
		qrPNG(t, "OBJ-10,Never read"),
	}}

	var detected []string
	var invalid []string
	rec, err := s.Watch(context.Background(), src, Hooks{
		OnDetect:  func(p string) { detected = append(detected, p) },
		OnInvalid: func(p string, err error) { invalid = append(invalid, p) },
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if rec.ObjectID != "OBJ-9" || rec.Name != "Caliper" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if src.reads != 4 {
		t.Errorf("expected 4 frames read, got %d", src.reads)
	}
	if !src.closed {
		t.Error("expected source to be closed")
	}
	if len(invalid) != 1 || invalid[0] != "no comma here" {
		t.Errorf("invalid payload should be reported once, got %v", invalid)
	}
	if len(detected) != 2 {
		t.Errorf("expected 2 detections, got %v", detected)
	}
}

func TestWatchReportsEachInvalidPayloadOnce(t *testing.T) {
	s := newTestScanner(t)
	src := &fakeSource{frames: [][]byte{
		qrPNG(t, "x"),
		qrPNG(t, "y"),
		qrPNG(t, "x"),
		qrPNG(t, "y"),
		qrPNG(t, "A,B"),
	}}

	var detected []string
	var invalid []string
	rec, err := s.Watch(context.Background(), src, Hooks{
		OnDetect:  func(p string) { detected = append(detected, p) },
		OnInvalid: func(p string, err error) { invalid = append(invalid, p) },
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if rec.ObjectID != "A" || rec.Name != "B" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if len(invalid) != 2 || invalid[0] != "x" || invalid[1] != "y" {
		t.Errorf("each invalid payload should be reported once, got %v", invalid)
	}
	if len(detected) != 3 {
		t.Errorf("expected x, y and A,B detected once each, got %v", detected)
	}
}

func TestWatchSourceFailure(t *testing.T) {
	s := newTestScanner(t)
	src := &fakeSource{frames: [][]byte{nil, nil}}

	_, err := s.Watch(context.Background(), src, Hooks{})
	if !errors.Is(err, ErrFrameRead) {
		t.Errorf("expected ErrFrameRead, got %v", err)
	}
	if !src.closed {
		t.Error("expected source to be closed")
	}
}

func TestWatchCancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frames := make([][]byte, 1000)
	src := &fakeSource{frames: frames}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = s.Watch(ctx, src, Hooks{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestWatchPreviewFrames(t *testing.T) {
	s := newTestScanner(t)
	s.config.PreviewInterval = 0
	src := &fakeSource{frames: [][]byte{nil, nil, qrPNG(t, "A,B")}}

	var previews int
	_, err := s.Watch(context.Background(), src, Hooks{
		OnFrame: func(jpeg []byte) {
			if len(jpeg) < 2 || jpeg[0] != 0xFF || jpeg[1] != 0xD8 {
				t.Error("preview frame is not a JPEG")
			}
			previews++
		},
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if previews != 3 {
		t.Errorf("expected 3 preview frames, got %d", previews)
	}
}

func TestOpenWebcam(t *testing.T) {
	if os.Getenv("QRLOG_TEST_WEBCAM") == "" {
		t.Skip("set QRLOG_TEST_WEBCAM=1 to test against a real camera")
	}
	cam, err := OpenWebcam(0)
	if err != nil {
		t.Fatalf("OpenWebcam failed: %v", err)
	}
	defer cam.Close()

	frame := gocv.NewMat()
	defer frame.Close()
	if err := cam.Read(&frame); err != nil {
		t.Errorf("Read failed: %v", err)
	}
}
