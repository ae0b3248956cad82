package scanner

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrNoCode means the image decoded fine but held no readable QR code.
	ErrNoCode = errors.New("no QR code found")

	// ErrUnreadableImage means the bytes or file could not be decoded as an image.
	ErrUnreadableImage = errors.New("unreadable image")
)

// Decoder extracts QR payloads using OpenCV's QRCodeDetector.
type Decoder struct {
	detector gocv.QRCodeDetector
	mu       sync.Mutex // Protects the detector
}

// NewDecoder creates a decoder. Call Close to release OpenCV resources.
func NewDecoder() *Decoder {
	return &Decoder{
		detector: gocv.NewQRCodeDetector(),
	}
}

// DecodeMat returns the payload of the first QR code in img.
func (d *Decoder) DecodeMat(img gocv.Mat) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("%w: empty frame", ErrUnreadableImage)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	text := d.detector.DetectAndDecode(img, &points, &straight)
	if text == "" {
		return "", ErrNoCode
	}
	return text, nil
}

// DecodeBytes decodes an encoded image (PNG, JPEG, BMP, ...).
func (d *Decoder) DecodeBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: no data", ErrUnreadableImage)
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	defer img.Close()

	if img.Empty() {
		return "", fmt.Errorf("%w: decoder returned empty image", ErrUnreadableImage)
	}

	return d.DecodeMat(img)
}

// DecodeFile decodes the image at path.
func (d *Decoder) DecodeFile(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()

	if img.Empty() {
		return "", fmt.Errorf("%w: %s", ErrUnreadableImage, path)
	}

	return d.DecodeMat(img)
}

// Close releases the detector.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detector.Close()
}

// EncodeJPEG encodes a frame for preview.
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
