// Package label renders printable QR code labels in the "ObjectID,ObjectName"
// payload format understood by the scanner.
package label

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/teslashibe/qrlog/pkg/record"
)

// DefaultSize is the default label edge length in pixels.
const DefaultSize = 256

// ErrCommaInID is returned for an object ID that would not survive parsing.
var ErrCommaInID = errors.New("object ID must not contain a comma")

// Render returns a PNG QR code encoding id and name.
func Render(id, name string, size int) ([]byte, error) {
	payload, err := payloadFor(id, name)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultSize
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode QR code: %w", err)
	}
	return png, nil
}

// WriteFile renders a label and writes it to path, creating parent directories.
func WriteFile(path, id, name string, size int) error {
	png, err := Render(id, name, size)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0644)
}

func payloadFor(id, name string) (string, error) {
	id = strings.TrimSpace(id)
	if strings.Contains(id, ",") {
		return "", fmt.Errorf("%w: %q", ErrCommaInID, id)
	}
	return record.Payload(id, strings.TrimSpace(name)), nil
}
