package scanner

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	// ErrCameraUnavailable means the webcam could not be opened.
	ErrCameraUnavailable = errors.New("cannot open webcam: is it connected and not in use?")

	// ErrFrameRead means the camera stopped delivering frames.
	ErrFrameRead = errors.New("failed to capture frame from webcam")
)

// FrameSource delivers frames to the polling loop.
type FrameSource interface {
	// Read fills dst with the next frame.
	Read(dst *gocv.Mat) error

	// Close releases the device.
	Close() error
}

// Webcam is a FrameSource backed by an OpenCV video capture device.
type Webcam struct {
	device int
	cap    *gocv.VideoCapture
}

// OpenWebcam opens the capture device with the given index.
func OpenWebcam(device int) (*Webcam, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w (device %d): %v", ErrCameraUnavailable, device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w (device %d)", ErrCameraUnavailable, device)
	}

	return &Webcam{device: device, cap: vc}, nil
}

// Read grabs the next frame.
func (w *Webcam) Read(dst *gocv.Mat) error {
	if ok := w.cap.Read(dst); !ok || dst.Empty() {
		return fmt.Errorf("%w (device %d)", ErrFrameRead, w.device)
	}
	return nil
}

// Close releases the capture device.
func (w *Webcam) Close() error {
	return w.cap.Close()
}
