package scanner

import "time"

// Config holds capture and polling parameters.
type Config struct {
	// Device is the webcam index passed to OpenCV.
	Device int `json:"device"`

	// PollInterval is the pause between decode attempts on live frames.
	// Zero polls as fast as the camera delivers frames.
	PollInterval time.Duration `json:"poll_interval"`

	// PreviewQuality is the JPEG quality (1-100) of preview frames.
	// Zero disables preview encoding.
	PreviewQuality int `json:"preview_quality"`

	// PreviewInterval rate-limits preview frames.
	PreviewInterval time.Duration `json:"preview_interval"`
}

// Limits for Validate.
const (
	MaxPollInterval = 5 * time.Second
	MaxDevice       = 63
)

// DefaultConfig returns the defaults used by the CLI and UIs.
func DefaultConfig() Config {
	return Config{
		Device:          0,
		PollInterval:    50 * time.Millisecond,
		PreviewQuality:  70,
		PreviewInterval: 100 * time.Millisecond, // ~10 FPS to the dashboard
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 || c.Device > MaxDevice {
		errors = append(errors, "device must be between 0 and 63")
	}
	if c.PollInterval < 0 || c.PollInterval > MaxPollInterval {
		errors = append(errors, "poll_interval must be between 0 and 5s")
	}
	if c.PreviewQuality < 0 || c.PreviewQuality > 100 {
		errors = append(errors, "preview_quality must be 0 (disabled) or between 1 and 100")
	}
	if c.PreviewInterval < 0 {
		errors = append(errors, "preview_interval must not be negative")
	}

	return errors
}
