// Package scanner captures QR codes from image files or a webcam and
// parses their payloads into records.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/qrlog/internal/log"
	"github.com/teslashibe/qrlog/pkg/record"
	"gocv.io/x/gocv"
)

// Hooks receive progress from Watch. Any hook may be nil.
type Hooks struct {
	// OnFrame receives JPEG preview frames, rate limited by Config.PreviewInterval.
	OnFrame func(jpeg []byte)

	// OnDetect fires when a new payload is seen, before it is parsed.
	OnDetect func(payload string)

	// OnInvalid fires once per distinct payload that fails to parse.
	OnInvalid func(payload string, err error)
}

// Scanner decodes QR codes and parses them into records.
type Scanner struct {
	decoder *Decoder
	config  Config
	logger  *slog.Logger

	// Now stamps parsed records. Defaults to time.Now.
	Now func() time.Time
}

// New creates a scanner. Call Close to release the decoder.
func New(cfg Config) (*Scanner, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validation failed: %v", errs)
	}

	return &Scanner{
		decoder: NewDecoder(),
		config:  cfg,
		logger:  log.With("component", "scanner"),
		Now:     time.Now,
	}, nil
}

// Config returns the scanner configuration.
func (s *Scanner) Config() Config {
	return s.config
}

// ScanFile decodes the first QR code in an image file and parses it.
// The raw payload is returned alongside parse errors.
func (s *Scanner) ScanFile(path string) (record.Record, string, error) {
	payload, err := s.decoder.DecodeFile(path)
	if err != nil {
		return record.Record{}, "", err
	}
	s.logger.Info("QR detected in file", "path", path, "payload", payload)

	rec, err := record.Parse(payload, s.Now())
	return rec, payload, err
}

// ScanBytes decodes the first QR code in an encoded image and parses it.
func (s *Scanner) ScanBytes(data []byte) (record.Record, string, error) {
	payload, err := s.decoder.DecodeBytes(data)
	if err != nil {
		return record.Record{}, "", err
	}

	rec, err := record.Parse(payload, s.Now())
	return rec, payload, err
}

// Watch polls src until a payload parses into a record, the context is
// cancelled, or the source fails. The source is closed on return.
func (s *Scanner) Watch(ctx context.Context, src FrameSource, hooks Hooks) (record.Record, error) {
	defer src.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	var tick <-chan time.Time
	if s.config.PollInterval > 0 {
		ticker := time.NewTicker(s.config.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var lastPreview time.Time

	// Payloads already reported as invalid.
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return record.Record{}, err
		}

		if err := src.Read(&frame); err != nil {
			return record.Record{}, err
		}

		if hooks.OnFrame != nil && s.config.PreviewQuality > 0 && time.Since(lastPreview) >= s.config.PreviewInterval {
			lastPreview = time.Now()
			if jpeg, err := EncodeJPEG(frame, s.config.PreviewQuality); err == nil {
				hooks.OnFrame(jpeg)
			} else {
				s.logger.Debug("preview encode failed", "error", err)
			}
		}

		payload, err := s.decoder.DecodeMat(frame)
		switch {
		case err == nil:
			if _, ok := seen[payload]; ok {
				break
			}
			if hooks.OnDetect != nil {
				hooks.OnDetect(payload)
			}

			rec, perr := record.Parse(payload, s.Now())
			if perr == nil {
				s.logger.Info("QR detected", "payload", payload)
				return rec, nil
			}
			seen[payload] = struct{}{}
			s.logger.Warn("invalid QR payload", "payload", payload)
			if hooks.OnInvalid != nil {
				hooks.OnInvalid(payload, perr)
			}
		case !errors.Is(err, ErrNoCode):
			s.logger.Debug("frame decode failed", "error", err)
		}

		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return record.Record{}, ctx.Err()
		case <-tick:
		}
	}
}

// Close releases the decoder.
func (s *Scanner) Close() error {
	return s.decoder.Close()
}
