package screen

import (
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"
)

// MinFrameSize is the smallest width and height accepted as a frame.
const MinFrameSize = 10

// Frame is one captured image of a window's client area. Image is RGBA with
// alpha forced opaque.
type Frame struct {
	Image      *image.RGBA
	CapturedAt time.Time
	Sequence   uint64
	Method     Method
}

// Stats counts capture outcomes.
type Stats struct {
	Captures   uint64
	Fallbacks  uint64
	Failures   uint64
	AvgCapture time.Duration
}

// Source captures frames from a window through a Platform, falling back to a
// Grabber when the platform copy fails.
type Source struct {
	platform Platform
	grabber  Grabber
	logger   *slog.Logger

	sequence     atomic.Uint64
	captures     atomic.Uint64
	fallbacks    atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
}

// NewSource creates a frame source.
func NewSource(p Platform, g Grabber) *Source {
	return &Source{platform: p, grabber: g, logger: slog.Default().With("component", "screen")}
}

// Platform returns the window backend.
func (s *Source) Platform() Platform { return s.platform }

// Ready reports whether h can be captured right now.
func (s *Source) Ready(h Handle) bool {
	return s.platform.IsValid(h) && s.platform.IsVisible(h) && !s.platform.IsMinimized(h)
}

// Valid reports whether h still refers to a window.
func (s *Source) Valid(h Handle) bool { return s.platform.IsValid(h) }

// Capture returns the current client-area frame of h, or nil. It never panics.
func (s *Source) Capture(h Handle) (frame *Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("capture panicked", "panic", r, "handle", h)
			s.failures.Add(1)
			frame = nil
		}
	}()

	if !s.Ready(h) {
		return nil
	}
	t, ok := s.target(h)
	if !ok {
		return nil
	}

	start := time.Now()
	img, method, err := s.primary(h, t)
	if err != nil || img == nil {
		s.logger.Debug("window copy failed, grabbing screen region", "error", err, "rect", t.Rect)
		s.fallbacks.Add(1)
		img, err = s.secondary(t.Rect)
		method = MethodScreenGrab
	}
	if err != nil || img == nil {
		s.logger.Debug("screen grab failed", "error", err, "rect", t.Rect)
		s.failures.Add(1)
		return nil
	}

	b := img.Bounds()
	if b.Dx() < MinFrameSize || b.Dy() < MinFrameSize {
		s.failures.Add(1)
		return nil
	}

	s.captures.Add(1)
	s.captureNanos.Add(uint64(time.Since(start)))
	return &Frame{Image: img, CapturedAt: time.Now(), Sequence: s.sequence.Add(1), Method: method}
}

// target prefers the client area and falls back to the window rectangle.
func (s *Source) target(h Handle) (Target, bool) {
	if r, err := s.platform.ClientRectScreen(h); err == nil && !r.Empty() {
		return Target{Rect: r, Client: true}, true
	}
	if r, err := s.platform.WindowRectScreen(h); err == nil && !r.Empty() {
		return Target{Rect: r}, true
	}
	return Target{}, false
}

func (s *Source) primary(h Handle, t Target) (img *image.RGBA, m Method, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("window copy panicked: %v", r)
		}
	}()
	return s.platform.CopyClientBitmap(h, t)
}

func (s *Source) secondary(r image.Rectangle) (img *image.RGBA, err error) {
	if s.grabber == nil {
		return nil, ErrPrimaryUnavailable
	}
	defer func() {
		if rec := recover(); rec != nil {
			img, err = nil, fmt.Errorf("screen grab panicked: %v", rec)
		}
	}()
	img, err = s.grabber.GrabScreenRegion(r)
	if err == nil && img != nil {
		opaque(img)
	}
	return img, err
}

// Stats returns capture counters.
func (s *Source) Stats() Stats {
	st := Stats{
		Captures:  s.captures.Load(),
		Fallbacks: s.fallbacks.Load(),
		Failures:  s.failures.Load(),
	}
	if st.Captures > 0 {
		st.AvgCapture = time.Duration(s.captureNanos.Load() / st.Captures)
	}
	return st
}

func opaque(img *image.RGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}
