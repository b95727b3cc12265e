// Package screen acquires frames of a game window's client area. A platform
// backend performs the OS-level copy; a screen-region grab covers the cases
// the backend cannot.
package screen

import (
	"errors"
	"image"
)

// Handle is an opaque OS window handle.
type Handle uintptr

// Method records which path produced a frame.
type Method string

const (
	MethodPrintWindow Method = "print_window"
	MethodBitBlt      Method = "bitblt"
	MethodScreenGrab  Method = "screen_grab"
)

// ErrPrimaryUnavailable is returned by platforms without a window-level copy.
var ErrPrimaryUnavailable = errors.New("window copy not supported on this platform")

// Target is the screen-space rectangle to copy. Client is false when the
// client area could not be resolved and the full window rectangle is used.
type Target struct {
	Rect   image.Rectangle
	Client bool
}

// Platform is the OS window backend.
type Platform interface {
	IsValid(h Handle) bool
	IsVisible(h Handle) bool
	IsMinimized(h Handle) bool
	ClientRectScreen(h Handle) (image.Rectangle, error)
	WindowRectScreen(h Handle) (image.Rectangle, error)
	// CopyClientBitmap copies t from the window itself, independent of what
	// overlaps it on screen.
	CopyClientBitmap(h Handle, t Target) (*image.RGBA, Method, error)
	ExecutablePath(h Handle) (string, error)
}

// Grabber copies whatever is on screen inside a rectangle.
type Grabber interface {
	GrabScreenRegion(r image.Rectangle) (*image.RGBA, error)
}
