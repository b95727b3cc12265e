//go:build !windows

package screen

import (
	"errors"
	"image"

	"github.com/kbinani/screenshot"
)

// displayPlatform treats a handle as a display index. Without a window API
// every capture goes through the screen grab.
type displayPlatform struct{}

// NewPlatform returns the display-index backend used off Windows.
func NewPlatform() Platform { return displayPlatform{} }

func (displayPlatform) IsValid(h Handle) bool {
	return int(h) >= 0 && int(h) < screenshot.NumActiveDisplays()
}

func (displayPlatform) IsVisible(Handle) bool   { return true }
func (displayPlatform) IsMinimized(Handle) bool { return false }

func (displayPlatform) ClientRectScreen(h Handle) (image.Rectangle, error) {
	return screenshot.GetDisplayBounds(int(h)), nil
}

func (d displayPlatform) WindowRectScreen(h Handle) (image.Rectangle, error) {
	return d.ClientRectScreen(h)
}

func (displayPlatform) CopyClientBitmap(Handle, Target) (*image.RGBA, Method, error) {
	return nil, "", ErrPrimaryUnavailable
}

func (displayPlatform) ExecutablePath(Handle) (string, error) {
	return "", errors.New("displays have no owning process")
}
