package screen

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ScreenGrabber grabs screen regions across all active displays.
type ScreenGrabber struct{}

// GrabScreenRegion copies r from the screen. It is correct only when the
// target window is unoccluded inside r.
func (ScreenGrabber) GrabScreenRegion(r image.Rectangle) (*image.RGBA, error) {
	if r.Empty() {
		return nil, fmt.Errorf("empty grab rect %v", r)
	}
	if !onAnyDisplay(r) {
		return nil, fmt.Errorf("grab rect %v is off screen", r)
	}
	return screenshot.CaptureRect(r)
}

// DisplayBounds lists the bounds of every active display.
func DisplayBounds() []image.Rectangle {
	n := screenshot.NumActiveDisplays()
	out := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, screenshot.GetDisplayBounds(i))
	}
	return out
}

func onAnyDisplay(r image.Rectangle) bool {
	for _, b := range DisplayBounds() {
		if r.Overlaps(b) {
			return true
		}
	}
	return false
}
