// Package roi cuts region sub-images out of captured frames and applies the
// per-region color substitution filter that isolates text before OCR.
package roi

import (
	"image"
	"image/draw"

	"github.com/GriffinCanCode/game-translator/internal/region"
)

// Extract copies r out of frame, clamped to the frame bounds. It returns nil
// when the clamped rectangle is empty.
func Extract(frame *image.RGBA, r region.Region) *image.RGBA {
	if frame == nil {
		return nil
	}
	b := frame.Bounds()
	rect := r.Normalize().Rect().Add(b.Min).Intersect(b)
	if rect.Empty() {
		return nil
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), frame, rect.Min, draw.Src)
	return out
}

// band is an inclusive per-channel tolerance window.
type band struct{ lo, hi [3]uint8 }

func newBand(target region.Color, threshold int) band {
	t := [3]int{int(target.R), int(target.G), int(target.B)}
	var b band
	for i, v := range t {
		b.lo[i] = clamp(v - threshold)
		b.hi[i] = clamp(v + threshold)
	}
	return b
}

// contains requires every channel to fall in its own window. This is a box,
// not a sphere: passing two channels does not save a pixel that fails the third.
func (b band) contains(r, g, bl uint8) bool {
	return r >= b.lo[0] && r <= b.hi[0] &&
		g >= b.lo[1] && g <= b.hi[1] &&
		bl >= b.lo[2] && bl <= b.hi[2]
}

func clamp(v int) uint8 {
	return uint8(min(max(v, 0), 255))
}

// ApplyFilter keeps pixels within ColorThreshold of TargetColor on every
// channel and paints all others ReplacementColor. It returns img unchanged
// when the region has no filter enabled, otherwise a new image.
func ApplyFilter(img *image.RGBA, r region.Region) *image.RGBA {
	if img == nil || !r.ColorFilter {
		return img
	}
	b := newBand(r.TargetColor, max(r.ColorThreshold, 0))
	rep := r.ReplacementColor

	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		src := img.Pix[img.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
		dst := out.Pix[out.PixOffset(0, y):]
		for x := 0; x < bounds.Dx(); x++ {
			i := x * 4
			if b.contains(src[i], src[i+1], src[i+2]) {
				copy(dst[i:i+4], src[i:i+4])
				continue
			}
			dst[i], dst[i+1], dst[i+2], dst[i+3] = rep.R, rep.G, rep.B, 0xff
		}
	}
	return out
}

// Prepare extracts r from frame and applies its filter. Nil means the region
// is unextractable for this frame.
func Prepare(frame *image.RGBA, r region.Region) *image.RGBA {
	return ApplyFilter(Extract(frame, r), r)
}
