// Package region defines the named rectangles read from each captured frame
// and the immutable ordered collection the capture worker iterates.
package region

import (
	"image"
	"slices"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
)

// ReservedName is the region used for one-off snips. It never joins the
// stability batch.
const ReservedName = "__snip__"

// Color is an RGB triple.
type Color struct {
	R uint8 `yaml:"r" json:"r"`
	G uint8 `yaml:"g" json:"g"`
	B uint8 `yaml:"b" json:"b"`
}

// Region is a named rectangle in source-frame pixel coordinates with an
// optional color substitution filter applied before OCR.
type Region struct {
	Name             string `yaml:"name" json:"name"`
	X1               int    `yaml:"x1" json:"x1"`
	Y1               int    `yaml:"y1" json:"y1"`
	X2               int    `yaml:"x2" json:"x2"`
	Y2               int    `yaml:"y2" json:"y2"`
	ColorFilter      bool   `yaml:"color_filter_enabled" json:"color_filter_enabled"`
	TargetColor      Color  `yaml:"target_color" json:"target_color"`
	ReplacementColor Color  `yaml:"replacement_color" json:"replacement_color"`
	ColorThreshold   int    `yaml:"color_threshold" json:"color_threshold"`
}

// Normalize orders the bounds so X1<=X2 and Y1<=Y2 and floors the threshold at zero.
func (r Region) Normalize() Region {
	r.X1, r.X2 = min(r.X1, r.X2), max(r.X1, r.X2)
	r.Y1, r.Y2 = min(r.Y1, r.Y2), max(r.Y1, r.Y2)
	r.ColorThreshold = max(r.ColorThreshold, 0)
	return r
}

// Rect returns the region bounds.
func (r Region) Rect() image.Rectangle { return image.Rect(r.X1, r.Y1, r.X2, r.Y2) }

// Reserved reports whether r is the snip region.
func (r Region) Reserved() bool { return r.Name == ReservedName }

// Validate checks a normalized region.
func (r Region) Validate() error {
	if r.Name == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "region name is empty")
	}
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "region %q has no area", r.Name).
			WithMetadata("rect", r.Rect().String())
	}
	return nil
}

// Set is an ordered collection of uniquely named regions. Methods return new
// sets; a Set is never modified after construction.
type Set struct {
	regions []Region
}

// NewSet normalizes and validates rs, rejecting duplicate names.
func NewSet(rs ...Region) (Set, error) {
	out := make([]Region, 0, len(rs))
	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		r = r.Normalize()
		if err := r.Validate(); err != nil {
			return Set{}, err
		}
		if seen[r.Name] {
			return Set{}, apperrors.Newf(apperrors.CodeInvalidArgument, "duplicate region %q", r.Name)
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	return Set{regions: out}, nil
}

// Len returns the number of regions, reserved included.
func (s Set) Len() int { return len(s.regions) }

// All returns every region in order.
func (s Set) All() []Region { return slices.Clone(s.regions) }

// Get looks up a region by name.
func (s Set) Get(name string) (Region, bool) {
	i := s.index(name)
	if i < 0 {
		return Region{}, false
	}
	return s.regions[i], true
}

// With replaces the region of the same name in place, or appends r.
func (s Set) With(r Region) (Set, error) {
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return s, err
	}
	out := slices.Clone(s.regions)
	if i := s.index(r.Name); i >= 0 {
		out[i] = r
	} else {
		out = append(out, r)
	}
	return Set{regions: out}, nil
}

// Without removes the named region. The bool reports whether it existed.
func (s Set) Without(name string) (Set, bool) {
	i := s.index(name)
	if i < 0 {
		return s, false
	}
	return Set{regions: slices.Delete(slices.Clone(s.regions), i, i+1)}, true
}

// Reorder returns the set ordered by names, which must name every region exactly once.
func (s Set) Reorder(names []string) (Set, error) {
	if len(names) != len(s.regions) {
		return s, apperrors.Newf(apperrors.CodeInvalidArgument, "reorder needs %d names, got %d", len(s.regions), len(names))
	}
	out := make([]Region, 0, len(names))
	used := make(map[string]bool, len(names))
	for _, n := range names {
		i := s.index(n)
		if i < 0 || used[n] {
			return s, apperrors.Newf(apperrors.CodeInvalidArgument, "reorder: unknown or repeated region %q", n)
		}
		used[n] = true
		out = append(out, s.regions[i])
	}
	return Set{regions: out}, nil
}

// Tracked returns the regions that take part in stability tracking, in order.
func (s Set) Tracked() []Region {
	out := make([]Region, 0, len(s.regions))
	for _, r := range s.regions {
		if !r.Reserved() {
			out = append(out, r)
		}
	}
	return out
}

// Names returns the tracked region names in order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s.regions))
	for _, r := range s.regions {
		if !r.Reserved() {
			names = append(names, r.Name)
		}
	}
	return names
}

func (s Set) index(name string) int {
	return slices.IndexFunc(s.regions, func(r Region) bool { return r.Name == name })
}
