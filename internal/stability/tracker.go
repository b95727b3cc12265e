// Package stability decides when each region's OCR text has settled. A region
// becomes stable after the same text is read on Threshold consecutive cycles
// and drops out the moment a different reading arrives.
package stability

import (
	"maps"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/ocr"
)

// DefaultThreshold is the consecutive-read count used when none is configured.
const DefaultThreshold = 3

type run struct {
	text   string
	length int
}

// Tracker holds per-region run lengths and the stable set. It is owned by the
// capture worker and is not safe for concurrent use.
type Tracker struct {
	threshold int
	history   map[string]*run
	stable    map[string]string
}

// New creates a tracker. Thresholds below 1 use DefaultThreshold.
func New(threshold int) *Tracker {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		threshold: threshold,
		history:   make(map[string]*run),
		stable:    make(map[string]string),
	}
}

// Threshold returns the current threshold.
func (t *Tracker) Threshold() int { return t.threshold }

// SetThreshold changes the threshold for subsequent observations.
func (t *Tracker) SetThreshold(n int) error {
	if n < 1 {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "stability threshold must be at least 1, got %d", n)
	}
	t.threshold = n
	return nil
}

// Observe records one reading for name and reports whether the stable set changed.
// An OCR sentinel still extends the run, but never enters the stable set.
func (t *Tracker) Observe(name, text string) bool {
	h, ok := t.history[name]
	if ok && h.text == text {
		h.length++
	} else {
		h = &run{text: text, length: 1}
		t.history[name] = h
	}

	prev, wasStable := t.stable[name]
	if ocr.IsError(text) {
		if wasStable {
			delete(t.stable, name)
			return true
		}
		return false
	}

	if h.length >= t.threshold {
		if !wasStable || prev != text {
			t.stable[name] = text
			return true
		}
		return false
	}
	if wasStable {
		delete(t.stable, name)
		return true
	}
	return false
}

// Unextractable resets name after its region could not be cut from the frame.
// It reports whether the stable set changed.
func (t *Tracker) Unextractable(name string) bool {
	delete(t.history, name)
	if _, ok := t.stable[name]; ok {
		delete(t.stable, name)
		return true
	}
	return false
}

// Retain drops state for every region not in names and reports whether the
// stable set changed.
func (t *Tracker) Retain(names []string) bool {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	maps.DeleteFunc(t.history, func(k string, _ *run) bool { return !keep[k] })

	changed := false
	maps.DeleteFunc(t.stable, func(k string, _ string) bool {
		if !keep[k] {
			changed = true
			return true
		}
		return false
	})
	return changed
}

// Reset clears all state.
func (t *Tracker) Reset() {
	clear(t.history)
	clear(t.stable)
}

// RunLength returns the current run for name.
func (t *Tracker) RunLength(name string) int {
	if h, ok := t.history[name]; ok {
		return h.length
	}
	return 0
}

// Live returns the latest reading per region.
func (t *Tracker) Live() map[string]string {
	out := make(map[string]string, len(t.history))
	for k, h := range t.history {
		out[k] = h.text
	}
	return out
}

// Stable returns a copy of the stable set.
func (t *Tracker) Stable() map[string]string { return maps.Clone(t.stable) }

// AllStable reports whether every name is in the stable set. It is false for
// an empty list.
func (t *Tracker) AllStable(names []string) bool {
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		if _, ok := t.stable[n]; !ok {
			return false
		}
	}
	return true
}
