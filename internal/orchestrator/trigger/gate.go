// Package trigger decides when a fully stable set of regions should be sent
// for translation.
package trigger

import (
	"log/slog"
	"strings"
	"sync"
)

// Gate fires once per transition into "all stable" while enabled. A batch
// whose texts change without ever leaving the all-stable state fires again.
type Gate struct {
	mu      sync.Mutex
	enabled bool
	armed   bool
	last    string
}

// NewGate creates an armed gate.
func NewGate(enabled bool) *Gate {
	return &Gate{enabled: enabled, armed: true}
}

// Check observes one capture cycle and reports whether the batch should be
// dispatched. allStable is the tracker's verdict for tracked; any cycle that
// is not all stable arms the next transition. A disabled gate keeps its
// arming, so enabling it over an untranslated stable batch fires.
func (g *Gate) Check(allStable bool, tracked []string, stable map[string]string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	fp, ok := fingerprint(tracked, stable)
	if !allStable || !ok {
		g.armed = true
		return false
	}
	if !g.enabled {
		return false
	}
	if !g.armed && fp == g.last {
		return false
	}
	g.armed, g.last = false, fp
	return true
}

// fingerprint is false unless every tracked name has stable text.
func fingerprint(tracked []string, stable map[string]string) (string, bool) {
	if len(tracked) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, name := range tracked {
		text, ok := stable[name]
		if !ok {
			return "", false
		}
		b.WriteString(name)
		b.WriteByte(0)
		b.WriteString(text)
		b.WriteByte(0)
	}
	return b.String(), true
}

// Rearm lets the current batch fire again.
func (g *Gate) Rearm() {
	g.mu.Lock()
	g.armed, g.last = true, ""
	g.mu.Unlock()
}

// SetEnabled enables or disables automatic dispatch.
func (g *Gate) SetEnabled(enabled bool) {
	g.mu.Lock()
	g.enabled = enabled
	g.mu.Unlock()
	slog.Info("auto-translate state changed", "enabled", enabled)
}

// IsEnabled returns the current enabled state.
func (g *Gate) IsEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}
