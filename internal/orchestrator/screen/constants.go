// Package screen runs per-region OCR over captured frames.
package screen

// Perceptual-hash skip tuning. A region whose prepared sub-image hashes within
// the configured Hamming distance of the previous cycle reuses its last text.
const (
	// DefaultMaxHashDistance only skips frames whose hashes match exactly.
	DefaultMaxHashDistance = 0

	// HashDisabled turns the skip off.
	HashDisabled = -1
)
