// Package orchestrator drives the capture loop: frames are captured from the
// selected window, each region is read by OCR, stability is tracked, and fully
// stable batches are handed to the translator.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// Feed sizes
	FeedMaxEntries  = 50
	EventBufferSize = 256

	// Cadence defaults, used when Timing fields are zero
	DefaultCaptureInterval = 100 * time.Millisecond
	DefaultDisplayInterval = 200 * time.Millisecond
	DefaultSnapshotPoll    = 250 * time.Millisecond
	DefaultCaptureBackoff  = 500 * time.Millisecond

	// Stop waits this long for the in-flight cycle when no timeout is given
	DefaultStopTimeout = 5 * time.Second

	// Translation deadline when settings carry none
	DefaultTranslateTimeout = 60 * time.Second
)
