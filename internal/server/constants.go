// Package server exposes the capture loop over HTTP and a WebSocket event stream.
package server

import "time"

// Server configuration constants
const (
	// Per-connection inbound message limit
	RateLimitMessages = 20
	RateLimitWindow   = time.Second

	// Outbound websocket write deadline
	WriteTimeout = 2 * time.Second

	// Request body cap for JSON endpoints
	MaxBodyBytes = 1 << 20

	// Default and maximum entries for /api/history
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 200

	// Stop waits this long for the capture worker
	StopTimeout = 5 * time.Second
)
