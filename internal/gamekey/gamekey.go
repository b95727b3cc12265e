// Package gamekey derives the identifier that buckets per-game caches,
// conversation context and region layouts.
package gamekey

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/GriffinCanCode/game-translator/internal/screen"
)

// Default is the shared bucket used when no executable can be resolved.
const Default = "default"

// Inspector resolves the executable behind a window.
type Inspector interface {
	ExecutablePath(h screen.Handle) (string, error)
}

// FromExecutable hashes the absolute executable path and its size, so a game
// update that changes the binary starts a fresh bucket.
func FromExecutable(path string) string {
	if path == "" {
		return Default
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Default
	}
	fi, err := os.Stat(abs)
	if err != nil || fi.IsDir() {
		return Default
	}
	sum := sha256.Sum256([]byte(abs + "|" + strconv.FormatInt(fi.Size(), 10)))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the game key for the window h.
func Resolve(in Inspector, h screen.Handle) string {
	if in == nil {
		return Default
	}
	path, err := in.ExecutablePath(h)
	if err != nil {
		slog.Debug("no executable for window, using default game key", "handle", h, "error", err)
		return Default
	}
	return FromExecutable(path)
}
