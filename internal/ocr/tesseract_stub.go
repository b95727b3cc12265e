//go:build !tesseract

package ocr

import "log/slog"

// RegisterTesseract is a no-op in builds without the tesseract tag, which
// need no cgo toolchain. Recognition through "tesseract" then reports
// EngineUnavailableError.
func RegisterTesseract(*Registry) bool {
	slog.Info("built without tesseract support; rebuild with -tags tesseract to enable it")
	return false
}
