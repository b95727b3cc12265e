// Package ocr is the registry of text recognition backends. Callers select an
// engine by name and always get a string back: recognized text, or a
// bracketed sentinel naming the failure category.
package ocr

import (
	"context"
	"image"
	"regexp"
	"strings"
)

// Sentinel strings substituted for text when recognition fails.
const (
	InitError                = "[OCR Init Error]"
	RuntimeError             = "[OCR Runtime Error]"
	UnsupportedLanguageError = "[OCR Unsupported Language Error]"
	EngineUnavailableError   = "[OCR Engine Unavailable Error]"
)

var sentinelRe = regexp.MustCompile(`^\[[^\[\]]*Error\]$`)

// IsError reports whether text is a failure sentinel rather than content.
func IsError(text string) bool {
	return sentinelRe.MatchString(strings.TrimSpace(text))
}

// Engine recognizes text in an image. lang is the engine-specific language
// identifier resolved through Languages. Implementations need not be safe for
// concurrent use; the registry serializes calls per engine.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image, lang string) (string, error)
}

// Initializer is implemented by engines with expensive start-up.
type Initializer interface {
	Init(ctx context.Context) error
}

// Closer is implemented by engines holding native resources.
type Closer interface {
	Close() error
}
