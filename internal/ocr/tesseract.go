//go:build tesseract

package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
)

// TesseractEngine recognizes text with a local libtesseract via cgo.
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates an uninitialized tesseract engine.
func NewTesseract() *TesseractEngine { return &TesseractEngine{} }

// RegisterTesseract adds the tesseract engine to r.
func RegisterTesseract(r *Registry) bool {
	r.Register(NewTesseract())
	return true
}

func (t *TesseractEngine) Name() string { return Tesseract }

// Init creates the tesseract client and checks the install.
func (t *TesseractEngine) Init(context.Context) error {
	c := gosseract.NewClient()
	if _, err := gosseract.GetAvailableLanguages(); err != nil {
		c.Close()
		return apperrors.Wrap(err, apperrors.CodeOCRInitFailed, "tesseract has no tessdata")
	}
	// Game dialog is laid out as blocks of text, not sparse labels.
	if err := c.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		c.Close()
		return apperrors.Wrap(err, apperrors.CodeOCRInitFailed, "tesseract page mode")
	}
	t.mu.Lock()
	t.client = c
	t.mu.Unlock()
	return nil
}

func (t *TesseractEngine) Recognize(_ context.Context, img image.Image, lang string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return "", apperrors.New(apperrors.CodeOCRInitFailed, "tesseract not initialized")
	}

	if !hasLanguage(lang) {
		return "", apperrors.Newf(apperrors.CodeOCRUnsupportedLanguage, "tessdata for %q is not installed", lang)
	}
	if err := t.client.SetLanguage(lang); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeOCRUnsupportedLanguage, "set tesseract language")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "encode region")
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "load region")
	}
	text, err := t.client.Text()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "tesseract")
	}
	return text, nil
}

func (t *TesseractEngine) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func hasLanguage(lang string) bool {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return false
	}
	for _, l := range langs {
		if l == lang {
			return true
		}
	}
	return false
}
