package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
)

// TextExtractor is the remote OCR transport, implemented by grpcclient.Client.
type TextExtractor interface {
	Ping(ctx context.Context) error
	ExtractText(ctx context.Context, png []byte, lang string) (string, error)
}

// RemoteEngine sends regions to an OCR server.
type RemoteEngine struct {
	client TextExtractor
}

// NewRemote wraps a remote OCR client.
func NewRemote(c TextExtractor) *RemoteEngine { return &RemoteEngine{client: c} }

func (e *RemoteEngine) Name() string { return Remote }

// Init checks that the server is serving.
func (e *RemoteEngine) Init(ctx context.Context) error {
	if err := e.client.Ping(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeOCRInitFailed, "remote OCR health check")
	}
	return nil
}

func (e *RemoteEngine) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "encode region")
	}
	return e.client.ExtractText(ctx, buf.Bytes(), lang)
}
