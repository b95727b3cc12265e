// Package grpcclient talks to a remote OCR server over gRPC. Requests and
// replies are google.protobuf.Struct messages, so no generated stubs are needed.
package grpcclient

import "time"

const (
	// OCRService is the remote service name, also used for health checks.
	OCRService = "ocr.OCRService"
	// ExtractTextMethod takes {image_data: base64 PNG, format, lang} and
	// returns {text}. The server answers InvalidArgument for languages it
	// has no model for.
	ExtractTextMethod = "/" + OCRService + "/ExtractText"

	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	DefaultCallTimeout = 10 * time.Second
	HealthCheckTimeout = 2 * time.Second
)
