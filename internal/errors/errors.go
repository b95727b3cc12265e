// Package errors provides unified error handling with a shared error code taxonomy.
// Codes cover capture, OCR, translation and persistence failures; every code maps to a
// gRPC status code and a short human-readable status string.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code identifies an error category.
type Code int32

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotFound
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeCaptureFailed
	CodeWindowInvalid
	CodeOCRInitFailed
	CodeOCRExtractFailed
	CodeOCRUnsupportedLanguage
	CodeOCREngineUnavailable
	CodeLLMNotConfigured
	CodeLLMAPIError
	CodeLLMRateLimited
	CodeLLMInvalidResponse
	CodePersistenceFailed
	CodeConfigInvalid
	CodeConfigMissing
)

var codeNames = map[Code]string{
	CodeUnknown:                "UNKNOWN",
	CodeInternal:               "INTERNAL",
	CodeInvalidArgument:        "INVALID_ARGUMENT",
	CodeNotFound:               "NOT_FOUND",
	CodeUnavailable:            "UNAVAILABLE",
	CodeTimeout:                "TIMEOUT",
	CodeCancelled:              "CANCELLED",
	CodeCaptureFailed:          "CAPTURE_FAILED",
	CodeWindowInvalid:          "WINDOW_INVALID",
	CodeOCRInitFailed:          "OCR_INIT_FAILED",
	CodeOCRExtractFailed:       "OCR_EXTRACT_FAILED",
	CodeOCRUnsupportedLanguage: "OCR_UNSUPPORTED_LANGUAGE",
	CodeOCREngineUnavailable:   "OCR_ENGINE_UNAVAILABLE",
	CodeLLMNotConfigured:       "LLM_NOT_CONFIGURED",
	CodeLLMAPIError:            "LLM_API_ERROR",
	CodeLLMRateLimited:         "LLM_RATE_LIMITED",
	CodeLLMInvalidResponse:     "LLM_INVALID_RESPONSE",
	CodePersistenceFailed:      "PERSISTENCE_FAILED",
	CodeConfigInvalid:          "CONFIG_INVALID",
	CodeConfigMissing:          "CONFIG_MISSING",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CODE_%d", int32(c))
}

// grpcCodeMap maps ErrorCode to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:                codes.Unknown,
	CodeInternal:               codes.Internal,
	CodeInvalidArgument:        codes.InvalidArgument,
	CodeNotFound:               codes.NotFound,
	CodeUnavailable:            codes.Unavailable,
	CodeTimeout:                codes.DeadlineExceeded,
	CodeCancelled:              codes.Canceled,
	CodeCaptureFailed:          codes.Internal,
	CodeWindowInvalid:          codes.FailedPrecondition,
	CodeOCRInitFailed:          codes.Unavailable,
	CodeOCRExtractFailed:       codes.Internal,
	CodeOCRUnsupportedLanguage: codes.InvalidArgument,
	CodeOCREngineUnavailable:   codes.Unavailable,
	CodeLLMNotConfigured:       codes.FailedPrecondition,
	CodeLLMAPIError:            codes.Internal,
	CodeLLMRateLimited:         codes.ResourceExhausted,
	CodeLLMInvalidResponse:     codes.Internal,
	CodePersistenceFailed:      codes.Internal,
	CodeConfigInvalid:          codes.InvalidArgument,
	CodeConfigMissing:          codes.FailedPrecondition,
}

// statusText is the short user-facing string for each category.
var statusText = map[Code]string{
	CodeCaptureFailed:          "Capture failed, retrying",
	CodeWindowInvalid:          "Capture stopped: window is gone",
	CodeOCRInitFailed:          "OCR engine failed to start",
	CodeOCRExtractFailed:       "OCR failed",
	CodeOCRUnsupportedLanguage: "OCR language not supported",
	CodeOCREngineUnavailable:   "OCR engine unavailable",
	CodeLLMNotConfigured:       "Translation preset is missing a model or URL",
	CodeLLMAPIError:            "Translation service error",
	CodeLLMRateLimited:         "Translation service is rate limiting",
	CodeLLMInvalidResponse:     "Could not read the translation response",
	CodePersistenceFailed:      "Could not save data",
	CodeConfigInvalid:          "Invalid settings",
	CodeConfigMissing:          "Missing settings",
	CodeTimeout:                "Request timed out",
	CodeCancelled:              "Request cancelled",
	CodeUnavailable:            "Service unavailable",
	CodeNotFound:               "Not found",
	CodeInvalidArgument:        "Invalid request",
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus lets status.FromError recognise an AppError.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Error())
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError converts a gRPC error returned by a remote service into an AppError.
func FromGRPCError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}
	return &AppError{Code: grpcToErrorCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToErrorCode maps gRPC codes back to our error codes (best effort).
func grpcToErrorCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	case codes.FailedPrecondition:
		return CodeConfigMissing
	case codes.ResourceExhausted:
		return CodeLLMRateLimited
	default:
		return CodeUnknown
	}
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout, CodeLLMRateLimited:
		return true
	case CodeLLMAPIError:
		return appErr.Metadata["retryable"] == "true"
	default:
		return false
	}
}

// Status returns a short human-readable status for err.
func Status(err error) string {
	if err == nil {
		return ""
	}
	if s, ok := statusText[CodeOf(err)]; ok {
		return s
	}
	return "Unexpected error"
}
