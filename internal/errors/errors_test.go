package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorMessage(t *testing.T) {
	err := Wrap(stderrors.New("boom"), CodeLLMAPIError, "chat completion failed").
		WithMetadata("status", "500")

	msg := err.Error()
	for _, want := range []string{"LLM_API_ERROR", "chat completion failed", "status:500", "caused by: boom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := fmt.Errorf("saving cache: %w", Wrap(cause, CodePersistenceFailed, "write"))

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause through AppError")
	}
	if !IsCode(err, CodePersistenceFailed) {
		t.Error("IsCode should see through fmt wrapping")
	}
	if CodeOf(err) != CodePersistenceFailed {
		t.Errorf("CodeOf = %v, want PERSISTENCE_FAILED", CodeOf(err))
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", New(CodeLLMRateLimited, "slow down"), true},
		{"timeout", New(CodeTimeout, "deadline"), true},
		{"api error 500", New(CodeLLMAPIError, "oops").WithMetadata("retryable", "true"), true},
		{"api error 400", New(CodeLLMAPIError, "bad").WithMetadata("retryable", "false"), false},
		{"not configured", New(CodeLLMNotConfigured, "no model"), false},
		{"plain error", stderrors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	err := New(CodeOCRUnsupportedLanguage, "no traineddata")
	if err.GRPCCode() != codes.InvalidArgument {
		t.Errorf("GRPCCode = %v, want InvalidArgument", err.GRPCCode())
	}

	remote := status.Error(codes.Unavailable, "ocr server down")
	got := FromGRPCError(remote)
	if got.Code != CodeUnavailable {
		t.Errorf("FromGRPCError code = %v, want UNAVAILABLE", got.Code)
	}
	if !IsRetryable(got) {
		t.Error("unavailable remote should be retryable")
	}
}

func TestStatus(t *testing.T) {
	if s := Status(nil); s != "" {
		t.Errorf("Status(nil) = %q, want empty", s)
	}
	if s := Status(New(CodeWindowInvalid, "gone")); s != "Capture stopped: window is gone" {
		t.Errorf("Status = %q", s)
	}
	if s := Status(stderrors.New("what")); s != "Unexpected error" {
		t.Errorf("Status(plain) = %q", s)
	}
}

func TestCodeString(t *testing.T) {
	if CodeLLMInvalidResponse.String() != "LLM_INVALID_RESPONSE" {
		t.Errorf("String = %q", CodeLLMInvalidResponse.String())
	}
	if Code(999).String() != "CODE_999" {
		t.Errorf("unknown code String = %q", Code(999).String())
	}
}
