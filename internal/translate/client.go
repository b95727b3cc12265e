package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/game-translator/internal/config"
	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/resilience"
	"github.com/GriffinCanCode/game-translator/internal/trace"
)

// ChatClient sends one chat completion and returns the assistant text.
type ChatClient interface {
	Complete(ctx context.Context, preset config.Preset, msgs []Message) (string, error)
}

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Stream           bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// HTTPClient talks to an OpenAI-compatible /chat/completions endpoint.
// Transport failures, 429 and 5xx responses are retried; repeated failures
// open the breaker.
type HTTPClient struct {
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewHTTPClient creates a client whose single attempts time out after timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cfg := resilience.DefaultConfig()
	cfg.Name = "llm"
	return &HTTPClient{
		http:    &http.Client{Timeout: timeout},
		retry:   resilience.LLMRetryConfig(),
		breaker: resilience.New(cfg),
	}
}

// WithRetry overrides the retry policy.
func (c *HTTPClient) WithRetry(rc resilience.RetryConfig) *HTTPClient {
	c.retry = rc
	return c
}

// Breaker exposes the client's circuit breaker.
func (c *HTTPClient) Breaker() *resilience.Breaker { return c.breaker }

// Complete implements ChatClient.
func (c *HTTPClient) Complete(ctx context.Context, preset config.Preset, msgs []Message) (string, error) {
	if !preset.Configured() {
		return "", apperrors.New(apperrors.CodeLLMNotConfigured, "preset needs a model and base URL").
			WithMetadata("preset", preset.Name)
	}
	body, err := json.Marshal(chatRequest{
		Model:            preset.Model,
		Messages:         msgs,
		Temperature:      preset.Temperature,
		TopP:             preset.TopP,
		FrequencyPenalty: preset.FrequencyPenalty,
		PresencePenalty:  preset.PresencePenalty,
		MaxTokens:        preset.MaxTokens,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "encode chat request")
	}

	ctx, span := trace.StartSpan(ctx, "llm.complete")
	defer span.End()
	span.SetAttr("model", preset.Model)

	url := strings.TrimRight(preset.BaseURL, "/") + CompletionsPath
	var content string
	err = resilience.Retry(ctx, c.retry, func() error {
		var rejected error
		err := c.breaker.Execute(func() error {
			out, err := c.do(ctx, url, preset.APIKey, body)
			if err != nil {
				// Client errors say nothing about backend health.
				if !apperrors.IsRetryable(err) {
					rejected = err
					return nil
				}
				return err
			}
			content = out
			return nil
		})
		if errors.Is(err, resilience.ErrOpen) {
			return apperrors.Wrap(err, apperrors.CodeLLMAPIError, "translation backend circuit open")
		}
		if err == nil {
			err = rejected
		}
		return err
	})
	if err != nil {
		span.Fail(err)
		return "", err
	}
	span.SetAttr("reply_len", len(content))
	return content, nil
}

func (c *HTTPClient) do(ctx context.Context, url, apiKey string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLLMNotConfigured, "build chat request").WithMetadata("url", url)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	trace.InjectHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeUnavailable, "read chat response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp, data)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLLMInvalidResponse, "decode chat response").
			WithMetadata("raw", truncate(string(data), maxErrorBody))
	}
	if parsed.Error != nil {
		return "", apperrors.New(apperrors.CodeLLMAPIError, parsed.Error.Message).
			WithMetadata("type", parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.New(apperrors.CodeLLMInvalidResponse, "chat response has no choices").
			WithMetadata("raw", truncate(string(data), maxErrorBody))
	}
	return parsed.Choices[0].Message.Content, nil
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeCancelled, "chat request cancelled")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.CodeTimeout, "chat request deadline exceeded")
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "chat request timed out")
	}
	return apperrors.Wrap(err, apperrors.CodeUnavailable, "chat request failed")
}

func statusError(resp *http.Response, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var parsed chatResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	msg = truncate(msg, maxErrorBody)
	code := strconv.Itoa(resp.StatusCode)

	if resp.StatusCode == http.StatusTooManyRequests {
		e := apperrors.Newf(apperrors.CodeLLMRateLimited, "rate limited: %s", msg).WithMetadata("status", code)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			e.WithMetadata("retry_after", (time.Duration(secs) * time.Second).String())
		}
		return e
	}
	return apperrors.Newf(apperrors.CodeLLMAPIError, "HTTP %d: %s", resp.StatusCode, msg).
		WithMetadata("status", code).
		WithMetadata("retryable", strconv.FormatBool(resp.StatusCode >= 500))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("... (%d bytes)", len(s))
}
