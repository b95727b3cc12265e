// Package trace tags work items (capture cycles, OCR calls, translation requests,
// HTTP requests) with W3C-style trace and span IDs and exposes a context-scoped
// slog.Logger carrying them.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// Header and gRPC metadata keys.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

type ctxKey struct{}

// Context holds trace identifiers for a single span.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New creates a root trace context.
func New() Context {
	return Context{TraceID: generateTraceID(), SpanID: generateSpanID()}
}

// NewChild creates a child of parent, or a root when parent is empty.
func NewChild(parent Context) Context {
	if parent.TraceID == "" {
		return New()
	}
	return Context{TraceID: parent.TraceID, SpanID: generateSpanID(), ParentSpanID: parent.SpanID}
}

// FromContext extracts trace context from ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext injects tc into ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns ctx's trace context, creating a root one if absent.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

func generateTraceID() string { return randomHex(16) }
func generateSpanID() string  { return randomHex(8) }

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Span is a timed operation. End logs it at debug level; a span that recorded
// an error is logged at warn.
type Span struct {
	Name  string
	Ctx   Context
	Start time.Time

	mu    sync.Mutex
	end   time.Time
	attrs []slog.Attr
	err   error
}

// StartSpan begins a span as a child of any span already in ctx.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	tc := NewChild(parent)
	return WithContext(ctx, tc), &Span{Name: name, Ctx: tc, Start: time.Now()}
}

// SetAttr records an attribute logged when the span ends.
func (s *Span) SetAttr(key string, val any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, val))
	s.mu.Unlock()
}

// Fail marks the span as failed with err. Nil is ignored.
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// End completes the span and logs it.
func (s *Span) End() {
	s.mu.Lock()
	if !s.end.IsZero() {
		s.mu.Unlock()
		return
	}
	s.end = time.Now()
	err := s.err
	s.mu.Unlock()

	if err != nil {
		slog.Warn("span failed", "span", s, "error", err)
		return
	}
	slog.Debug("span finished", "span", s)
}

// Duration returns the span duration, or zero while running.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.Start)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("name", s.Name),
		slog.String("trace_id", s.Ctx.TraceID),
		slog.String("span_id", s.Ctx.SpanID),
		slog.Duration("duration", s.Duration()),
	}
	if s.Ctx.ParentSpanID != "" {
		attrs = append(attrs, slog.String("parent_span_id", s.Ctx.ParentSpanID))
	}
	s.mu.Lock()
	attrs = append(attrs, s.attrs...)
	s.mu.Unlock()
	return slog.GroupValue(attrs...)
}

// Logger returns the default logger annotated with ctx's trace IDs.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	args := []any{"trace_id", tc.TraceID, "span_id", tc.SpanID}
	if tc.ParentSpanID != "" {
		args = append(args, "parent_span_id", tc.ParentSpanID)
	}
	return slog.Default().With(args...)
}
