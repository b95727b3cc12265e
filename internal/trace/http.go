package trace

import (
	"context"
	"net/http"
	"time"
)

// Middleware continues a caller's trace from request headers (or starts one),
// echoes the trace ID in the response and logs each request at debug level.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := fromHeaders(r.Header)
		w.Header().Set(TraceIDKey, tc.TraceID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := WithContext(r.Context(), tc)
		next.ServeHTTP(rec, r.WithContext(ctx))

		Logger(ctx).Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}

// InjectHeaders copies ctx's trace identifiers onto outgoing request headers.
func InjectHeaders(ctx context.Context, h http.Header) {
	tc, ok := FromContext(ctx)
	if !ok {
		return
	}
	h.Set(TraceIDKey, tc.TraceID)
	h.Set(SpanIDKey, tc.SpanID)
}

func fromHeaders(h http.Header) Context {
	tc := Context{
		TraceID:      h.Get(TraceIDKey),
		ParentSpanID: h.Get(SpanIDKey),
		SpanID:       generateSpanID(),
	}
	if tc.TraceID == "" {
		tc.TraceID = generateTraceID()
		tc.ParentSpanID = ""
	}
	return tc
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer; the
// websocket upgrade needs its Hijacker.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
