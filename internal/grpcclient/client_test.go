package grpcclient

import (
	"context"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/resilience"
	"github.com/GriffinCanCode/game-translator/internal/trace"
)

// fakeOCR answers ExtractText with a canned reply keyed by language.
type fakeOCR struct {
	replies map[string]string
	failure error
	gotPNG  []byte
	gotMD   metadata.MD
}

func (f *fakeOCR) serviceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: OCRService,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "ExtractText",
			Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := &structpb.Struct{}
				if err := dec(in); err != nil {
					return nil, err
				}
				f.gotMD, _ = metadata.FromIncomingContext(ctx)
				if f.failure != nil {
					return nil, f.failure
				}
				f.gotPNG, _ = base64.StdEncoding.DecodeString(in.GetFields()["image_data"].GetStringValue())
				text, ok := f.replies[in.GetFields()["lang"].GetStringValue()]
				if !ok {
					return nil, status.Error(codes.InvalidArgument, "no model for language")
				}
				return structpb.NewStruct(map[string]any{"text": text})
			},
		}},
	}
}

func startServer(t *testing.T, f *fakeOCR, serving healthpb.HealthCheckResponse_ServingStatus) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(f.serviceDesc(), struct{}{})
	hs := health.NewServer()
	hs.SetServingStatus(OCRService, serving)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := New("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestExtractText(t *testing.T) {
	f := &fakeOCR{replies: map[string]string{"japan": "こんにちは"}}
	c := startServer(t, f, healthpb.HealthCheckResponse_SERVING)

	ctx := trace.WithContext(context.Background(), trace.New())
	text, err := c.ExtractText(ctx, []byte{0x89, 'P', 'N', 'G'}, "japan")
	if err != nil {
		t.Fatalf("ExtractText() = %v", err)
	}
	if text != "こんにちは" {
		t.Errorf("text = %q", text)
	}
	if string(f.gotPNG) != "\x89PNG" {
		t.Errorf("server got image %q", f.gotPNG)
	}
	if len(f.gotMD.Get(trace.TraceIDKey)) != 1 {
		t.Error("trace id should be propagated in metadata")
	}
}

func TestExtractTextUnsupportedLanguage(t *testing.T) {
	c := startServer(t, &fakeOCR{replies: map[string]string{}}, healthpb.HealthCheckResponse_SERVING)

	for i := 0; i < resilience.OCRThreshold+1; i++ {
		_, err := c.ExtractText(context.Background(), []byte("x"), "klingon")
		if !apperrors.IsCode(err, apperrors.CodeOCRUnsupportedLanguage) {
			t.Fatalf("err = %v, want OCR_UNSUPPORTED_LANGUAGE", err)
		}
	}
	if c.breaker.State() != resilience.Closed {
		t.Error("rejected languages should not trip the breaker")
	}
}

func TestExtractTextBreakerOpens(t *testing.T) {
	f := &fakeOCR{failure: status.Error(codes.Unavailable, "model loading")}
	c := startServer(t, f, healthpb.HealthCheckResponse_SERVING)

	for i := 0; i < resilience.OCRThreshold; i++ {
		_, err := c.ExtractText(context.Background(), []byte("x"), "en")
		if !apperrors.IsCode(err, apperrors.CodeOCREngineUnavailable) {
			t.Fatalf("err = %v, want OCR_ENGINE_UNAVAILABLE", err)
		}
	}
	if c.breaker.State() != resilience.Open {
		t.Fatalf("breaker = %v, want open", c.breaker.State())
	}
	_, err := c.ExtractText(context.Background(), []byte("x"), "en")
	if !apperrors.IsCode(err, apperrors.CodeOCREngineUnavailable) {
		t.Errorf("open breaker err = %v", err)
	}
}

func TestExtractTextServerError(t *testing.T) {
	c := startServer(t, &fakeOCR{failure: status.Error(codes.FailedPrecondition, "bad image")}, healthpb.HealthCheckResponse_SERVING)
	_, err := c.ExtractText(context.Background(), []byte("x"), "en")
	if !apperrors.IsCode(err, apperrors.CodeOCRExtractFailed) {
		t.Errorf("err = %v, want OCR_EXTRACT_FAILED", err)
	}
}

func TestPing(t *testing.T) {
	c := startServer(t, &fakeOCR{}, healthpb.HealthCheckResponse_SERVING)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}

	down := startServer(t, &fakeOCR{}, healthpb.HealthCheckResponse_NOT_SERVING)
	if err := down.Ping(context.Background()); !apperrors.IsCode(err, apperrors.CodeOCREngineUnavailable) {
		t.Errorf("Ping(not serving) = %v", err)
	}
}

func TestPingClosesBreaker(t *testing.T) {
	f := &fakeOCR{failure: status.Error(codes.Unavailable, "model loading")}
	c := startServer(t, f, healthpb.HealthCheckResponse_SERVING)
	c.WithRetry(resilience.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	for i := 0; i < resilience.OCRThreshold; i++ {
		c.ExtractText(context.Background(), []byte("x"), "en")
	}
	if c.breaker.State() != resilience.Open {
		t.Fatalf("breaker = %v, want open", c.breaker.State())
	}

	f.failure = nil
	f.replies = map[string]string{"en": "ready"}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() = %v", err)
	}
	if c.breaker.State() != resilience.Closed {
		t.Errorf("breaker = %v after a serving health check, want closed", c.breaker.State())
	}
	if text, err := c.ExtractText(context.Background(), []byte("x"), "en"); err != nil || text != "ready" {
		t.Errorf("ExtractText() = (%q, %v)", text, err)
	}
}

func TestPingNotServingDoesNotResetBreaker(t *testing.T) {
	f := &fakeOCR{failure: status.Error(codes.Unavailable, "model loading")}
	c := startServer(t, f, healthpb.HealthCheckResponse_NOT_SERVING)

	for i := 0; i < resilience.OCRThreshold; i++ {
		c.ExtractText(context.Background(), []byte("x"), "en")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("Ping() should fail while not serving")
	}
	if c.breaker.State() != resilience.Open {
		t.Errorf("breaker = %v, want open", c.breaker.State())
	}
}
