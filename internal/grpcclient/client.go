package grpcclient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/resilience"
	"github.com/GriffinCanCode/game-translator/internal/trace"
)

// Client is a breaker-guarded connection to the remote OCR server.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// New creates a client for addr. The connection is established lazily on the
// first call. Extra options are appended after the defaults.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "remote OCR address %q", addr)
	}

	breaker := resilience.New(resilience.OCRConfig()).WithHook(func(from, to resilience.State) {
		slog.Info("remote OCR breaker", "from", from, "to", to, "addr", addr)
	})
	return &Client{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		breaker: breaker,
		retry:   resilience.DefaultRetryConfig(),
		timeout: DefaultCallTimeout,
	}, nil
}

// WithRetry overrides the health check retry policy.
func (c *Client) WithRetry(rc resilience.RetryConfig) *Client {
	c.retry = rc
	return c
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Ping checks that the server reports the OCR service as serving, retrying
// transport failures. A serving reply closes the breaker.
func (c *Client) Ping(ctx context.Context) error {
	err := resilience.Retry(ctx, c.retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
		defer cancel()

		resp, err := c.health.Check(callCtx, &healthpb.HealthCheckRequest{Service: OCRService})
		if err != nil {
			return apperrors.FromGRPCError(err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return apperrors.Newf(apperrors.CodeOCREngineUnavailable, "remote OCR is %s", resp.GetStatus())
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.breaker.Reset()
	return nil
}

// ExtractText sends a PNG to the server and returns the recognized text.
func (c *Client) ExtractText(ctx context.Context, png []byte, lang string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"image_data": png,
		"format":     "png",
		"lang":       lang,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "build OCR request")
	}

	var rejected error
	text, err := resilience.ExecuteWithResult(c.breaker, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		reply := &structpb.Struct{}
		if err := c.conn.Invoke(callCtx, ExtractTextMethod, req, reply); err != nil {
			// Rejected requests say nothing about server health.
			if !resilience.IsRetryableGRPC(err) {
				rejected = err
				return "", nil
			}
			return "", err
		}
		return reply.GetFields()["text"].GetStringValue(), nil
	})
	if err == nil {
		err = rejected
	}
	if err != nil {
		return "", classify(err, lang)
	}
	return text, nil
}

func classify(err error, lang string) error {
	if errors.Is(err, resilience.ErrOpen) {
		return apperrors.Wrap(err, apperrors.CodeOCREngineUnavailable, "remote OCR breaker open")
	}
	appErr := apperrors.FromGRPCError(err)
	if appErr.GRPCCode() == codes.InvalidArgument {
		return apperrors.Wrap(err, apperrors.CodeOCRUnsupportedLanguage, appErr.Message).WithMetadata("lang", lang)
	}
	if appErr.Code == apperrors.CodeUnavailable {
		return apperrors.Wrap(err, apperrors.CodeOCREngineUnavailable, appErr.Message)
	}
	return apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, appErr.Message)
}
