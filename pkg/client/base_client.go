package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrEmptyBody is returned when the server answered without a response body.
var ErrEmptyBody = errors.New("empty response body")

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type BaseClient struct {
	client         HTTPClient
	transport      *http.Transport
	logger         *zap.Logger
	circuitBreaker *gobreaker.CircuitBreaker
	tracer         trace.Tracer
}

type ClientConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Threshold      int
	BreakerTimeout time.Duration
}

func NewBaseClient(name string, config ClientConfig, logger *zap.Logger) *BaseClient {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, read: config.ReadTimeout, write: config.WriteTimeout}, nil
		},
		TLSHandshakeTimeout: config.ConnectTimeout,
		MaxIdleConns:        5,
		IdleConnTimeout:     5 * time.Minute,
		ForceAttemptHTTP2:   true,
	}

	// Circuit breaker settings. A threshold of zero never trips.
	breakerSettings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return config.Threshold > 0 && counts.ConsecutiveFailures >= uint32(config.Threshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("client", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &BaseClient{
		client:         &http.Client{Transport: transport},
		transport:      transport,
		logger:         logger,
		circuitBreaker: gobreaker.NewCircuitBreaker(breakerSettings),
		tracer:         otel.Tracer("location-weather/client"),
	}
}

// Get issues a single GET. Any response carrying a body is returned together
// with its status code; transport failures and empty bodies are errors.
// There is no retry.
func (c *BaseClient) Get(ctx context.Context, rawURL string) ([]byte, int, error) {
	requestID := uuid.NewString()
	safeURL := redactURL(rawURL)

	ctx, span := c.tracer.Start(ctx, "http.get", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.url", safeURL),
		attribute.String("request.id", requestID))

	var status int
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		body, code, err := c.doGet(ctx, rawURL)
		status = code
		return body, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("HTTP request failed",
			zap.String("request_id", requestID),
			zap.String("url", safeURL),
			zap.Error(err))
		return nil, status, err
	}

	body, _ := result.([]byte)
	span.SetAttributes(attribute.Int("http.status_code", status))
	c.logger.Debug("Request completed",
		zap.String("request_id", requestID),
		zap.String("url", safeURL),
		zap.Int("status", status),
		zap.Int("body_size", len(body)))

	return body, status, nil
}

func (c *BaseClient) doGet(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request failed: %w", err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response body failed: %w", err)
	}
	if len(body) == 0 {
		return nil, resp.StatusCode, ErrEmptyBody
	}

	return body, resp.StatusCode, nil
}

// Close evicts every pooled connection. The client stays usable; new requests
// dial fresh connections.
func (c *BaseClient) Close() {
	c.transport.CloseIdleConnections()
	c.logger.Debug("Idle connections evicted")
}

// deadlineConn applies a fresh deadline before every read and write, so a
// stalled peer fails the request after the configured timeout.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("appid") {
		q.Set("appid", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
