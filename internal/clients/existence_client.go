// internal/clients/existence_client.go
package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds a single existence check.
	DefaultTimeout = 3 * time.Second

	defaultBreakerFailures = 5
	defaultBreakerOpenFor  = 30 * time.Second

	maxLoggedBody = 512

	resultExists  = "exists"
	resultMissing = "missing"
	resultError   = "error"
)

var errUpstreamFailure = errors.New("upstream failure")

// ExistenceClient asks a sibling service whether an entity exists by fetching {baseURL}/{id}.
type ExistenceClient struct {
	kind     string
	baseURL  string
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	breaker  *gobreaker.CircuitBreaker
	checks   metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures an ExistenceClient.
type Option func(*ExistenceClient)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ExistenceClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the per-check timeout. Non-positive values disable it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *ExistenceClient) {
		c.timeout = timeout
	}
}

// WithCircuitBreaker stops calling the remote service for openFor after maxFailures
// consecutive transport errors or 5xx answers. Checks made while it is open report false.
// maxFailures of zero disables the breaker.
func WithCircuitBreaker(maxFailures uint32, openFor time.Duration) Option {
	return func(c *ExistenceClient) {
		c.breaker = newBreaker(c.kind, maxFailures, openFor)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *ExistenceClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *ExistenceClient) {
		c.tracer = tp.Tracer("bookservice/clients")
	}
}

// WithMeter records check counts and durations on meter instead of the global meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(c *ExistenceClient) {
		c.checks, c.duration = instruments(meter)
	}
}

// NewExistenceClient creates a client for the entities of kind ("author", "borrower") served at baseURL.
func NewExistenceClient(kind, baseURL string, opts ...Option) *ExistenceClient {
	c := &ExistenceClient{
		kind:    kind,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer("bookservice/clients"),
		breaker: newBreaker(kind, defaultBreakerFailures, defaultBreakerOpenFor),
	}
	c.checks, c.duration = instruments(otel.Meter("bookservice/clients"))

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exists reports whether the remote service answered 200 for id.
// Any other status, a transport failure or an expired context yields false.
func (c *ExistenceClient) Exists(ctx context.Context, id int64) bool {
	ctx, span := c.tracer.Start(ctx, "clients.exists",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("entity.kind", c.kind),
			attribute.Int64("entity.id", id),
		),
	)
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	status, err := c.check(ctx, id)
	result := resultMissing
	switch {
	case err != nil:
		result = resultError
		span.RecordError(err)
		span.SetStatus(codes.Error, "existence check failed")
		c.logger.WarnContext(ctx, "existence check failed",
			"kind", c.kind,
			"id", id,
			"error", err,
		)
	case status == http.StatusOK:
		result = resultExists
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", c.kind),
		attribute.String("result", result),
	)
	c.checks.Add(ctx, 1, attrs)
	c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	span.SetAttributes(attribute.String("check.result", result))

	return result == resultExists
}

func (c *ExistenceClient) check(ctx context.Context, id int64) (int, error) {
	if c.breaker == nil {
		return c.fetch(ctx, id)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		status, err := c.fetch(ctx, id)
		if err == nil && status >= http.StatusInternalServerError {
			return status, fmt.Errorf("%w: %s service answered %d", errUpstreamFailure, c.kind, status)
		}
		return status, err
	})
	if errors.Is(err, errUpstreamFailure) {
		return out.(int), nil
	}
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

func (c *ExistenceClient) fetch(ctx context.Context, id int64) (int, error) {
	url := c.baseURL + "/" + strconv.FormatInt(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%s service did not answer in time: %w", c.kind, err)
		}
		return 0, fmt.Errorf("failed to reach %s service: %w", c.kind, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	c.logger.InfoContext(ctx, "existence check",
		"kind", c.kind,
		"id", id,
		"status", resp.StatusCode,
		"body", string(body),
	)

	return resp.StatusCode, nil
}

func newBreaker(kind string, maxFailures uint32, openFor time.Duration) *gobreaker.CircuitBreaker {
	if maxFailures == 0 {
		return nil
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    kind,
		Timeout: openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A caller giving up says nothing about the remote service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func instruments(meter metric.Meter) (metric.Int64Counter, metric.Float64Histogram) {
	fallback := noop.NewMeterProvider().Meter("bookservice/clients")

	checks, err := meter.Int64Counter("bookservice.existence_checks",
		metric.WithDescription("Existence checks against sibling services"),
	)
	if err != nil {
		checks, _ = fallback.Int64Counter("bookservice.existence_checks")
	}

	duration, err := meter.Float64Histogram("bookservice.existence_check.duration",
		metric.WithDescription("Duration of existence checks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		duration, _ = fallback.Float64Histogram("bookservice.existence_check.duration")
	}

	return checks, duration
}
