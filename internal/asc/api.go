package asc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RaydowCharole/AppStoreIapScript/internal/metrics"
)

const (
	// DefaultBaseURL is the App Store Connect API root.
	DefaultBaseURL = "https://api.appstoreconnect.apple.com"

	tracerName = "github.com/RaydowCharole/AppStoreIapScript/internal/asc"
)

// PriceMatch selects how configured prices are compared to price points.
type PriceMatch int

// Price match modes. MatchExact compares the configured literal with
// customerPrice byte for byte, so "4" does not match "4.00". MatchNumeric
// compares decimal values instead and is an explicit opt-in.
const (
	MatchExact PriceMatch = iota
	MatchNumeric
)

// Client implements IAPClient against the App Store Connect REST API.
type Client struct {
	tokens      TokenProvider
	baseURL     string
	client      *http.Client
	rateLimiter *RateLimiter
	tracer      trace.Tracer
	log         *slog.Logger
	priceMatch  PriceMatch

	// territories is filled by the first successful AllTerritories call and
	// reused for the life of the client.
	territories territoryCache
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the default API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithRateLimiter injects a rate limiter. When set, every request goes
// through Wait() first.
func WithRateLimiter(r *RateLimiter) Option {
	return func(c *Client) {
		c.rateLimiter = r
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithTracerProvider sets the tracer provider used for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// WithPriceMatch sets the price point matching mode.
func WithPriceMatch(m PriceMatch) Option {
	return func(c *Client) {
		c.priceMatch = m
	}
}

// NewClient creates a new App Store Connect API client.
func NewClient(tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		tokens:  tokens,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		tracer:  otel.Tracer(tracerName),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateResource POSTs body to path and decodes the response into dst.
func (c *Client) CreateResource(ctx context.Context, path string, body, dst any) error {
	return c.do(ctx, http.MethodPost, path, body, dst)
}

// GetResource GETs path and decodes the response into dst.
func (c *Client) GetResource(ctx context.Context, path string, dst any) error {
	return c.do(ctx, http.MethodGet, path, nil, dst)
}

// UpdateResource PATCHes body to path and decodes the response into dst.
func (c *Client) UpdateResource(ctx context.Context, path string, body, dst any) error {
	return c.do(ctx, http.MethodPatch, path, body, dst)
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) (err error) {
	resource := resourceLabel(path)

	ctx, span := c.tracer.Start(ctx, "asc."+resource,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			if errors.Is(err, ErrQuotaExhausted) {
				metrics.APIQuotaExhaustedTotal.Inc()
			}
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("getting auth token: %w", err)
	}

	var bodyReader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.APIRequestDuration.WithLabelValues(method, resource).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(method, resource, "error").Inc()
		return fmt.Errorf("sending %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.observeQuota(resp.Header.Get(RateLimitHeader))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Error("API error response",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if dst != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, dst); err != nil {
			return fmt.Errorf("decoding %s response: %w", resource, err)
		}
	}

	return nil
}

func (c *Client) observeQuota(header string) {
	if header == "" {
		return
	}
	qs, ok := ParseRateLimitHeader(header)
	if !ok {
		return
	}
	metrics.APIRateLimitRemaining.Set(float64(qs.Remaining))
	if c.rateLimiter != nil {
		c.rateLimiter.Observe(qs)
	}
	c.log.Debug("api quota", "limit", qs.Limit, "remaining", qs.Remaining)
}

// resourceLabel reduces a request path to its top-level resource name, e.g.
// "/v2/inAppPurchases/123/pricePoints?limit=1" -> "inAppPurchases". It keeps
// metric label cardinality bounded.
func resourceLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) > 1 && len(segs[0]) == 2 && segs[0][0] == 'v' {
		return segs[1]
	}
	if len(segs) > 0 && segs[0] != "" {
		return segs[0]
	}
	return "root"
}
