// Package client provides the feature-service HTTP transport: one GET with
// compression negotiation, request pacing and a fixed-delay retry loop,
// returning the decoded JSON envelope.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/feature-harvester/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	harvestRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_requests_total",
		Help: "Total feature service requests by layer path and status",
	}, []string{"endpoint", "status"})

	harvestRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_request_duration_seconds",
		Help:    "Feature service request duration in seconds by layer path, retries included",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	harvestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_errors_total",
		Help: "Total transport errors by class",
	}, []string{"class"})

	harvestRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	harvestRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	harvestServiceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_service_errors_total",
		Help: "Total error envelopes returned by feature services by code",
	}, []string{"code"})
)

// ErrorClass represents a classification of transport failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/DNS/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents bodies that could not be decompressed or parsed.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassCancelled represents a cancelled or expired context.
	ErrorClassCancelled ErrorClass = "cancelled"

	// ErrorClassTooLarge represents bodies over the configured size cap.
	ErrorClassTooLarge ErrorClass = "too_large"
)

// Getter fetches one URL and returns its decoded JSON object.
// *Client implements it; tests substitute fakes.
type Getter interface {
	GetJSON(ctx context.Context, rawURL string) (map[string]any, error)
}

// Client performs GET requests against feature services.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// UserAgent header sent with every request
	UserAgent string

	// Timeout per attempt
	Timeout time.Duration

	// Retry budget
	Retry RetryConfig

	// MaxBodyBytes caps both the bytes read per attempt and the decompressed size
	MaxBodyBytes int64

	// Limiter paces requests per host (optional, may be shared)
	Limiter *ratelimit.Limiter

	// Logger (optional, defaults to the global logger with component=transport)
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:    "feature-harvester/0.1.0",
		Timeout:      30 * time.Second,
		Retry:        DefaultRetryConfig(),
		MaxBodyBytes: 256 << 20,
	}
}

// New creates a new transport client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Delay < 0 {
		return nil, fmt.Errorf("retry delay must not be negative (got %s)", cfg.Retry.Delay)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 256 << 20
	}

	logger := log.With().Str("component", "transport").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "transport").Logger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: cfg.Limiter,
		config:  cfg,
		logger:  logger,
	}, nil
}

// GetJSON performs a GET request and returns the decoded JSON object.
// Transient failures are retried per the retry budget; exhaustion and
// non-retryable HTTP errors yield *TransportError. A response carrying an
// "error" envelope yields *ServiceError without retrying.
func (c *Client) GetJSON(ctx context.Context, rawURL string) (map[string]any, error) {
	endpoint := endpointLabel(rawURL)

	startTime := time.Now()
	defer func() {
		harvestRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var envelope map[string]any
	var status int
	var errClass ErrorClass

	attempts, err := retryFixed(ctx, c.config.Retry, c.logger, func(attempt int) error {
		var attemptErr error
		envelope, status, errClass, attemptErr = c.attempt(ctx, rawURL, endpoint)
		return attemptErr
	}, func(error) ErrorClass {
		return errClass
	})
	if err != nil {
		if errors.Is(err, ErrContextCancelled) || ctx.Err() != nil {
			errClass = ErrorClassCancelled
		}
		return nil, &TransportError{
			URL:        rawURL,
			Attempts:   attempts,
			StatusCode: status,
			ErrorClass: errClass,
			Err:        err,
		}
	}

	if se := serviceErrorFrom(rawURL, envelope); se != nil {
		harvestServiceErrorsTotal.WithLabelValues(strconv.Itoa(se.Code)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("code", se.Code).
			Str("message", se.Message).
			Msg("Service returned error envelope")
		return nil, se
	}

	return envelope, nil
}

// attempt runs one paced GET and decodes the body.
func (c *Client) attempt(ctx context.Context, rawURL, endpoint string) (map[string]any, int, ErrorClass, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, 0, ErrorClassCancelled, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, ErrorClassClient, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept-Encoding", AcceptEncoding)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug().Str("url", rawURL).Msg("Executing feature service request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := c.classifyError(nil, err)
		if ctx.Err() != nil {
			class = ErrorClassCancelled
		}
		harvestErrorsTotal.WithLabelValues(string(class)).Inc()
		harvestRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, 0, class, err
	}
	defer resp.Body.Close()

	harvestRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := c.classifyError(resp, nil)
		harvestErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Feature service HTTP error")
		return nil, resp.StatusCode, class, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := readBody(resp, c.config.MaxBodyBytes)
	if err != nil {
		class := ErrorClassDecode
		if errors.Is(err, ErrBodyTooLarge) {
			class = ErrorClassTooLarge
			c.logger.Error().
				Str("endpoint", endpoint).
				Int64("max_body_bytes", c.config.MaxBodyBytes).
				Msg("Feature service response too large")
		}
		harvestErrorsTotal.WithLabelValues(string(class)).Inc()
		return nil, resp.StatusCode, class, err
	}

	envelope, err := decodeJSON(body)
	if err != nil {
		harvestErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, resp.StatusCode, ErrorClassDecode, err
	}

	return envelope, resp.StatusCode, "", nil
}

// classifyError categorizes an error for observability and retry handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// endpointLabel reduces a URL to its path for metric labels.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	return u.Path
}
