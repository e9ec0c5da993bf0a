package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
	defaultRateLimit   = 5.0 // requests per second
	defaultBurst       = 10
)

// Config configures the HTTP extraction client.
type Config struct {
	// BaseURL is the extraction service endpoint, without a trailing slash.
	BaseURL string `json:"base_url" koanf:"base_url"`

	// APIKey authenticates requests when the service requires it.
	APIKey string `json:"-" koanf:"api_key"`

	// Timeout bounds one HTTP request.
	Timeout time.Duration `json:"timeout" koanf:"timeout"`

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `json:"max_retries" koanf:"max_retries"`

	// RateLimit is the sustained request rate in requests per second.
	RateLimit float64 `json:"rate_limit" koanf:"rate_limit"`

	// Burst is the rate limiter burst size.
	Burst int `json:"burst" koanf:"burst"`
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
}

// HTTPClient talks to the extraction service over HTTP with rate limiting
// and retries with exponential backoff for transient failures.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
}

// NewHTTPClient creates an extraction client.
func NewHTTPClient(cfg Config, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("extraction service base URL required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}, nil
}

// Extract implements Client. Transient failures (connection errors, 429,
// 5xx) are retried with exponential backoff; anything else fails fast.
func (c *HTTPClient) Extract(ctx context.Context, req Request) (*Extraction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying extraction request",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		extraction, err := c.doRequest(ctx, req)
		if err == nil {
			return extraction, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *HTTPClient) doRequest(ctx context.Context, req Request) (*Extraction, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("extraction request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service error (%d): %s", resp.StatusCode, string(body))
	}

	var extraction Extraction
	if err := json.Unmarshal(body, &extraction); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &extraction, nil
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*retryableError)
	return ok
}

// Ensure interfaces are implemented at compile time.
var _ Client = (*HTTPClient)(nil)
