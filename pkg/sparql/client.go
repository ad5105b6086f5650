// Package sparql provides the read-only query client for the
// knowledge-graph endpoint.
//
// The client validates and escapes parameters before substituting them
// into query templates, refuses anything but read-only query forms,
// caches parsed results by query hash and retries endpoint failures
// with exponential backoff. Queries the endpoint rejects are never
// retried.
package sparql

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/securechain/sbomgen/pkg/audit"
	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/logging"
	"github.com/securechain/sbomgen/pkg/metrics"
)

// maxErrorBody bounds how much of an error response body is kept.
const maxErrorBody = 2048

// Querier is the querying surface the resolver depends on.
type Querier interface {
	Query(ctx context.Context, template string, params map[string]string) (*ResultSet, error)
}

// Config holds client configuration.
type Config struct {
	// Endpoint is the SPARQL endpoint URL. Required.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Timeout bounds each individual request attempt.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// MaxRetries is the total number of attempts for retryable
	// failures, the first attempt included.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// RetryDelay is the backoff before the second attempt. It doubles
	// per attempt up to MaxRetryDelay.
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`

	// CacheTTL and CacheMaxEntries bound the in-memory result cache.
	CacheTTL        time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries" json:"cache_max_entries"`

	// RateLimit caps outgoing queries per second. 0 disables the cap.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// DefaultConfig returns default client config.
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryDelay:      time.Second,
		MaxRetryDelay:   10 * time.Second,
		CacheTTL:        DefaultCacheTTL,
		CacheMaxEntries: DefaultCacheMaxEntries,
	}
}

// Client issues read-only queries against a single endpoint.
type Client struct {
	endpoint      string
	httpClient    *http.Client
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	userAgent     string
	verbose       bool

	cache     *queryCache
	limiter   *rate.Limiter
	logger    logging.Logger
	collector metrics.Collector
	auditLog  *audit.Logger
}

// Ensure Client implements Querier
var _ Querier = (*Client)(nil)

// New creates a new client, filling unset config values with defaults.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Endpoint == "" {
		return nil, errors.ErrMissingEndpoint
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.E(errors.KindInvalidInput, "sparql.New",
			fmt.Sprintf("invalid endpoint URL %q", cfg.Endpoint))
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sbomgen/1.0"
	}

	c := &Client{
		endpoint:      cfg.Endpoint,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		userAgent:     cfg.UserAgent,
		verbose:       cfg.Verbose,
		cache:         newQueryCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		logger:        logging.Default(),
		collector:     metrics.GetDefaultCollector(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// =============================================================================
// Functional Options Pattern
// =============================================================================

// Option is a function that configures the client.
type Option func(*Client)

// NewWithOptions creates a client for endpoint using functional options.
// Example:
//
//	client, err := sparql.NewWithOptions("http://localhost:3030/sc/query",
//	    sparql.WithTimeout(10 * time.Second),
//	    sparql.WithLogger(logger),
//	)
func NewWithOptions(endpoint string, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	return New(cfg, opts...)
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetry sets retry configuration.
func WithRetry(maxRetries int, retryDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = retryDelay
	}
}

// WithRateLimit caps outgoing queries per second.
func WithRateLimit(qps float64) Option {
	return func(c *Client) {
		if qps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(qps), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCollector sets the metrics collector.
func WithCollector(m metrics.Collector) Option {
	return func(c *Client) {
		if m != nil {
			c.collector = m
		}
	}
}

// WithAuditLog attaches an audit logger for query lifecycle events.
func WithAuditLog(a *audit.Logger) Option {
	return func(c *Client) {
		c.auditLog = a
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(v bool) Option {
	return func(c *Client) {
		c.verbose = v
	}
}

// =============================================================================
// Query Execution
// =============================================================================

// Query substitutes params into template and executes the result.
//
// Every value is validated and escaped before it touches the template;
// a rejected value fails the call before any network activity. The
// substituted query must be one of the read-only query forms. Results
// are cached by the SHA-256 of the substituted query text.
func (c *Client) Query(ctx context.Context, template string, params map[string]string) (*ResultSet, error) {
	escaped := make(map[string]string, len(params))
	for name, value := range params {
		if err := ValidateParam(name, value); err != nil {
			c.collector.CounterInc(metrics.RejectedParamsTotal.Name)
			c.collector.CounterInc(metrics.QueriesTotal.Name, "status", "rejected")
			if c.auditLog != nil {
				c.auditLog.QueryRejected(name, err)
			}
			return nil, err
		}
		escaped[name] = EscapeLiteral(value)
	}

	query, err := substituteParams(template, escaped)
	if err != nil {
		c.collector.CounterInc(metrics.QueriesTotal.Name, "status", "rejected")
		return nil, err
	}
	if err := CheckReadOnly(query); err != nil {
		c.collector.CounterInc(metrics.QueriesTotal.Name, "status", "rejected")
		return nil, err
	}

	key := cacheKey(query)
	if rs, ok := c.cache.get(key); ok {
		c.collector.CounterInc(metrics.CacheHitsTotal.Name)
		if c.auditLog != nil {
			c.auditLog.CacheHit(key)
		}
		return rs, nil
	}
	c.collector.CounterInc(metrics.CacheMissesTotal.Name)

	timer := metrics.NewTimer(c.collector, metrics.QueryDuration.Name)
	rs, err := c.execute(ctx, query, key)
	timer.ObserveDuration()
	if err != nil {
		c.collector.CounterInc(metrics.QueriesTotal.Name, "status", "error")
		if c.auditLog != nil {
			c.auditLog.QueryFailed(key, err)
		}
		return nil, err
	}

	c.collector.CounterInc(metrics.QueriesTotal.Name, "status", "ok")
	c.cache.put(key, rs)
	c.collector.GaugeSet(metrics.CacheEntries.Name, float64(c.cache.len()))
	return rs, nil
}

// Ping issues a minimal ASK probe, bypassing the result cache.
func (c *Client) Ping(ctx context.Context) error {
	const probe = "ASK { ?s ?p ?o }"
	_, err := c.execute(ctx, probe, cacheKey(probe))
	return err
}

// CacheStats reports the state of the result cache.
func (c *Client) CacheStats() CacheStats {
	return c.cache.stats()
}

// ClearCache drops all cached results.
func (c *Client) ClearCache() {
	c.cache.clear()
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// execute runs a substituted query with retry on endpoint failures.
func (c *Client) execute(ctx context.Context, query, key string) (*ResultSet, error) {
	const op = "sparql.Query"

	if c.auditLog != nil {
		c.auditLog.QueryIssued(key, len(query))
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			// Exponential backoff: delay * 2^(attempt-2), capped.
			backoff := c.retryDelay * time.Duration(1<<(attempt-2))
			if backoff > c.maxRetryDelay {
				backoff = c.maxRetryDelay
			}
			if c.verbose {
				c.logger.Debug("retrying query (attempt %d/%d) after %v", attempt, c.maxRetries, backoff)
			}

			select {
			case <-ctx.Done():
				return nil, errors.E(errors.KindEndpoint, op, "cancelled while backing off", ctx.Err())
			case <-time.After(backoff):
			}

			c.collector.CounterInc(metrics.QueryRetriesTotal.Name)
			if c.auditLog != nil {
				c.auditLog.QueryRetried(key, attempt, c.maxRetries)
			}
		}

		rs, err := c.doQueryOnce(ctx, query)
		if err == nil {
			return rs, nil
		}
		lastErr = err

		// Rejected queries stay rejected; only endpoint failures retry.
		if !errors.IsRetryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, errors.E(errors.KindEndpoint, op, "cancelled", ctx.Err())
		}
		c.logger.Warn("query attempt %d/%d failed: %v", attempt, c.maxRetries, err)
	}

	return nil, errors.E(errors.KindEndpoint, op,
		fmt.Sprintf("query failed after %d attempts", c.maxRetries), lastErr)
}

// doQueryOnce performs a single form-encoded POST of the query.
func (c *Client) doQueryOnce(ctx context.Context, query string) (*ResultSet, error) {
	const op = "sparql.Query"

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.E(errors.KindEndpoint, op, "rate limit wait", err)
		}
	}

	form := url.Values{}
	form.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, "create request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.E(errors.KindEndpoint, op, "endpoint request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.E(errors.KindEndpoint, op, "read response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ParseResults(data)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, errors.E(errors.KindQuery, op, "endpoint rejected query",
			&HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(data), maxErrorBody)})
	default:
		return nil, errors.E(errors.KindEndpoint, op, "endpoint failure",
			&HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(data), maxErrorBody)})
	}
}

// HTTPError is the raw HTTP-level failure behind an endpoint or query
// error.
type HTTPError struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// IsHTTPError checks if err is an HTTPError and returns it.
func IsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
