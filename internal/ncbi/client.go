package ncbi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-mcp-service/internal/observability"
)

const (
	// DefaultTimeout is the per-call HTTP timeout.
	DefaultTimeout = 60 * time.Second

	// RateLimitWithKey is the NCBI allowance with an API key (requests/second).
	RateLimitWithKey = 10

	// RateLimitWithoutKey is the NCBI allowance without an API key.
	RateLimitWithoutKey = 3

	// defaultRetryAfter is the suggested delay when the server gives no hint.
	defaultRetryAfter = 60 * time.Second

	// maxResponseBytes bounds how much of an upstream response is read.
	maxResponseBytes = 10 << 20
)

// ClientConfig configures a request-core Client.
type ClientConfig struct {
	// BaseURL is the API root; endpoint paths are joined onto it.
	BaseURL string

	// APIKey is the NCBI API key. Optional; its presence raises the default
	// rate limit from 3 to 10 requests/second.
	APIKey string

	// Tool and Email identify this client to NCBI, as their usage policy
	// requires. Both are sent as common query parameters on every call.
	Tool  string
	Email string

	// Timeout is the per-call HTTP timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per RateWindow. Zero derives the
	// limit from APIKey presence.
	RateLimit int

	// RateWindow is the limiter window. Defaults to one second.
	RateWindow time.Duration

	// Retry is the backoff schedule for transient failures.
	Retry Backoff

	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// applyDefaults fills in zero-valued fields.
func (c *ClientConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		if c.APIKey != "" {
			c.RateLimit = RateLimitWithKey
		} else {
			c.RateLimit = RateLimitWithoutKey
		}
	}
	if c.RateWindow == 0 {
		c.RateWindow = time.Second
	}
	if c.Retry == (Backoff{}) {
		c.Retry = DefaultBackoff()
	}
	if c.Tool == "" {
		c.Tool = "pubmed-mcp-service"
	}
	if c.UserAgent == "" {
		c.UserAgent = fmt.Sprintf("%s/1.0 (mailto:%s)", c.Tool, c.Email)
	}
}

// Response is the raw result of a successful call: status plus body text.
// No parsing happens inside the request core.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// Client is the request core every API-specific NCBI client calls through.
// It acquires a limiter token before each attempt, classifies responses, and
// retries transient failures on the configured backoff schedule.
//
// A Client owns its Limiter; independent Clients have independent rate
// allowances. Use SharedLimiter to enforce one global ceiling across several
// clients instead.
type Client struct {
	http    *http.Client
	limiter *Limiter
	cfg     ClientConfig
	logger  zerolog.Logger
	metrics *observability.Metrics
	api     string
}

// NewClient creates a request core for the given API.
//
// The api label names the upstream (e.g. "eutils", "bioc", "idconv") and is
// used for logging and metrics only. metrics may be nil.
func NewClient(api string, cfg ClientConfig, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: NewLimiter(cfg.RateLimit, cfg.RateWindow),
		cfg:     cfg,
		logger:  logger.With().Str("component", "ncbi-client").Str("api", api).Logger(),
		metrics: metrics,
		api:     api,
	}
}

// Limiter exposes the client's token bucket, so callers can share it across
// clients or raise the limit when credentials change mid-run.
func (c *Client) Limiter() *Limiter { return c.limiter }

// SharedLimiter replaces the client's limiter with the given one. All clients
// sharing a limiter serialize on a single rate ceiling.
func (c *Client) SharedLimiter(l *Limiter) { c.limiter = l }

// Get issues a GET request against the endpoint with the given parameters.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, params, nil)
}

// PostForm issues a POST request with form-encoded body data.
func (c *Client) PostForm(ctx context.Context, endpoint string, params, form url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, params, form)
}

// Do executes one logical request with rate limiting and retries.
//
// Every attempt, including retries, pays one limiter token. A 429 or 5xx
// response and transport-level failures are retried up to the backoff
// schedule's ceiling, then surface as typed terminal errors. Other 4xx
// responses fail immediately. Success returns the raw response untouched.
func (c *Client) Do(ctx context.Context, method, endpoint string, params, form url.Values) (*Response, error) {
	u, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	reqID := uuid.NewString()
	maxRetries := c.cfg.Retry.MaxRetries

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		waitStart := time.Now()
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
		c.observeLimiterWait(time.Since(waitStart))

		resp, err := c.attempt(ctx, method, u, form)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			lastErr = err
			c.countFailure(endpoint, "network")
			if attempt < maxRetries {
				c.logRetry(reqID, endpoint, attempt, 0, err)
				if werr := c.cfg.Retry.Wait(ctx, attempt); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, &NetworkError{Cause: err}
		}

		c.logger.Debug().
			Str("request_id", reqID).
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Int("status", resp.StatusCode).
			Int("bytes", len(resp.Body)).
			Msg("ncbi response")

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			hint := retryAfterHint(resp.Header)
			c.countRateLimited()
			if attempt < maxRetries {
				c.logRetry(reqID, endpoint, attempt, resp.StatusCode, nil)
				if werr := c.waitHint(ctx, attempt, hint); werr != nil {
					return nil, werr
				}
				continue
			}
			if hint <= 0 {
				hint = defaultRetryAfter
			}
			return nil, &RateLimitError{RetryAfter: hint}

		case resp.StatusCode >= 500:
			c.countFailure(endpoint, "server")
			if attempt < maxRetries {
				c.logRetry(reqID, endpoint, attempt, resp.StatusCode, nil)
				if werr := c.cfg.Retry.Wait(ctx, attempt); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, &ServiceError{StatusCode: resp.StatusCode, RetryAfter: suggestedRetryAfter(resp.StatusCode)}

		case resp.StatusCode >= 400:
			c.countFailure(endpoint, "client")
			return nil, statusError(resp.StatusCode, resp.Text())

		default:
			c.countSuccess(endpoint)
			return resp, nil
		}
	}

	// Reachable only if the loop structure changes; keep the guard anyway.
	if lastErr != nil {
		return nil, &NetworkError{Cause: lastErr}
	}
	return nil, errors.New("max retries exhausted without a response")
}

// attempt issues a single HTTP call and reads the full response body.
func (c *Client) attempt(ctx context.Context, method, u string, form url.Values) (*Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/xml, application/json, text/xml")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.observeDuration(req.URL.Path, time.Since(start))

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// buildURL joins the endpoint onto the base URL and merges the common
// identification parameters (tool, email, api_key) into the query.
func (c *Client) buildURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	q := u.Query()
	for key, vals := range params {
		for _, v := range vals {
			q.Add(key, v)
		}
	}
	q.Set("tool", c.cfg.Tool)
	if c.cfg.Email != "" {
		q.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// waitHint waits for a server-supplied delay hint if present, otherwise for
// the backoff schedule's delay.
func (c *Client) waitHint(ctx context.Context, attempt int, hint time.Duration) error {
	if hint > 0 {
		return sleep(ctx, hint)
	}
	return c.cfg.Retry.Wait(ctx, attempt)
}

func (c *Client) logRetry(reqID, endpoint string, attempt, status int, cause error) {
	ev := c.logger.Warn().
		Str("request_id", reqID).
		Str("endpoint", endpoint).
		Int("attempt", attempt+1)
	if status != 0 {
		ev = ev.Int("status", status)
	}
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("retrying ncbi request")
	c.countRetry()
}

// retryAfterHint parses a Retry-After header as whole seconds or an HTTP
// date. Zero means no usable hint was supplied.
func retryAfterHint(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) countSuccess(endpoint string) {
	if c.metrics != nil {
		c.metrics.RequestsTotal.WithLabelValues(c.api, endpoint).Inc()
	}
}

func (c *Client) countFailure(endpoint, kind string) {
	if c.metrics != nil {
		c.metrics.RequestsTotal.WithLabelValues(c.api, endpoint).Inc()
		c.metrics.RequestsFailed.WithLabelValues(c.api, endpoint, kind).Inc()
	}
}

func (c *Client) countRetry() {
	if c.metrics != nil {
		c.metrics.RequestRetries.WithLabelValues(c.api).Inc()
	}
}

func (c *Client) countRateLimited() {
	if c.metrics != nil {
		c.metrics.RateLimited.WithLabelValues(c.api).Inc()
	}
}

func (c *Client) observeLimiterWait(d time.Duration) {
	if c.metrics != nil {
		c.metrics.LimiterWaitSeconds.WithLabelValues(c.api).Observe(d.Seconds())
	}
}

func (c *Client) observeDuration(endpoint string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RequestDuration.WithLabelValues(c.api, endpoint).Observe(d.Seconds())
	}
}
