package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Client is the shared rate-limited HTTP client used by the URL provider
// adapters. Requests are throttled per host so one misbehaving provider
// cannot exhaust another's budget, and response bodies are capped.
type Client struct {
	http        *http.Client
	userAgent   string
	maxBodySize int64
	perHost     rate.Limit
	limiters    map[string]*rate.Limiter
	mu          sync.Mutex
	logger      arbor.ILogger
}

// NewClient creates a rate-limited HTTP client. requestsPerHost is the
// sustained per-host requests per second.
func NewClient(timeout time.Duration, userAgent string, maxBodySize int, requestsPerHost int, logger arbor.ILogger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBodySize <= 0 {
		maxBodySize = 10 << 20
	}
	if requestsPerHost <= 0 {
		requestsPerHost = 2
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		userAgent:   userAgent,
		maxBodySize: int64(maxBodySize),
		perHost:     rate.Limit(requestsPerHost),
		limiters:    make(map[string]*rate.Limiter),
		logger:      logger,
	}
}

// Get fetches a URL and returns the status code and capped body
func (c *Client) Get(ctx context.Context, rawURL string) (int, []byte, error) {
	if err := c.waitForHost(ctx, rawURL); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid request URL: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("HTTP fetch")

	return resp.StatusCode, body, nil
}

// waitForHost blocks until the host's rate limiter admits the request
func (c *Client) waitForHost(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Host)

	c.mu.Lock()
	limiter, ok := c.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(c.perHost, 1)
		c.limiters[host] = limiter
	}
	c.mu.Unlock()

	return limiter.Wait(ctx)
}
