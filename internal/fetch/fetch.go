package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"
)

// ErrorKind classifies a fetch failure after retries are exhausted.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindHTTPStatus       ErrorKind = "http_status"
	KindConnectionFailed ErrorKind = "connection_failed"
)

// Error is the terminal failure for one URL. Status is only set for
// KindHTTPStatus.
type Error struct {
	Kind     ErrorKind
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: HTTP %d after %d attempts", e.URL, e.Status, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempts: %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config tunes the polite-crawling behavior. Zero values fall back to
// defaults that mimic a human browsing session.
type Config struct {
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	// MinJitter/MaxJitter bound the random pre-request delay.
	MinJitter time.Duration
	MaxJitter time.Duration
	// RequestsPerSecond caps the overall request rate across all sites.
	RequestsPerSecond float64
	UserAgent         string
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.MinJitter == 0 {
		c.MinJitter = 300 * time.Millisecond
	}
	if c.MaxJitter == 0 {
		c.MaxJitter = time.Second
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 2
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
}

// retryableStatus lists the HTTP statuses worth another attempt. Anything
// else is a hard failure on the first response.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client fetches pages with browser-like headers, a shared rate limit,
// random jitter and retry with exponential backoff. Safe for concurrent use.
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a fetch client with the given configuration.
func New(config Config) *Client {
	config.applyDefaults()
	return &Client{
		config:  config,
		client:  &http.Client{Timeout: config.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
	}
}

// Get retrieves one URL and returns the decompressed body. Retryable
// statuses and connection failures are retried up to MaxRetries times; the
// terminal failure is always a *Error describing the last attempt.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr *Error

	attempts := 0
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.config.BackoffBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{Kind: KindTimeout, URL: url, Attempts: attempts, Err: ctx.Err()}
			}
		}

		if err := c.pause(ctx); err != nil {
			return nil, &Error{Kind: KindTimeout, URL: url, Attempts: attempts, Err: err}
		}

		attempts++
		body, ferr := c.fetchOnce(ctx, url)
		if ferr == nil {
			return body, nil
		}
		ferr.Attempts = attempts
		lastErr = ferr

		if ferr.Kind == KindHTTPStatus && !retryableStatus[ferr.Status] {
			return nil, ferr
		}
		if ctx.Err() != nil {
			return nil, ferr
		}
	}

	return nil, lastErr
}

// pause applies the shared rate limit plus a random human-like delay.
func (c *Client) pause(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	jitter := c.config.MinJitter
	if span := c.config.MaxJitter - c.config.MinJitter; span > 0 {
		jitter += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindConnectionFailed, URL: url, Err: err}
	}
	c.setBrowserHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		kind := KindConnectionFailed
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindHTTPStatus, URL: url, Status: resp.StatusCode}
	}

	reader, err := getReader(resp)
	if err != nil {
		return nil, &Error{Kind: KindConnectionFailed, URL: url, Err: err}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &Error{Kind: KindConnectionFailed, URL: url, Err: err}
	}
	return body, nil
}

func (c *Client) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "el-GR,el;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "max-age=0")
}

func getReader(resp *http.Response) (io.Reader, error) {
	var reader io.Reader = resp.Body

	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		reader = gzipReader
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	return reader, nil
}

func isTimeout(err error) bool {
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}
