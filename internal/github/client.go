// Package github fetches public developer activity from GitHub.
//
// Structured data comes from the REST API through go-github. Pinned
// repositories and repository pages are only available as HTML from the web
// frontend and are scraped. Every call waits on a shared outbound rate
// limiter, runs under a per-call deadline, and retries transient failures.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL = "https://api.github.com/"
	defaultWebURL = "https://github.com"
	userAgent     = "knowyourdev"
	maxPageBytes  = 4 << 20
)

// Config configures a Client. Zero values fall back to public GitHub and
// conservative limits.
type Config struct {
	Token       string
	APIURL      string
	WebURL      string
	RPS         float64
	Burst       int
	CallTimeout time.Duration
	Retries     int
	// RetryBase is the first backoff interval. Tests shorten it.
	RetryBase  time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a rate-limited GitHub client.
type Client struct {
	api       *gh.Client
	web       *http.Client
	webURL    string
	limiter   *rate.Limiter
	timeout   time.Duration
	retries   int
	retryBase time.Duration
	logger    *slog.Logger
}

// New creates a Client. A token is optional but raises the REST quota.
func New(cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.WebURL == "" {
		cfg.WebURL = defaultWebURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	web := cfg.HTTPClient
	if web == nil {
		web = &http.Client{}
	}

	apiHTTP := web
	if cfg.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, web)
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		apiHTTP = oauth2.NewClient(ctx, ts)
	}

	api := gh.NewClient(apiHTTP)
	base, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("github: parse api url: %w", err)
	}
	api.BaseURL = base
	api.UserAgent = userAgent

	return &Client{
		api:       api,
		web:       web,
		webURL:    strings.TrimSuffix(cfg.WebURL, "/"),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		timeout:   cfg.CallTimeout,
		retries:   cfg.Retries,
		retryBase: cfg.RetryBase,
		logger:    cfg.Logger,
	}, nil
}

// call runs fn under the rate limiter, a per-attempt deadline and the retry policy.
func call[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxInterval = 30 * time.Second

	attempt := 0
	var last error
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		var zero T
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		v, err := fn(callCtx)
		if err != nil {
			last = err
			return zero, classify(ctx, err)
		}
		return v, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.retries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("github: retrying call", "op", op, "attempt", attempt, "backoff", next, "error", err)
		}),
	)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("github: %s: %w", op, exhausted(err, last))
	}
	return v, nil
}

// exhausted turns a secondary rate limit that outlived every retry into
// ErrRateLimited. backoff hands back a bare RetryAfterError in that case.
func exhausted(err, last error) error {
	if errors.Is(err, ErrRateLimited) {
		return err
	}
	var retryAfter *backoff.RetryAfterError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &retryAfter) || errors.As(err, &abuseErr) {
		if last == nil {
			last = err
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, last)
	}
	return err
}

// getPage fetches a page from the web frontend.
func (c *Client) getPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.web.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: pageURL}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("github: read %s: %w", pageURL, err)
	}
	return body, nil
}
