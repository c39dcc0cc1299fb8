// Package crm is a client for the CRM REST API: paged list reads with
// structured where filters, record mutations, and a health probe.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/simp-lee/crmdesk/internal/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUA        = "crmdesk"
	defaultMaxRetry  = 3
	defaultRetryBase = 200 * time.Millisecond
	maxBackoff       = 10 * time.Second

	apiPrefix = "/api/v1/"
	pingPath  = "App/user"
)

// Options configures the Client.
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Timeout   time.Duration

	// Retry policy for idempotent reads. Mutations are never retried.
	MaxRetries int
	RetryBase  time.Duration

	// OnUnauthorized is called whenever the CRM answers 401.
	OnUnauthorized func(ctx context.Context, err error)

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to one CRM instance.
type Client struct {
	http  *http.Client
	opts  Options
	base  string
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client with defaults applied.
func NewClient(o Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("crm: base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("crm: invalid base url %q: %w", o.BaseURL, err)
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:  hc,
		opts:  o,
		base:  base,
		log:   log.With(slog.String("component", "crm")),
		sleep: sleepContext,
	}, nil
}

// Ping checks that the CRM is reachable and accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, pingPath, nil, nil)
	return err
}

// do sends one API request and returns the response body of a 2xx answer.
// GET requests are retried on transport errors and transient statuses.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, domain.NewAppError(domain.CodeValidation, "invalid record payload", err)
		}
		body = b
	}

	target := c.base + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	retryable := method == http.MethodGet

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, domain.NewAppError(domain.CodeInternal, "failed to build crm request", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.opts.UserAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.opts.APIKey != "" {
			req.Header.Set("X-Api-Key", c.opts.APIKey)
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		latency := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if retryable && c.shouldRetry(attempts) {
				back := c.backoff(attempts)
				c.log.WarnContext(ctx, "crm transport error, retrying",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempts),
					slog.Duration("retry_in", back),
					slog.Any("error", err),
				)
				if err := c.sleep(ctx, back); err != nil {
					return nil, err
				}
				attempts++
				continue
			}
			return nil, domain.NewAppError(domain.CodeUpstream, msgUnavailable, err)
		}

		c.log.DebugContext(ctx, "crm http response",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempt", attempts),
			slog.Duration("latency", latency),
		)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			data, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return nil, domain.NewAppError(domain.CodeUpstream, msgUnavailable, err)
			}
			return data, nil
		}

		if retryable && transientStatus(resp.StatusCode) && c.shouldRetry(attempts) {
			back := c.backoff(attempts)
			c.log.WarnContext(ctx, "crm transient status, retrying",
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempts),
				slog.Duration("retry_in", back),
			)
			_ = drainAndClose(resp.Body)
			if err := c.sleep(ctx, back); err != nil {
				return nil, err
			}
			attempts++
			continue
		}

		apiErr := statusError(resp)
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized && c.opts.OnUnauthorized != nil {
			c.opts.OnUnauthorized(ctx, apiErr)
		}
		return nil, apiErr
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase << uint(attempt)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	return rc.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func entityPath(entity string, id ...string) string {
	p := url.PathEscape(entity)
	for _, s := range id {
		p += "/" + url.PathEscape(s)
	}
	return p
}
