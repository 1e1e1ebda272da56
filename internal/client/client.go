// Package client talks to the F5 Distributed Cloud REST API. Every call goes through the
// retrying executor, keyed by request path, so one failing API surface cannot take the
// others down with it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/f5xc-exporter/internal/executor"
)

// Config holds what the client needs from the tenant and client configuration sections.
type Config struct {
	BaseURL               string
	AccessToken           string
	UserAgent             string
	RequestTimeout        time.Duration
	MaxConcurrentRequests int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock fixes the time used for query windows.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is safe for concurrent use by every collector.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	timeout   time.Duration

	http *http.Client
	sem  *semaphore.Weighted
	exec *executor.Executor
	log  *zap.Logger
	now  func() time.Time
}

func New(cfg Config, exec *executor.Executor, opts ...Option) (*Client, error) {
	if exec == nil {
		return nil, fmt.Errorf("client requires an executor")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid tenant URL %q", cfg.BaseURL)
	}
	if cfg.MaxConcurrentRequests < 1 {
		cfg.MaxConcurrentRequests = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.AccessToken,
		userAgent: cfg.UserAgent,
		timeout:   cfg.RequestTimeout,
		http:      &http.Client{},
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		exec:      exec,
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do performs one logical call. The semaphore slot and the timeout cover a single attempt,
// so backoff waits never hold a slot.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	return c.exec.Execute(ctx, path, func(ctx context.Context) error {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer c.sem.Release(1)

		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return &executor.CallError{Kind: executor.KindClient, Endpoint: path, Err: err}
		}
		requestID := uuid.NewString()
		req.Header.Set("Authorization", "APIToken "+c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Warn("F5XC API request failed",
				zap.String("method", method),
				zap.String("endpoint", path),
				zap.String("request_id", requestID),
				zap.Error(err))
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		kind := executor.KindForStatus(resp.StatusCode)
		if kind != executor.KindSuccess {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			c.log.Warn("F5XC API returned error status",
				zap.String("method", method),
				zap.String("endpoint", path),
				zap.String("request_id", requestID),
				zap.Int("status", resp.StatusCode),
				zap.Stringer("kind", kind))
			return &executor.CallError{
				Kind:       kind,
				StatusCode: resp.StatusCode,
				Endpoint:   path,
				Err:        fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
			}
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return decodeError(ctx, path, resp.StatusCode, err)
			}
		}
		c.log.Debug("F5XC API request successful",
			zap.String("method", method),
			zap.String("endpoint", path),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)))
		return nil
	})
}

// decodeError classifies a body decode failure. Timeouts stay timeouts; anything else is a
// client error and does not count against the breaker.
func decodeError(ctx context.Context, path string, status int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("decode %s response: %w: %w", path, ctxErr, err)
	}
	err = fmt.Errorf("decode %s response: %w", path, err)
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return err
	}
	return &executor.CallError{Kind: executor.KindClient, StatusCode: status, Endpoint: path, Err: err}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}
