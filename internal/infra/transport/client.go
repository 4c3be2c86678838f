package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradebot/internal/domain"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	DefaultTimeout = 30 * time.Second
)

// errReadTimeout is the cancel cause when the body outlives the read timeout.
var errReadTimeout = errors.New("response body read timed out")

// Request is one outbound exchange call.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Response is the raw exchange reply. The status code is returned as-is;
// adapters decide what counts as success.
type Response struct {
	StatusCode int
	Reason     string
	Payload    []byte
}

// Client is the shared transport core. It opens one connection per call,
// never retries, and classifies every failure as retriable or fatal.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	header     http.Header
	logger     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHeader adds a default header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// WithRoundTripper replaces the underlying transport (tests, proxies).
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// NewClient creates a transport whose connect and read timeouts both equal timeout.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dialer := &net.Dialer{Timeout: timeout}
	c := &Client{
		// no overall client timeout; Send bounds connect, headers and body separately
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				DisableKeepAlives:     true,
			},
		},
		timeout: timeout,
		header:  make(http.Header),
		logger:  slog.Default().With("module", "transport"),
	}
	c.header.Set("User-Agent", DefaultUserAgent)

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("transport ready", slog.Duration("timeout", timeout))
	return c
}

// Timeout returns the configured connect/read timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Send performs req. Errors are *domain.NetworkTimeoutError or
// *domain.UnexpectedNetworkError; any returned Response has a fully read body.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	op := req.Method + " " + req.URL

	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("malformed url %q", req.URL)
		}
		return nil, domain.NewUnexpectedNetworkError(op, err)
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, u.String(), body)
	if err != nil {
		return nil, domain.NewUnexpectedNetworkError(op, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Classify(op, err)
	}
	defer resp.Body.Close()

	// the read timeout restarts once headers are in
	timer := time.AfterFunc(c.timeout, func() { cancel(errReadTimeout) })
	payload, err := io.ReadAll(resp.Body)
	timer.Stop()
	if err != nil {
		if errors.Is(context.Cause(reqCtx), errReadTimeout) {
			return nil, domain.NewNetworkTimeoutError(op, errReadTimeout)
		}
		return nil, Classify(op, err)
	}

	c.logger.Debug("exchange call",
		slog.String("method", req.Method),
		slog.String("path", u.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if IsUnhealthyStatus(resp.StatusCode) {
		return nil, &domain.NetworkTimeoutError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("exchange unhealthy: %s", strings.TrimSpace(resp.Status)),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Payload:    payload,
	}, nil
}

func reasonPhrase(resp *http.Response) string {
	// resp.Status is "200 OK"
	if i := strings.IndexByte(resp.Status, ' '); i >= 0 {
		return resp.Status[i+1:]
	}
	return http.StatusText(resp.StatusCode)
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
