package httpremote

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vertextoedge/asyncfetch/internal/port"
	"github.com/vertextoedge/asyncfetch/internal/util/ratelimiter"
	"go.uber.org/zap"
)

// Client talks to the async result file server over HTTP(S)
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *ratelimiter.Limiter
	logger     *zap.Logger
}

// Ensure Client implements port.RemoteClient and port.RequestClient
var (
	_ port.RemoteClient  = (*Client)(nil)
	_ port.RequestClient = (*Client)(nil)
)

const (
	// maxResponseBody caps bodies read into memory by Fetch
	maxResponseBody = 64 * 1024 * 1024

	transferBufferSize = 1024 * 1024
)

// ClientConfig contains client configuration
type ClientConfig struct {
	// SkipTLSVerify disables certificate validation, for self-signed endpoints
	SkipTLSVerify bool

	// Timeout is the overall request timeout. Zero means none.
	Timeout time.Duration

	// MinRequestInterval spaces requests apart. Zero disables pacing.
	MinRequestInterval time.Duration

	UserAgent string
}

// NewClient creates a new file server client
func NewClient(cfg *ClientConfig, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		},
		// Connection pooling
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,

		WriteBufferSize: transferBufferSize,
		ReadBufferSize:  transferBufferSize,

		ForceAttemptHTTP2: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: 60 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		limiter:   ratelimiter.New(cfg.MinRequestInterval),
		logger:    logger,
	}
}

// Get fetches url and returns its body on a 2xx answer
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, *port.ResourceInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, nil, err
	}

	info := resourceInfo(url, resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, info, &port.StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	return resp.Body, info, nil
}

// Head checks url without transferring a body
func (c *Client) Head(ctx context.Context, url string) (*port.ResourceInfo, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	info := resourceInfo(url, resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return info, &port.StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return info, nil
}

// Fetch GETs url and returns the full answer, including error bodies
func (c *Client) Fetch(ctx context.Context, url string) (*port.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &port.Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
	}, nil
}

// do performs an HTTP request after waiting for the pacing limiter
func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return resp, nil
}

func resourceInfo(url string, resp *http.Response) *port.ResourceInfo {
	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &port.ResourceInfo{
		URL:           finalURL,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}
}
