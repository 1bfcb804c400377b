// Package probe checks that a running dashboard server answers.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 5 * time.Second
	// maxBody caps how much of a response is read for comparison.
	maxBody = 1 << 20
)

var (
	ErrUnhealthy = errors.New("server unhealthy")
	// ErrAppUnreachable is returned by CheckFull when the UI is not mounted.
	ErrAppUnreachable = errors.New("app path unreachable")
)

// Client probes a server over HTTP.
type Client struct {
	client  *http.Client
	appPath string
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithAppPath sets the UI path checked by CheckFull.
func WithAppPath(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.appPath = "/" + strings.Trim(p, "/")
		}
	}
}

// New creates a probe client.
func New(opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: defaultTimeout},
		appPath: "/app",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check GETs baseURL/ and expects a 2xx response.
func (c *Client) Check(ctx context.Context, baseURL string) error {
	_, err := c.get(ctx, strings.TrimRight(baseURL, "/")+"/")
	return err
}

// CheckFull runs Check and then verifies the UI path answers with content
// other than the liveness response.
func (c *Client) CheckFull(ctx context.Context, baseURL string) error {
	base := strings.TrimRight(baseURL, "/")
	root, err := c.get(ctx, base+"/")
	if err != nil {
		return err
	}
	app, err := c.get(ctx, base+c.appPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAppUnreachable, err)
	}
	if bytes.Equal(root, app) {
		return fmt.Errorf("%w: %s serves the liveness response", ErrAppUnreachable, c.appPath)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnhealthy, url, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrUnhealthy, url, resp.StatusCode)
	}
	return body, nil
}
