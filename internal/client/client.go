// Package client provides an HTTP client for the twin's /admin endpoints
// and for probing the front end under test.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// AdminClient talks to a twin's /admin/* endpoints.
type AdminClient struct {
	base string
	http *http.Client
}

// New creates an AdminClient for the twin at baseURL with a 5-second
// timeout. A bare host:port gets an http:// scheme.
func New(baseURL string) *AdminClient {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &AdminClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *AdminClient) do(ctx context.Context, method, path string, body io.Reader) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(data)), nil
}

// Health checks GET /admin/health. Returns (ok, response body or error message).
func (c *AdminClient) Health(ctx context.Context) (bool, string) {
	status, body, err := c.do(ctx, http.MethodGet, "/admin/health", nil)
	if err != nil {
		return false, err.Error()
	}
	if status == http.StatusOK {
		return true, body
	}
	return false, fmt.Sprintf("status %d: %s", status, body)
}

// Reset calls POST /admin/reset, restoring the seed data.
func (c *AdminClient) Reset(ctx context.Context) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/admin/reset", nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("reset returned status %d: %s", status, body)
	}
	return body, nil
}

// State fetches GET /admin/state.
func (c *AdminClient) State(ctx context.Context) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/admin/state", nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("state returned status %d: %s", status, body)
	}
	return body, nil
}

// Seed POSTs the contents of a JSON file to POST /admin/state.
func (c *AdminClient) Seed(ctx context.Context, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("reading seed file: %w", err)
	}
	status, body, err := c.do(ctx, http.MethodPost, "/admin/state", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("seed failed (status %d): %s", status, body)
	}
	return body, nil
}

// WaitReady polls url until it answers with a non-5xx status or timeout
// elapses. It backs off exponentially between attempts.
func WaitReady(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hc := &http.Client{Timeout: 2 * time.Second}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0

	var last error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := hc.Do(req)
		if err != nil {
			last = err
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			last = fmt.Errorf("status %d", resp.StatusCode)
			return last
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if last != nil {
			return fmt.Errorf("%s not ready after %s: %w", url, timeout, last)
		}
		return fmt.Errorf("%s not ready: %w", url, err)
	}
	return nil
}
