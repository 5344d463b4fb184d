package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single upstream fetch.
const DefaultTimeout = 15 * time.Second

// defaultUserAgent keeps picky CDNs from rejecting the proxy outright.
const defaultUserAgent = "Mozilla/5.0"

// Result carries the upstream body and the content type it was served with.
// ContentType is empty when the upstream did not supply one.
type Result struct {
	Body        []byte
	ContentType string
}

// Client fetches remote manifests, segments, and images. Safe for concurrent use.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient constructs a Client with the supplied per-request timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// Fetch retrieves rawURL. A non-empty referer is forwarded as the Referer
// header. Cancelling ctx abandons the fetch. Non-2xx upstream statuses are
// errors; no retries are attempted.
func (c *Client) Fetch(ctx context.Context, rawURL, referer string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream: fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read body: %w", err)
	}

	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
