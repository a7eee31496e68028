// Package registry talks to the remote token registry: a multi-client
// key-value store addressed by hierarchical paths holding JSON documents.
// Shared credentials live under system/shared_ai_tokens/{provider}, personal
// backup projections under system/ai_tokens/{userID}/{provider}.
//
// Every call is bounded by the configured timeout. Callers treat failures as
// soft: the local store remains the source of truth for availability.
package registry

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

// ErrNotFound signals a missing document at the requested path.
var ErrNotFound = errors.New("registry: not found")

// Registry is the remote token registry contract.
type Registry interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, doc []byte) error
	Remove(ctx context.Context, path string) error
}

// Client implements Registry over HTTP: GET/PUT/DELETE of JSON documents at
// {baseURL}/{path}.
type Client struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration
}

// Compile-time check: Client implements Registry.
var _ Registry = (*Client)(nil)

// NewClient creates a registry client with a bounded per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch reads the JSON document at path. Returns ErrNotFound on 404.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("registry fetch %s: %w", path, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry fetch %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("registry fetch %s: status %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("registry fetch %s: read body: %w", path, err)
	}
	// Some registries encode an explicit null for deleted subtrees.
	if len(data) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil, ErrNotFound
	}
	return data, nil
}

// Put writes the JSON document at path, replacing any existing subtree.
func (c *Client) Put(ctx context.Context, path string, doc []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(path), bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("registry put %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("registry put %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("registry put %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// Remove deletes the document at path. Removing a missing path is not an error.
func (c *Client) Remove(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("registry remove %s: %w", path, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("registry remove %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("registry remove %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// Ping probes the registry root for reachability. Any HTTP response counts
// as reachable; only transport failures are errors.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("registry ping: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("registry ping: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}
