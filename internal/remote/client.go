package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
)

// DefaultTimeout bounds every remote request.
const DefaultTimeout = 10 * time.Second

// Client talks to the remote store over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the hard per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// NewClient creates a remote store client authenticating with a bearer token.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PushBatch sends mutations of one table and returns per-item results in
// the same order.
func (c *Client) PushBatch(ctx context.Context, tenantID string, table record.Table, batch []mutation.Mutation) ([]PushResult, error) {
	body, err := json.Marshal(pushRequest{Mutations: batch})
	if err != nil {
		return nil, fmt.Errorf("encoding push: %w", err)
	}

	var resp pushResponse
	path := "/v1/tables/" + url.PathEscape(string(table)) + "/push"
	if err := c.do(ctx, http.MethodPost, path, tenantID, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(batch) {
		return nil, fmt.Errorf("%w: push returned %d results for %d mutations", ErrNetwork, len(resp.Results), len(batch))
	}
	return resp.Results, nil
}

// PullSince fetches one page of changes after watermark.
func (c *Client) PullSince(ctx context.Context, tenantID string, table record.Table, watermark int64, limit int) (*PullResult, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(watermark, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/tables/" + url.PathEscape(string(table)) + "/changes?" + q.Encode()

	var resp PullResult
	if err := c.do(ctx, http.MethodGet, path, tenantID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health probes the remote health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, tenantID string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("remote request",
		"method", method, "path", path, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuth, readMessage(resp.Body))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrNetwork, method, path, resp.StatusCode, readMessage(resp.Body))
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrInvalidInput, method, path, resp.StatusCode, readMessage(resp.Body))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrNetwork, path, err)
	}
	return nil
}

func readMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}
