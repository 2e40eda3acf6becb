// Package catalog implements the remote digital-library API client: paged
// search, per-item metadata, and raw file streaming.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ErrNotRetryable marks responses that must not be retried (4xx).
var ErrNotRetryable = errors.New("not retryable")

// Config controls the catalog client.
type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client talks to the catalog API with bounded retries.
type Client struct {
	baseURL    string
	userAgent  string
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// New creates a catalog Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		http:       &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}, nil
}

type searchResponse struct {
	Response struct {
		Docs     []SearchDoc `json:"docs"`
		NumFound int         `json:"numFound"`
		Start    int         `json:"start"`
	} `json:"response"`
}

// Search returns one page of search results.
func (c *Client) Search(ctx context.Context, query string, start, rows int, sort string) (SearchPage, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("fl", "identifier,title,year,collection,format")
	params.Set("rows", strconv.Itoa(rows))
	params.Set("start", strconv.Itoa(start))
	params.Set("output", "json")
	if sort != "" {
		params.Set("sort", sort)
	}

	body, err := c.getWithRetry(ctx, c.baseURL+"/advancedsearch.php?"+params.Encode())
	if err != nil {
		return SearchPage{}, fmt.Errorf("search at offset %d: %w", start, err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SearchPage{}, fmt.Errorf("decode search response: %w", err)
	}
	return SearchPage{
		Docs:     parsed.Response.Docs,
		NumFound: parsed.Response.NumFound,
		Start:    parsed.Response.Start,
	}, nil
}

// ItemMetadata fetches the detailed metadata document for one identifier.
// The raw body is preserved for the audit blob.
func (c *Client) ItemMetadata(ctx context.Context, identifier string) (*ItemMetadata, error) {
	body, err := c.getWithRetry(ctx, c.baseURL+"/metadata/"+url.PathEscape(identifier))
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", identifier, err)
	}

	var meta ItemMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", identifier, err)
	}
	meta.Raw = json.RawMessage(body)
	return &meta, nil
}

// Download streams the raw bytes of one file. The caller owns the reader.
func (c *Client) Download(ctx context.Context, identifier, filename string) (io.ReadCloser, error) {
	target := c.baseURL + "/download/" + url.PathEscape(identifier) + "/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", identifier, filename, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		err := fmt.Errorf("download %s/%s: unexpected status %d", identifier, filename, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %w", ErrNotRetryable, err)
		}
		return nil, err
	}
	return resp.Body, nil
}

// ItemURL returns the canonical details page for an identifier.
func (c *Client) ItemURL(identifier string) string {
	return c.baseURL + "/details/" + identifier
}

func (c *Client) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func (c *Client) getWithRetry(ctx context.Context, target string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(c.retryDelay, attempt-1)); err != nil {
				return nil, err
			}
		}

		body, err := c.getOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if errors.Is(err, ErrNotRetryable) || ctx.Err() != nil {
			return nil, err
		}
		if c.logger != nil {
			c.logger.Warn("request attempt failed",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) getOnce(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrNotRetryable, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("%w: status %d", ErrNotRetryable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// backoff returns delay * 2^attempt.
func backoff(delay time.Duration, attempt int) time.Duration {
	return delay << uint(attempt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
