package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type Client struct {
	client       *http.Client
	streamClient *http.Client
	maxRetries   int
	retryDelay   time.Duration
}

func New(opts Options) *Client {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Client{
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		// Streaming responses outlive any sensible whole-request timeout;
		// they are bounded by ctx instead.
		streamClient: &http.Client{},
		maxRetries:   opts.MaxRetries,
		retryDelay:   opts.RetryDelay,
	}
}

// Do retries transport errors and 5xx responses. Other statuses, including
// 429, are returned to the caller to classify.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.do(ctx, c.client, req)
}

func (c *Client) do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req.Body = body
			}
		}

		req = req.WithContext(ctx)
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d, body: %s", resp.StatusCode, string(body))
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) Post(ctx context.Context, url string, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

func (c *Client) PostJSON(ctx context.Context, url string, body []byte) (*http.Response, error) {
	return c.Post(ctx, url, "application/json", body)
}

// PostJSONStream is PostJSON for long-lived streaming responses: no overall
// client timeout, and the caller owns the body until ctx ends.
func (c *Client) PostJSONStream(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	return c.do(ctx, c.streamClient, req)
}
