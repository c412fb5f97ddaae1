package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"
)

const maxBodyBytes = 1 << 20

// Client issues JSON requests to media zone providers.
// It holds the provider session (pooled connections) for the process lifetime.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a provider client with the given per-request timeout.
// Uses connection pooling since every zone is polled every few seconds.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// FetchJSON performs a GET request and returns the raw JSON body.
// The body is only returned for HTTP 200 responses carrying valid JSON.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		if err == nil {
			err = errors.New("url must be absolute")
		}
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err, timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &ParseError{URL: rawURL, Err: errors.New("expected application/json but received no content type")}
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !isJSONMediaType(mediaType) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &ParseError{URL: rawURL, Err: fmt.Errorf("expected application/json but received %s", contentType)}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err, timeout: isTimeout(err)}
	}

	if !json.Valid(payload) {
		return nil, &ParseError{URL: rawURL, Err: errors.New("invalid json")}
	}

	return json.RawMessage(payload), nil
}

// DecodeJSON fetches rawURL and decodes the body into dst.
func (c *Client) DecodeJSON(ctx context.Context, rawURL string, dst any) error {
	payload, err := c.FetchJSON(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return &ParseError{URL: rawURL, Err: err}
	}
	return nil
}

func isJSONMediaType(mediaType string) bool {
	if mediaType == "application/json" {
		return true
	}
	// application/problem+json, application/vnd.foo+json
	return len(mediaType) > 5 && mediaType[len(mediaType)-5:] == "+json"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
