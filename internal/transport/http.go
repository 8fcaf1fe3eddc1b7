package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"quorumcache/internal/replica"
)

// CachePath is the HTTP resource prefix served by replica nodes.
const CachePath = "/cache"

// EntryBody is the JSON body exchanged with /cache endpoints.
type EntryBody struct {
	Key   int64  `json:"key"`
	Value string `json:"value"`
}

// HTTPClient talks to replicas over their /cache HTTP API.
// Endpoint addresses are base URLs such as http://localhost:3000.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient wraps hc. A nil hc uses a client with keep-alive pooling and
// no global timeout; deadlines come from the request context. The default
// client never follows redirects, so a redirected write fails.
func NewHTTPClient(hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &HTTPClient{client: hc}
}

// Read fetches GET /cache/{key}.
func (c *HTTPClient) Read(ctx context.Context, ep replica.Endpoint, key int64) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, keyURL(ep, key), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body EntryBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", replica.ErrUnavailable, err)
	}
	return body.Value, nil
}

// Write sends PUT /cache/{key} with an EntryBody. The value travels in the
// body so empty strings and dot segments arrive unchanged.
func (c *HTTPClient) Write(ctx context.Context, ep replica.Endpoint, key int64, value string) error {
	body, err := json.Marshal(EntryBody{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPut, keyURL(ep, key), body)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// Remove sends DELETE /cache/{key}.
func (c *HTTPClient) Remove(ctx context.Context, ep replica.Endpoint, key int64) error {
	resp, err := c.do(ctx, http.MethodDelete, keyURL(ep, key), nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// do issues the request and maps every non-200 answer to an error.
func (c *HTTPClient) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", replica.ErrUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		drain(resp)
		return nil, replica.ErrNotFound
	default:
		drain(resp)
		return nil, fmt.Errorf("%w: %s %s returned %s", replica.ErrUnavailable, method, target, resp.Status)
	}
}

func keyURL(ep replica.Endpoint, key int64) string {
	return strings.TrimRight(ep.Addr, "/") + CachePath + "/" + strconv.FormatInt(key, 10)
}

// drain lets the connection be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
