package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrConflict is matched by errors returned for 409 responses.
var ErrConflict = errors.New("request conflicts with daemon state")

// HTTPError is a non-2xx answer from the daemon.
type HTTPError struct {
	StatusCode int
	Message    string
	State      string
}

func (e *HTTPError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("daemon returned %d: %s (state %s)", e.StatusCode, e.Message, e.State)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrConflict) match 409 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrConflict && e.StatusCode == http.StatusConflict
}

// Client talks to the daemon's HTTP surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the daemon at bind, which may be a
// host:port pair or a full URL. Wildcard hosts are dialled on loopback.
func NewClient(bind string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{baseURL: BaseURL(bind), http: &http.Client{Timeout: timeout}}
}

// BaseURL turns an api_bind value into a URL the CLI can dial.
func BaseURL(bind string) string {
	bind = strings.TrimSpace(bind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/")
	}
	switch {
	case strings.HasPrefix(bind, "0.0.0.0:"):
		bind = "127.0.0.1:" + strings.TrimPrefix(bind, "0.0.0.0:")
	case strings.HasPrefix(bind, "[::]:"):
		bind = "[::1]:" + strings.TrimPrefix(bind, "[::]:")
	case strings.HasPrefix(bind, ":"):
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

// Status fetches the controller status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start asks the daemon to begin recording.
func (c *Client) Start(ctx context.Context) (*ControlResponse, error) {
	var resp ControlResponse
	if err := c.do(ctx, http.MethodPost, "/api/start", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon to stop recording.
func (c *Client) Stop(ctx context.Context) (*ControlResponse, error) {
	var resp ControlResponse
	if err := c.do(ctx, http.MethodPost, "/api/stop", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var payload ErrorResponse
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			httpErr.Message = payload.Error
			httpErr.State = payload.State
		}
		return httpErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
