package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the server answers 404, e.g. for a process
// that is not currently running.
var ErrNotFound = errors.New("not found")

// Client talks to a running processmon status server.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:9090",
		Timeout: 5 * time.Second,
	}
}

// New creates a status client. A BaseURL without a scheme is treated as
// host:port over plain http, so the configured status.listen value can be
// passed straight through.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: normalizeBase(config.BaseURL),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string { return c.baseURL }

// IsReachable checks if the supervisor is running and its control loop answers
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.get(ctx, "/healthz", nil)
	c.logger.Debug("status server reachability check", "url", c.baseURL, "reachable", err == nil)
	return err == nil
}

// Status fetches the full supervisor status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := c.get(ctx, "/status", &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// ProcessStatus fetches the status of a single running process.
func (c *Client) ProcessStatus(ctx context.Context, name string) (ProcessStatus, error) {
	var ps ProcessStatus
	if err := c.get(ctx, "/status?name="+url.QueryEscape(name), &ps); err != nil {
		return ProcessStatus{}, err
	}
	return ps, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", req.URL.String())
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Debug("failed to decode error response", "status", resp.StatusCode)
		errorResp.Error = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, errorResp.Error)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp.Error)
}

func normalizeBase(base string) string {
	base = strings.TrimRight(base, "/")
	if !strings.Contains(base, "://") {
		if strings.HasPrefix(base, ":") {
			base = "127.0.0.1" + base
		}
		base = "http://" + base
	}
	return base
}
