// Package hackatime is a thin client for the Hackatime users API: the trust
// factor endpoint used to classify users and the stats endpoint used to
// resolve their display names.
package hackatime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trustwatch/internal/services"
	"trustwatch/internal/trust"
)

// ErrMissingField reports a 2xx response that lacks the expected field.
var ErrMissingField = errors.New("hackatime response missing field")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Latency    time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hackatime %s returned %d (latency=%v)", e.Endpoint, e.StatusCode, e.Latency)
}

// Unwrap maps the status onto the shared service markers.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return services.ErrNotFound
	case e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity:
		return services.ErrValidation
	default:
		return services.ErrTransient
	}
}

// Client provides access to the users API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		if agent = strings.TrimSpace(agent); agent != "" {
			c.userAgent = agent
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a client rooted at baseURL (e.g. https://hackatime.hackclub.com/api/v1/users).
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("hackatime base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// BaseURL returns the configured endpoint root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type trustFactorResponse struct {
	TrustLevel *string `json:"trust_level"`
	TrustValue *int    `json:"trust_value"`
}

// Classification fetches the trust factor for id.
func (c *Client) Classification(ctx context.Context, id trust.ID) (trust.Classification, error) {
	var payload trustFactorResponse
	if err := c.getJSON(ctx, id, "trust_factor", &payload); err != nil {
		return trust.Classification{}, err
	}
	if payload.TrustLevel == nil || payload.TrustValue == nil {
		return trust.Classification{}, fmt.Errorf("%w: trust_level/trust_value for user %d", ErrMissingField, id)
	}
	return trust.Classification{Level: *payload.TrustLevel, Value: *payload.TrustValue}, nil
}

type statsResponse struct {
	Data *struct {
		Username string `json:"username"`
	} `json:"data"`
}

// Username fetches the display name for id. Private or absent profiles yield
// ErrMissingField.
func (c *Client) Username(ctx context.Context, id trust.ID) (string, error) {
	var payload statsResponse
	if err := c.getJSON(ctx, id, "stats", &payload); err != nil {
		return "", err
	}
	if payload.Data == nil || strings.TrimSpace(payload.Data.Username) == "" {
		return "", fmt.Errorf("%w: data.username for user %d", ErrMissingField, id)
	}
	return payload.Data.Username, nil
}

func (c *Client) getJSON(ctx context.Context, id trust.ID, endpoint string, dst any) error {
	url := c.baseURL + "/" + strconv.Itoa(int(id)) + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		marker := services.ErrTransient
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, "hackatime", endpoint, fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Latency: latency}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "hackatime", endpoint, "decode response", err)
	}
	return nil
}
