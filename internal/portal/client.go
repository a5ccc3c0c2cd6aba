// Package portal is the HTTP client for the gym's document store API.
//
// Every call is bounded by the client timeout, carries the x-api-key header and
// maps transport failures and non-2xx answers to UPSTREAM_ERROR app errors.
// Wire quirks (string read flags, missing timestamps, "_id" keys) are resolved
// here so callers only ever see canonical types.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/logger"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Client talks to the document store.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.SugaredLogger
	metrics    *metrics
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout bounds each store call. Non-positive values are ignored.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a client for the store rooted at baseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
		log:        logger.GetLogger().Named("portal"),
		metrics:    newMetrics(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Ping checks that the store answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do sends one request and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	status := "error"
	defer func() {
		c.metrics.requestDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	}()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.requestErrors.WithLabelValues(op, "transport").Inc()
		return apperrors.NewUpstreamError(op, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.requestErrors.WithLabelValues(op, "status").Inc()
		return apperrors.NewUpstreamError(op, statusError(resp))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.requestErrors.WithLabelValues(op, "decode").Inc()
		return apperrors.NewUpstreamError(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func statusError(resp *http.Response) error {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errResp)
	switch {
	case errResp.Error != "":
		return fmt.Errorf("store returned status %d: %s", resp.StatusCode, errResp.Error)
	case errResp.Message != "":
		return fmt.Errorf("store returned status %d: %s", resp.StatusCode, errResp.Message)
	default:
		return fmt.Errorf("store returned status %d", resp.StatusCode)
	}
}

func pathSegment(s string) string {
	return url.PathEscape(s)
}
