package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/psantana5/euclid/pkg/models"
	"github.com/psantana5/euclid/pkg/numeric"
	"github.com/psantana5/euclid/pkg/retry"
	"github.com/psantana5/euclid/pkg/store"
	"github.com/psantana5/euclid/pkg/tracing"
)

// ErrServer wraps any non-2xx answer that has no more specific mapping
var ErrServer = errors.New("server error")

// Client talks to a euclid API server
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	retry      retry.Config
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: retry.DefaultConfig(),
	}
}

// SetAPIKey sets the API key for authentication
func (c *Client) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
}

// SetTimeout sets the per-request timeout
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// SetTLSConfig makes the client use cfg for https URLs
func (c *Client) SetTLSConfig(cfg *tls.Config) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = cfg
	c.httpClient.Transport = transport
}

// SetRetryConfig replaces the retry policy
func (c *Client) SetRetryConfig(cfg retry.Config) {
	c.retry = cfg
}

// Compute asks the server for gcd(n, m). A rejected operand comes back as
// numeric.ErrInvalidArgument.
func (c *Client) Compute(ctx context.Context, n, m uint64) (*models.Computation, error) {
	var out models.Computation
	if err := c.do(ctx, http.MethodPost, "/gcd", models.ComputeRequest{N: n, M: m}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Batch submits many pairs at once
func (c *Client) Batch(ctx context.Context, pairs []models.ComputeRequest) (*models.BatchResponse, error) {
	var out models.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/gcd/batch", models.BatchRequest{Pairs: pairs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists the most recent computations
func (c *Client) History(ctx context.Context, limit int) ([]*models.Computation, error) {
	path := "/computations"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	var out struct {
		Computations []*models.Computation `json:"computations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Computations, nil
}

// Get fetches one computation by ID
func (c *Client) Get(ctx context.Context, id string) (*models.Computation, error) {
	var out models.Computation
	if err := c.do(ctx, http.MethodGet, "/computations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats fetches stored computation totals
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var out models.Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the server and its store are up
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	// A POST may have been recorded even when its answer is lost, so it is
	// only resent when the server cannot have acted on it.
	idempotent := method == http.MethodGet || method == http.MethodHead

	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		tracing.InjectHTTPHeaders(ctx, req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if retry.IsRetryable(err) && (idempotent || errors.Is(err, syscall.ECONNREFUSED)) {
				return err
			}
			return retry.Permanent(fmt.Errorf("request failed: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			err := decodeError(resp)
			if !idempotent && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(err)
			}
			return err
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	})
}

// decodeError maps an error answer onto package errors. 429 and 5xx
// gateway answers stay retryable for idempotent requests.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var e models.ErrorResponse
	if json.Unmarshal(data, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(data))
	}

	switch {
	case e.Code == models.CodeInvalidArgument:
		return retry.Permanent(fmt.Errorf("%w: %s", numeric.ErrInvalidArgument, e.Error))
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(fmt.Errorf("%w: %s", store.ErrComputationNotFound, e.Error))
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d: %s", ErrServer, resp.StatusCode, e.Error)
	default:
		return retry.Permanent(fmt.Errorf("%w: status %d: %s", ErrServer, resp.StatusCode, e.Error))
	}
}
