// Package remote provides an HTTP client for talking to a berth server.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bnema/berth/internal/adapters/dto"
)

// Retry tuning for transient gateway failures. Variables so tests can shrink them.
var (
	retryMaxAttempts = 3
	retryBaseDelay   = 250 * time.Millisecond
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Status     string
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Client is an HTTP client for the berth API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// streamClient has no overall timeout; event streams stay open.
	streamClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// NewClient creates a new berth client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithToken sets the authentication token.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client for both calls and streams.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
		c.streamClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// call performs a request and decodes the reply into target. Idempotent
// requests are retried on 502, 503 and transport errors. 504 is a caller
// deadline on the server and is not retried.
func (c *Client) call(ctx context.Context, method, path string, body, target any) error {
	idempotent := method == http.MethodGet

	op := func() error {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if idempotent && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		err = parseResponse(resp, target)
		var apiErr *APIError
		if errors.As(err, &apiErr) && idempotent && retryable(apiErr.StatusCode) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBaseDelay
	policy.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(max(retryMaxAttempts-1, 0))), ctx))
}

func retryable(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable
}

// parseResponse parses a JSON response into the given target.
func parseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Message: strings.TrimSpace(string(body))}
		var errResp dto.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.Kind = errResp.Kind
		}
		return apiErr
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Containers API

// ListOptions narrows a container listing.
type ListOptions struct {
	Statuses []string
	Name     string
	All      bool
}

func (o ListOptions) query() string {
	q := url.Values{}
	if len(o.Statuses) > 0 {
		q.Set("status", strings.Join(o.Statuses, ","))
	}
	if o.Name != "" {
		q.Set("name", o.Name)
	}
	if o.All {
		q.Set("all", "true")
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ListContainers returns the managed containers matching opts.
func (c *Client) ListContainers(ctx context.Context, opts ListOptions) ([]dto.Container, error) {
	var result dto.ContainersResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/containers"+opts.query(), nil, &result); err != nil {
		return nil, err
	}
	return result.Containers, nil
}

// GetContainer returns a container by ID.
func (c *Client) GetContainer(ctx context.Context, id string) (*dto.Container, error) {
	var ctr dto.Container
	if err := c.call(ctx, http.MethodGet, "/api/v1/containers/"+url.PathEscape(id), nil, &ctr); err != nil {
		return nil, err
	}
	return &ctr, nil
}

// CreateContainer registers a new container.
func (c *Client) CreateContainer(ctx context.Context, req dto.CreateContainerRequest) (*dto.Container, error) {
	var ctr dto.Container
	if err := c.call(ctx, http.MethodPost, "/api/v1/containers", req, &ctr); err != nil {
		return nil, err
	}
	return &ctr, nil
}

func (c *Client) intent(ctx context.Context, id, action string) (*dto.Container, error) {
	var ctr dto.Container
	path := "/api/v1/containers/" + url.PathEscape(id) + "/" + action
	if err := c.call(ctx, http.MethodPost, path, nil, &ctr); err != nil {
		return nil, err
	}
	return &ctr, nil
}

// Start starts a container.
func (c *Client) Start(ctx context.Context, id string) (*dto.Container, error) {
	return c.intent(ctx, id, "start")
}

// Stop stops a container.
func (c *Client) Stop(ctx context.Context, id string) (*dto.Container, error) {
	return c.intent(ctx, id, "stop")
}

// Pause pauses a running container.
func (c *Client) Pause(ctx context.Context, id string) (*dto.Container, error) {
	return c.intent(ctx, id, "pause")
}

// Resume resumes a paused container.
func (c *Client) Resume(ctx context.Context, id string) (*dto.Container, error) {
	return c.intent(ctx, id, "resume")
}

// Remove removes a container. force is required for running or paused ones.
func (c *Client) Remove(ctx context.Context, id string, force bool) (*dto.Container, error) {
	path := "/api/v1/containers/" + url.PathEscape(id)
	if force {
		path += "?force=true"
	}
	var ctr dto.Container
	if err := c.call(ctx, http.MethodDelete, path, nil, &ctr); err != nil {
		return nil, err
	}
	return &ctr, nil
}

// Reconcile triggers a reconciliation pass.
func (c *Client) Reconcile(ctx context.Context) (*dto.ReconcileResponse, error) {
	var report dto.ReconcileResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/reconcile", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Health returns the server's view of the runtime. A degraded server replies
// 503 with a body; that body is returned alongside the error.
func (c *Client) Health(ctx context.Context) (*dto.HealthResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health dto.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &health, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Message: health.Error}
	}
	return &health, nil
}

// Version returns the server build.
func (c *Client) Version(ctx context.Context) (*dto.VersionResponse, error) {
	var v dto.VersionResponse
	if err := c.call(ctx, http.MethodGet, "/version", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Ping checks the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// Events API

// StreamEvents follows the event stream until ctx is done, the server closes
// the stream, or fn returns an error. container narrows the stream when set.
func (c *Client) StreamEvents(ctx context.Context, container string, fn func(dto.Event) error) error {
	path := "/api/v1/events"
	if container != "" {
		path += "?container=" + url.QueryEscape(container)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return parseResponse(resp, nil)
	}
	defer resp.Body.Close()

	return readEvents(ctx, resp.Body, fn)
}

// readEvents decodes server-sent event frames. Only data lines carry
// payload; ids, event names and comments are skipped.
func readEvents(ctx context.Context, r io.Reader, fn func(dto.Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev dto.Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return fmt.Errorf("failed to decode event: %w", err)
			}
			data.Reset()
			if err := fn(ev); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
