// Package client provides typed access to the fnforge API. It speaks the
// service's HTTP wire format with its own types so tools outside the
// cluster can drive builds, deploys and runs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrBuildNotFound indicates the service has no build record for the
// function.
var ErrBuildNotFound = errors.New("build not found")

// Client provides typed access to the fnforge API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8080"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

type buildRequest struct {
	Function Function     `json:"function"`
	Options  BuildOptions `json:"options"`
}

type deployRequest struct {
	Function      Function          `json:"function"`
	Watch         bool              `json:"watch,omitempty"`
	WithSDK       *bool             `json:"with_sdk,omitempty"`
	SDKVersion    string            `json:"sdk_version,omitempty"`
	SkipDeployed  *bool             `json:"skip_deployed,omitempty"`
	InPipeline    *bool             `json:"in_pipeline,omitempty"`
	ShowOnFailure *bool             `json:"show_on_failure,omitempty"`
	BuilderEnv    map[string]string `json:"builder_env,omitempty"`
}

// RemoteBuild submits the function build to the service. The build runs
// asynchronously; poll BuilderStatus for progress.
func (c *Client) RemoteBuild(ctx context.Context, fn Function, opts BuildOptions) (BuildResult, error) {
	var result BuildResult
	if err := c.do(ctx, http.MethodPost, "/build", buildRequest{Function: fn, Options: opts}, &result); err != nil {
		return BuildResult{}, err
	}
	return result, nil
}

// Deploy runs a coordinated deploy on the service.
func (c *Client) Deploy(ctx context.Context, fn Function, opts DeployOptions) (DeployResult, error) {
	body := deployRequest{
		Function:      fn,
		Watch:         opts.Watch,
		WithSDK:       opts.WithSDK,
		SDKVersion:    opts.SDKVersion,
		SkipDeployed:  opts.SkipDeployed,
		InPipeline:    opts.InPipeline,
		ShowOnFailure: opts.ShowOnFailure,
		BuilderEnv:    opts.BuilderEnv,
	}
	var result DeployResult
	if err := c.do(ctx, http.MethodPost, "/deploy", body, &result); err != nil {
		return DeployResult{}, err
	}
	return result, nil
}

// BuilderStatus fetches build state and log bytes starting at offset.
func (c *Client) BuilderStatus(ctx context.Context, project, name string, offset int64, wantLogs bool) (BuildStatus, error) {
	path := fmt.Sprintf("/functions/%s/%s/status?offset=%s&logs=%s",
		url.PathEscape(project), url.PathEscape(name),
		strconv.FormatInt(offset, 10), strconv.FormatBool(wantLogs))
	var status BuildStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		var apiErr APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return BuildStatus{}, ErrBuildNotFound
		}
		return BuildStatus{}, err
	}
	return status, nil
}

// SaveFunction registers or updates the function spec on the service.
func (c *Client) SaveFunction(ctx context.Context, fn Function) (*Function, error) {
	var saved Function
	if err := c.do(ctx, http.MethodPost, "/functions", fn, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// GetFunction fetches a function by project and name.
func (c *Client) GetFunction(ctx context.Context, project, name string) (*Function, error) {
	path := fmt.Sprintf("/functions/%s/%s", url.PathEscape(project), url.PathEscape(name))
	var fn Function
	if err := c.do(ctx, http.MethodGet, path, nil, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

// SubmitRun asks the service to execute a function.
func (c *Client) SubmitRun(ctx context.Context, project, function string, spec RunSpec, labels map[string]string) (*RunResponse, error) {
	payload := map[string]any{
		"project":  project,
		"function": function,
		"run":      spec,
		"labels":   labels,
	}
	var resp RunResponse
	if err := c.do(ctx, http.MethodPost, "/runs", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRun fetches a run by project and UID.
func (c *Client) GetRun(ctx context.Context, project, uid string) (*Run, error) {
	path := fmt.Sprintf("/runs/%s/%s", url.PathEscape(project), url.PathEscape(uid))
	var r Run
	if err := c.do(ctx, http.MethodGet, path, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// RunLogs fetches the pod log of a run.
func (c *Client) RunLogs(ctx context.Context, project, uid string) ([]byte, error) {
	path := fmt.Sprintf("/runs/%s/%s/logs", url.PathEscape(project), url.PathEscape(uid))
	return c.doRaw(ctx, path)
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doRaw performs a GET and returns the body verbatim, for non-JSON
// responses such as pod logs.
func (c *Client) doRaw(ctx context.Context, path string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Error)
}
