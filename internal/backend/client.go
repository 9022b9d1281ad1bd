// Package backend forwards uploads to the external analysis service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gwlsn/strikelab/internal/logger"
	"github.com/gwlsn/strikelab/internal/metrics"
)

// DefaultMessage is reported when the service fails without a detail.
const DefaultMessage = "Analysis failed"

// ErrBackendUnavailable is returned when the service cannot be reached or
// answers with something that is not JSON.
var ErrBackendUnavailable = errors.New("analysis backend unavailable")

// ServiceError is a non-2xx answer from the analysis service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("analysis service returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the analysis service at BaseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. A zero timeout means no client-side timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Analyze uploads the video as multipart field "file" and returns the
// service's JSON answer unchanged.
func (c *Client) Analyze(ctx context.Context, filename string, video io.Reader) (json.RawMessage, error) {
	body, contentType, err := multipartBody(filename, video)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	raw, err := c.do(req, "analyze")
	if err == nil {
		logger.Info("Analysis service answered", "file", filename, "elapsed", time.Since(start).String())
	}
	return raw, err
}

// Health returns the service's health document unchanged, whatever the
// status code. Only an unreachable service or a non-JSON body is an error.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.send(req, "health", true)
}

func (c *Client) do(req *http.Request, endpoint string) (json.RawMessage, error) {
	return c.send(req, endpoint, false)
}

// send performs req. With anyStatus a non-2xx JSON answer is returned as is
// instead of becoming a ServiceError.
func (c *Client) send(req *http.Request, endpoint string, anyStatus bool) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "unavailable").Inc()
		return nil, fmt.Errorf("%w: read response: %v", ErrBackendUnavailable, err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if !ok && !anyStatus {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: detail(data)}
	}

	if !json.Valid(data) {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "unavailable").Inc()
		return nil, fmt.Errorf("%w: response is not JSON", ErrBackendUnavailable)
	}

	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	metrics.BackendRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	return json.RawMessage(data), nil
}

// detail extracts the service's "detail" message, falling back to DefaultMessage.
func detail(data []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Detail == nil {
		return DefaultMessage
	}
	switch d := body.Detail.(type) {
	case string:
		if d == "" {
			return DefaultMessage
		}
		return d
	default:
		// Validation errors arrive as a list of objects.
		b, err := json.Marshal(d)
		if err != nil {
			return DefaultMessage
		}
		return string(b)
	}
}

func multipartBody(filename string, video io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, video); err != nil {
		return nil, "", fmt.Errorf("copy video: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
