// Package httprequest provides a tool that performs an HTTP request with
// optional headers, body, and retry on server errors.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barela/flowdeck/pkg/protocol"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLInvalid is returned when the request URL is missing or invalid.
	ErrURLInvalid = errors.New("invalid HTTP request url")
	// ErrServerError is returned when the server returns an error status code.
	ErrServerError = errors.New("server error during HTTP request")
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "http_request"
}

func (*Factory) Name() string {
	return "HTTP Request"
}

func (*Factory) Description() string {
	return "Performs an HTTP request and returns the decoded response."
}

func (f *Factory) Create(config map[string]any) (protocol.Tool, error) {
	return NewTool(config)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Target URL for the request.",
				"examples": []string{
					"https://api.example.com/v1/orders",
					"http://localhost:8080/health",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Headers to send with the request.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body.",
			},
			"retry": map[string]any{
				"type":        "object",
				"description": "Retry behavior for server errors.",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "default": 1},
					"delay":    map[string]any{"type": "integer", "description": "Delay between attempts in seconds."},
				},
			},
		},
		"required": []string{"url"},
	}
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int
	Delay    int
}

type Tool struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig
}

func NewTool(config map[string]any) (*Tool, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in configuration: %w", ErrURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	retry := RetryConfig{Attempts: 1, Delay: 0}
	if retryConfig, exists := config["retry"]; exists {
		retry = parseRetryConfig(retryConfig)
	}

	return &Tool{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: defaultTimeoutSeconds * time.Second,
		Retry:   retry,
	}, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok {
		retry.Attempts = int(attempts)
	}

	if delay, ok := retryMap["delay"].(float64); ok {
		retry.Delay = int(delay)
	}

	return retry
}

func (t *Tool) Run(ctx context.Context, _ map[string]any) (any, error) {
	logger := slog.Default().With("tool_id", "http_request")
	logger.InfoContext(ctx, "Executing HTTP request", "method", t.Method, "url", t.URL)

	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= t.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, fmt.Sprintf("HTTP request retry attempt %d/%d", attempt, t.Retry.Attempts))
			time.Sleep(time.Duration(t.Retry.Delay) * time.Second)
		}

		req, err := t.buildRequest(ctx)
		if err != nil {
			lastErr = err

			continue
		}

		client := &http.Client{Timeout: t.Timeout}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)

			continue
		}

		if resp.StatusCode >= 500 && attempt < t.Retry.Attempts {
			err = resp.Body.Close()
			if err != nil {
				logger.ErrorContext(ctx, "failed to close response body", "error", err)
			}

			lastErr = fmt.Errorf("server error (status %d), retrying: %w", resp.StatusCode, ErrServerError)
			resp = nil

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	return t.processResponse(ctx, resp, logger)
}

func (t *Tool) buildRequest(ctx context.Context) (*http.Request, error) {
	var bodyReader io.Reader
	if t.Body != "" {
		bodyReader = strings.NewReader(t.Body)
	}

	req, err := http.NewRequestWithContext(ctx, t.Method, t.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range t.Headers {
		req.Header.Set(key, value)
	}

	if t.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func (t *Tool) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (any, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
	}

	if resp.StatusCode >= 400 {
		return result, fmt.Errorf("request returned status %d: %w", resp.StatusCode, ErrServerError)
	}

	return result, nil
}
