package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxErrorBody       = 8192
	maxMediaBytes      = 32 << 20
	maxGetAttempts     = 3
)

// APIError is a non-2xx reply from a backend.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("messaging: %s request failed: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("messaging: %s request failed: status %d, body: %s", e.Provider, e.StatusCode, e.Body)
}

type restClient struct {
	provider   string
	httpClient *http.Client
	headers    map[string]string
	sleep      func(time.Duration)
}

func newRESTClient(provider string, httpClient *http.Client, headers map[string]string) *restClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &restClient{provider: provider, httpClient: httpClient, headers: headers, sleep: time.Sleep}
}

// doJSON sends payload (if any) as JSON and decodes the reply into out (if
// any). GET requests are retried on transport errors and 5xx replies; other
// methods are sent once so a message is never delivered twice.
func (c *restClient) doJSON(ctx context.Context, method, url string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("messaging: marshal %s payload: %w", c.provider, err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = maxGetAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := c.roundTrip(ctx, method, url, body)
		if err == nil {
			if out == nil || len(raw) == 0 {
				return nil
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("messaging: decode %s response: %w", c.provider, err)
			}
			return nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			c.sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}
	return lastErr
}

// getRaw fetches a binary resource, capped at maxMediaBytes.
func (c *restClient) getRaw(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: build %s request: %w", c.provider, err)
	}
	c.applyHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messaging: %s request: %w", c.provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{Provider: c.provider, StatusCode: resp.StatusCode, Body: string(errBody)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("messaging: read %s media: %w", c.provider, err)
	}
	return data, nil
}

func (c *restClient) roundTrip(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("messaging: build %s request: %w", c.provider, err)
	}
	c.applyHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messaging: %s request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("messaging: read %s response: %w", c.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return nil, &APIError{Provider: c.provider, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func (c *restClient) applyHeaders(req *http.Request) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
