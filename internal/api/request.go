package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// APIError represents an error from the LS OpenAPI.
type APIError struct {
	StatusCode int
	Code       string // rsp_cd, when the body carries one
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ls api error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ls api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func isRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsRetryable()
}

// errorBody is the error envelope returned with 4xx and 5xx responses.
type errorBody struct {
	RspCd  string `json:"rsp_cd"`
	RspMsg string `json:"rsp_msg"`
}

// request describes one REST call.
type request struct {
	method      string
	path        string
	header      http.Header
	body        []byte
	contentType string
}

// doRequest performs a single HTTP request through the rate limiter and
// circuit breaker.
func (c *Client) doRequest(ctx context.Context, r request) ([]byte, error) {
	c.limiter.Take()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, bytes.NewReader(r.body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for k, vs := range r.header {
		// Keys are copied verbatim to keep their case on the wire.
		req.Header[k] = append(req.Header[k], vs...)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.RspMsg != "" {
			apiErr.Code = eb.RspCd
			apiErr.Message = eb.RspMsg
		}
		return nil, apiErr
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, r request) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", r.path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, r)
		if err == nil {
			return body, nil
		}

		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", r.path, err)
		}
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// postJSON sends in as a JSON body and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, path string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	body, err := c.doWithRetry(ctx, request{
		method:      http.MethodPost,
		path:        path,
		header:      header,
		body:        payload,
		contentType: "application/json; charset=utf-8",
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// decodeStrict unmarshals body, reporting an LS error envelope if present.
func decodeStrict(body []byte, out any) error {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.RspCd != "" && eb.RspCd != "00000" && eb.RspMsg != "" {
		return &APIError{StatusCode: http.StatusOK, Code: eb.RspCd, Message: eb.RspMsg}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
