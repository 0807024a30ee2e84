package unipile

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

	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/utils"
)

const (
	contentType  = "application/json"
	maxErrorBody = 400
	// Reads are retried on throttling and server errors; writes never are.
	maxReadRetries = 2
	retryBaseDelay = time.Second
	maxRetryDelay  = 30 * time.Second
)

// APIError keeps the raw response text so callers can classify it.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unipile http %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the same request may succeed later.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+path, nil)
	if err != nil {
		return err
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}
	return c.do(req, target)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	c.setHeaders(req)

	retries := 0
	if req.Method == http.MethodGet {
		retries = maxReadRetries
	}

	for attempt := 0; ; attempt++ {
		c.logger.Debug("make request", zap.String("method", req.Method), zap.String("url", req.URL.String()), zap.Int("attempt", attempt))
		data, delay, err := c.roundTrip(req)
		if err == nil {
			if target == nil || len(bytes.TrimSpace(data)) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, target); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}
		if delay < 0 || attempt >= retries {
			return err
		}
		if delay == 0 {
			delay = retryBaseDelay << attempt
		}
		c.logger.Debug("retrying request", zap.Duration("delay", delay), zap.Error(err))
		if werr := c.wait(req.Context(), delay); werr != nil {
			return err
		}
	}
}

// roundTrip performs one attempt. delay is negative when a retry cannot
// help, zero for the default backoff and the server's Retry-After otherwise.
func (c *Client) roundTrip(req *http.Request) ([]byte, time.Duration, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, -1, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, -1, err
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return data, 0, nil
	}

	text := utils.TruncateForLog(string(data), maxErrorBody)
	if text == "" {
		text = resp.Status
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: text}

	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < http.StatusInternalServerError {
		return nil, -1, apiErr
	}
	return nil, retryAfter(resp.Header.Get("Retry-After")), apiErr
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	if d := time.Duration(secs) * time.Second; d < maxRetryDelay {
		return d
	}
	return maxRetryDelay
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", contentType)
	req.Header.Set("User-Agent", c.UserAgent)
}
