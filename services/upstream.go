package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"crypto-dashboard/observability"
)

// maxErrorBody caps how much of a failed response is kept for the error message
const maxErrorBody = 512

// StatusError is a non-2xx response from an upstream API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// getJSON issues a GET and decodes a JSON body into out. Client errors other
// than 429 are marked Permanent so they are neither retried nor counted
// against the breaker.
func getJSON(ctx context.Context, client *http.Client, endpoint string, params url.Values, headers map[string]string, out any) error {
	target := endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Permanent(statusErr)
		}
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// callUpstream runs fn behind the named breaker with retries, records
// external API metrics and tags failures with ErrDataUnavailable.
func callUpstream[T any](ctx context.Context, retry RetryConfig, service, operation string, fn func() (T, error)) (T, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(service, operation)
	timer := metrics.NewTimer()

	result, err := WithCircuitBreaker(ctx, service, func() (T, error) {
		var out T
		err := WithRetry(ctx, retry, func() error {
			var err error
			out, err = fn()
			return err
		})
		return out, err
	})

	timer.ObserveExternalAPI(service, operation)
	if err != nil {
		metrics.RecordExternalAPIError(service, operation, categorizeAPIError(err))
		observability.Warn("upstream call failed",
			"service", service,
			"operation", operation,
			"error", err)
		var zero T
		return zero, unavailable(service, operation, err)
	}
	return result, nil
}

// categorizeAPIError buckets an error for the external API error metric
func categorizeAPIError(err error) string {
	if err == nil {
		return "none"
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return "auth_error"
		case statusErr.StatusCode >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	}
	if errors.Is(err, ErrBreakerOpen) {
		return "circuit_open"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return "rate_limit"
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "401"):
		return "auth_error"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		return "connection_error"
	case strings.Contains(msg, "decode"):
		return "decode_error"
	default:
		return "unknown"
	}
}
