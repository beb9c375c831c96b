package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reliefmatch/reliefmatch/internal/config"
)

// httpClient talks to a hosted reasoning backend speaking the JSON chat
// contract: POST {base_url}/chat with a Request body, Result response.
type httpClient struct {
	http       *http.Client
	log        *slog.Logger
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates a reasoning client backed by a hosted HTTP endpoint.
func NewHTTPClient(cfg config.ReasoningConfig, log *slog.Logger) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reasoning base URL is required for the http provider")
	}

	logger := log.With("component", "reasoning_http")
	logger.Info("HTTP reasoning client initialized", "base_url", cfg.BaseURL)
	return &httpClient{
		http:       &http.Client{Timeout: cfg.Timeout},
		log:        logger,
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

func (c *httpClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reasoning request: %w", err)
	}

	var lastStatus int
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.InfoContext(ctx, "Retrying reasoning backend call", "attempt", attempt+1, "delay", c.retryDelay)
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build reasoning request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			c.log.WarnContext(ctx, "Reasoning backend call failed", "attempt", attempt+1, "error", err)
			lastErr = err
			lastStatus = 0
			continue
		}

		result, status, err := decodeResult(resp)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}

		// Retriable status (429 or 5xx) with no usable body.
		c.log.WarnContext(ctx, "Reasoning backend returned retriable status", "attempt", attempt+1, "status", status)
		lastStatus = status
		lastErr = nil
	}

	if lastErr != nil {
		c.log.ErrorContext(ctx, "Reasoning backend unreachable after retries", "error", lastErr)
		return nil, fmt.Errorf("failed to connect to reasoning backend after %d attempts: %w", c.maxRetries+1, lastErr)
	}

	c.log.ErrorContext(ctx, "Reasoning backend call failed after retries", "status", lastStatus)
	if lastStatus == http.StatusTooManyRequests {
		return &Result{Success: false, Error: "rate limit exceeded: too many requests, please wait before retrying"}, nil
	}
	return &Result{Success: false, Error: "the assistant service is temporarily unavailable due to high demand"}, nil
}

// decodeResult reads one backend response. It returns a Result when the
// response is terminal, or a retriable status code when the attempt should
// be repeated. A non-nil error means the payload was unusable.
func decodeResult(resp *http.Response) (*Result, int, error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		// Drain so the connection can be reused across retries.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	case resp.StatusCode != http.StatusOK:
		return nil, 0, fmt.Errorf("reasoning backend returned unexpected status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, 0, fmt.Errorf("failed to decode reasoning response: %w", err)
	}
	if result.Success && result.Data == nil {
		return nil, 0, fmt.Errorf("reasoning response marked success but carried no data")
	}
	return &result, 0, nil
}
