// Package llmclient generates free-form and JSON-structured completions
// from a local LLM backend, rate-limited the same way as embedclient.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxRateLimitRetries bounds how many times Generate retries a rate-limited
// request before giving up, the same small-bound exponential backoff the
// teacher's fetcher uses for 429/5xx responses.
const maxRateLimitRetries = 3

const baseBackoff = 500 * time.Millisecond

// retryBackoff returns the exponential-backoff-plus-jitter delay before retry
// attempt n (0-indexed): 0.5s, 1s, 2s, each with up to 200ms of jitter.
func retryBackoff(attempt int) time.Duration {
	d := baseBackoff * time.Duration(1<<uint(attempt))
	return d + time.Duration(rand.Intn(200))*time.Millisecond
}

// Client talks to an Ollama-shaped /api/generate endpoint.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a Client rate-limited to rpm requests per minute. rpm <= 0
// disables rate limiting.
func New(baseURL, model string, rpm int) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2:latest"
	}

	var limiter *rate.Limiter
	if rpm > 0 {
		burst := rpm / 60
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	}

	return &Client{
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: limiter,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate issues a single free-form completion request. A rate-limit
// response (429) from the backend is retried with exponential backoff up to
// maxRateLimitRetries; every other non-200 response or request error
// propagates immediately.
func (c *Client) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("llmclient: rate limit wait: %w", err)
		}
	}

	reqBody := generateRequest{Model: c.model, Prompt: prompt, Stream: false}
	if jsonMode {
		reqBody.Format = "json"
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llmclient: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRateLimitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBackoff(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("llmclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("llmclient: request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("llmclient: backend returned status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return "", fmt.Errorf("llmclient: backend returned status %d", resp.StatusCode)
		}

		var parsed generateResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return "", fmt.Errorf("llmclient: decode response: %w", decodeErr)
		}
		return parsed.Response, nil
	}

	return "", fmt.Errorf("llmclient: still rate limited after %d retries: %w", maxRateLimitRetries, lastErr)
}

// GenerateStructured generates a completion and decodes it with parse, first
// trying JSON mode and falling back to text mode with the robust
// fence-stripping/brace-scanning parser on failure. If both attempts fail, it
// logs the final error and returns fallback().
func GenerateStructured[T any](ctx context.Context, c *Client, prompt string, parse func(string) (T, error), fallback func() T) T {
	resp, err := c.Generate(ctx, prompt, true)
	if err == nil {
		if val, parseErr := parse(resp); parseErr == nil {
			return val
		} else {
			log.Printf("llmclient: json mode response failed to parse: %v", parseErr)
		}
	} else {
		log.Printf("llmclient: json mode generation failed: %v", err)
	}

	resp, err = c.Generate(ctx, prompt, false)
	if err != nil {
		log.Printf("llmclient: text mode generation failed: %v", err)
		return fallback()
	}

	val, err := parse(resp)
	if err != nil {
		log.Printf("llmclient: text mode response failed to parse: %v", err)
		return fallback()
	}
	return val
}
