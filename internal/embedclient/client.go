// Package embedclient generates vector embeddings for opportunity and
// profile text, gated by a token-bucket rate limiter.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxRateLimitRetries bounds how many times Embed retries a rate-limited
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

// Client generates embeddings through an HTTP backend speaking the Ollama
// /api/embeddings wire shape.
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
		model = "nomic-embed-text"
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
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates a single embedding vector for text, blocking on the rate
// limiter before issuing the request. A rate-limit response (429) from the
// backend is retried with exponential backoff up to maxRateLimitRetries;
// every other non-200 response or request error propagates immediately.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedclient: rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedclient: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRateLimitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("embedclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedclient: request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("embedclient: backend returned status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("embedclient: backend returned status %d", resp.StatusCode)
		}

		var parsed embeddingResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("embedclient: decode response: %w", decodeErr)
		}
		return parsed.Embedding, nil
	}

	return nil, fmt.Errorf("embedclient: still rate limited after %d retries: %w", maxRateLimitRetries, lastErr)
}

// EmbedBatch embeds each text in sequence, respecting the same rate limiter
// as Embed. Callers needing concurrency should fan out across several Client
// calls themselves, bounded by their own worker pool.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := c.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embedclient: batch item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
