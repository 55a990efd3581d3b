// Package reasoning is the HTTP client for the generative reasoning
// service. The core never calls it on the deterministic path; the only
// call site is the dispatch router's optional result summarization, and
// the excerpt sent is always size-bounded by the caller.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the reasoning service's summarize endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a Client. A zero timeout defaults to 15 seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type summarizeRequest struct {
	Text string `json:"text"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize asks the service for a short natural-language summary of the
// excerpt.
func (c *Client) Summarize(ctx context.Context, excerpt string) (string, error) {
	body, err := json.Marshal(summarizeRequest{Text: excerpt})
	if err != nil {
		return "", fmt.Errorf("encoding summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/summarize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling reasoning service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("reasoning service returned %d: %s", resp.StatusCode, snippet)
	}

	var out summarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding summarize response: %w", err)
	}
	return out.Summary, nil
}
