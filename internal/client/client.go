// Package client talks to a running kubeguard scoring server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gzhole/kubeguard/internal/scoring"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	scoring.Health
}

// Client is an HTTP client for the /score and /health endpoints.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for the server at baseURL (e.g. "http://risk-scorer:8000").
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ScoreAll posts lines to /score. It satisfies agent.Scorer.
func (c *Client) ScoreAll(ctx context.Context, lines []string) (scoring.Response, error) {
	if lines == nil {
		lines = []string{}
	}
	body, err := json.Marshal(map[string][]string{"lines": lines})
	if err != nil {
		return scoring.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	var out scoring.Response
	if err := c.do(ctx, http.MethodPost, "/score", body, &out); err != nil {
		return scoring.Response{}, err
	}
	if len(out.Scores) != len(lines) {
		return scoring.Response{}, fmt.Errorf("server returned %d scores for %d lines", len(out.Scores), len(lines))
	}
	return out, nil
}

// Score is ScoreAll under the name the CLI uses.
func (c *Client) Score(ctx context.Context, lines []string) (scoring.Response, error) {
	return c.ScoreAll(ctx, lines)
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return HealthResponse{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if c.BaseURL == "" {
		return errors.New("missing server URL")
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := gjson.GetBytes(data, "error").String(); msg != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
