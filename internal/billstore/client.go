// Package billstore is the HTTP client for the bill repository that
// persists extracted points against bill records. The pipeline only pushes
// data in the interchange format; the repository's storage schema is its
// own concern.
package billstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/billbuster/billpoints/internal/point"
)

// Client communicates with the bill repository HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Deliver posts a batch of points to the repository. Implements
// queue.Sink. The repository dedups on the same identity tuple the queue
// uses, so repeated deliveries are harmless.
func (c *Client) Deliver(ctx context.Context, pts []point.Point) error {
	body, err := json.Marshal(map[string]any{"points": pts})
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/bills/points", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver points: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("deliver points: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// UpdateAnalysis attaches the run's summary and tags to a bill record.
func (c *Client) UpdateAnalysis(ctx context.Context, documentName, summary string, tags []string) error {
	body, err := json.Marshal(map[string]any{
		"summary": summary,
		"tags":    tags,
	})
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	u := c.baseURL + "/api/bills/" + url.PathEscape(documentName) + "/analysis"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("update analysis %s: status %d: %s", documentName, resp.StatusCode, string(respBody))
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
