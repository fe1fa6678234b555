package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/billbuster/billpoints/internal/point"
)

const defaultEndpoint = "https://api.anthropic.com/v1/messages"

// Client calls the Anthropic Messages API for point extraction. It is safe
// for concurrent use across document runs; the rate limiter serializes the
// shared request budget.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter

	// Stats tracks model call latencies and outcomes.
	Stats *CallStats
}

// NewClient builds a model client. requestsPerSecond <= 0 disables
// client-side throttling.
func NewClient(apiKey, model string, timeout time.Duration, requestsPerSecond float64) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Client{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultEndpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		Stats:   NewCallStats(time.Hour),
	}
}

// CheckCredentials reports a ConfigError when the client cannot make calls.
func (c *Client) CheckCredentials() error {
	if c.apiKey == "" {
		return &point.ConfigError{Field: "credentials", Reason: "missing API key"}
	}
	if c.model == "" {
		return &point.ConfigError{Field: "modelName", Reason: "missing model name"}
	}
	return nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// SetEndpoint overrides the messages endpoint, for tests and proxies.
func (c *Client) SetEndpoint(url string) { c.endpoint = url }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// complete sends one prompt and returns the response text. Network
// failures, timeouts, 429 and 5xx come back as *point.ServiceError.
func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &point.ServiceError{Err: err}
		}
	}

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 4096,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.Stats.Record(time.Since(start).Milliseconds(), false)
		return "", &point.ServiceError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.Stats.Record(time.Since(start).Milliseconds(), false)
		return "", &point.ServiceError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		c.Stats.Record(time.Since(start).Milliseconds(), false)
		return "", &point.ServiceError{
			StatusCode: resp.StatusCode,
			Message:    truncate(string(respBody), 200),
		}
	}
	if resp.StatusCode != http.StatusOK {
		c.Stats.Record(time.Since(start).Milliseconds(), false)
		return "", fmt.Errorf("model api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		c.Stats.Record(time.Since(start).Milliseconds(), false)
		return "", &point.ParseError{Reason: "malformed api response: " + err.Error()}
	}
	if apiResp.Error != nil {
		c.Stats.Record(time.Since(start).Milliseconds(), false)
		return "", fmt.Errorf("model error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		c.Stats.Record(time.Since(start).Milliseconds(), false)
		return "", &point.ParseError{Reason: "empty response from model"}
	}

	c.Stats.Record(time.Since(start).Milliseconds(), true)
	return apiResp.Content[0].Text, nil
}

// ExtractPoints runs the extraction prompt against one chunk and returns
// the raw, not-yet-validated points from the model.
func (c *Client) ExtractPoints(ctx context.Context, prompt string) ([]RawPoint, error) {
	text, err := c.complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	text = stripCodeBlock(text)
	var raws []RawPoint
	if err := json.Unmarshal([]byte(text), &raws); err != nil {
		return nil, &point.ParseError{
			Reason: "response is not a JSON point list: " + err.Error(),
			Raw:    truncate(text, 200),
		}
	}
	return raws, nil
}

// IsRetryable reports whether an extraction error is worth retrying.
func IsRetryable(err error) bool {
	var svcErr *point.ServiceError
	return errors.As(err, &svcErr)
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
