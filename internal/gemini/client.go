// Package gemini implements a client for the Google Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"testsmith/internal/logging"
)

// ErrRateLimited is returned when the API keeps responding 429 after retries.
// Callers should surface a wait-and-retry hint to the user.
var ErrRateLimited = errors.New("rate limit exceeded")

// Turn is one conversation turn sent to the model.
type Turn struct {
	Role string // "user" or "model"
	Text string
}

// Config configures the Gemini client.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	Temperature     float64
	MaxOutputTokens int
}

// DefaultConfig returns sensible defaults for test generation.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-2.0-flash",
		Timeout:         120 * time.Second,
		Temperature:     0.2,
		MaxOutputTokens: 8192,
	}
}

// Client talks to the Gemini API over plain HTTP.
type Client struct {
	apiKey          string
	baseURL         string
	model           string
	temperature     float64
	maxOutputTokens int
	httpClient      *http.Client

	mu          sync.Mutex
	lastRequest time.Time

	lastUsage Usage
}

// NewClient creates a Gemini client from config.
func NewClient(config Config) *Client {
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = 8192
	}

	return &Client{
		apiKey:          config.APIKey,
		baseURL:         baseURL,
		model:           model,
		temperature:     config.Temperature,
		maxOutputTokens: maxOutputTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// LastUsage returns token usage from the most recent successful call.
func (c *Client) LastUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsage
}

// Generate sends a system instruction plus conversation turns and returns
// the model's text response.
func (c *Client) Generate(ctx context.Context, systemPrompt string, turns []Turn) (string, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[Gemini] Generate: model=%s system_len=%d turns=%d", c.model, len(systemPrompt), len(turns))

	if c.apiKey == "" {
		logging.APIError("[Gemini] Generate: API key not configured")
		return "", fmt.Errorf("API key not configured")
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("no conversation turns provided")
	}

	// Client-side request spacing
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	contents := make([]GeminiContent, 0, len(turns))
	for _, turn := range turns {
		role := turn.Role
		if role != "model" {
			role = "user"
		}
		contents = append(contents, GeminiContent{
			Role:  role,
			Parts: []GeminiPart{{Text: turn.Text}},
		})
	}

	reqBody := GeminiRequest{
		Contents: contents,
		GenerationConfig: GeminiGenerationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		reqBody.SystemInstruction = &GeminiContent{
			Parts: []GeminiPart{{Text: systemPrompt}},
		}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	// Retry loop for rate limits and transient failures
	maxRetries := 3
	var lastErr error
	rateLimited := false

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("request cancelled: %w", ctx.Err())
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			logging.APIWarn("[Gemini] Generate: rate limited (attempt %d/%d)", i+1, maxRetries+1)
			rateLimited = true
			lastErr = ErrRateLimited
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var geminiResp GeminiResponse
		if err := json.Unmarshal(body, &geminiResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}

		if geminiResp.Error != nil {
			return "", fmt.Errorf("API error: %s", geminiResp.Error.Message)
		}

		if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		var result strings.Builder
		for _, part := range geminiResp.Candidates[0].Content.Parts {
			result.WriteString(part.Text)
		}
		response := strings.TrimSpace(result.String())

		c.mu.Lock()
		c.lastUsage = Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CandidatesTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		}
		c.mu.Unlock()

		logging.API("[Gemini] Generate: completed in %v response_len=%d tokens=%d",
			time.Since(startTime), len(response), geminiResp.UsageMetadata.TotalTokenCount)
		return response, nil
	}

	if rateLimited {
		logging.APIError("[Gemini] Generate: still rate limited after %d retries", maxRetries)
		return "", fmt.Errorf("gemini API: %w (wait a minute and try again)", ErrRateLimited)
	}
	logging.APIError("[Gemini] Generate: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GenerateOnce is a single user-prompt convenience wrapper around Generate.
func (c *Client) GenerateOnce(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.Generate(ctx, systemPrompt, []Turn{{Role: "user", Text: userPrompt}})
}
