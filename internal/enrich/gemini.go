package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	baseURL             = "https://generativelanguage.googleapis.com/v1beta"
	maxRetries          = 5
	initialBackoff      = 500 * time.Millisecond
	maxBackoff          = 30 * time.Second
	defaultTimeout      = 120 * time.Second
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second

	summaryModel   = "gemini-3-flash-preview"
	narrativeModel = "gemini-3-pro-preview"
)

const summarySystemPrompt = "You are an expert relationship analyst. Provide a detailed 3-4 sentence summary. " +
	"Focus on factual content, relationship dynamics, and underlying values (e.g., integrity, efficiency, empathy). Avoid fluff."

const narrativeSystemPrompt = "Create a sophisticated relationship dossier. Structure: 1. Relationship Essence (1 sentence), " +
	"2. Recurring Themes & Values, 3. Evolution of Interaction. Use professional, objective language. Limit to 8 sentences."

// GeminiClient implements the Summarizer port against the Gemini API,
// with HTTP/2 pooling and retries.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
}

// NewGeminiClient creates a Gemini-backed summarizer. An empty apiKey
// yields a client that degrades to sentinel strings without making
// network calls.
func NewGeminiClient(apiKey string) *GeminiClient {
	transport := &http.Transport{
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}
	return &GeminiClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
		},
		apiKey: apiKey,
	}
}

type generateContentRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates,omitempty"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content content `json:"content"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gemini API error %d (%s): %s", e.Code, e.Status, e.Message)
}

func (c *GeminiClient) Summarize(ctx context.Context, text string) (string, error) {
	if c.apiKey == "" {
		return SentinelNoKey, nil
	}
	prompt := fmt.Sprintf("Analyze and summarize this interaction data. Identify the core topics, "+
		"the tone of the relationship, and any apparent personal or professional values expressed. Data: %q", text)
	return c.generate(ctx, summaryModel, summarySystemPrompt, prompt)
}

func (c *GeminiClient) SummarizeRelationship(ctx context.Context, summaries []string) (string, error) {
	if c.apiKey == "" {
		return SentinelUnavailable, nil
	}
	if len(summaries) == 0 {
		return SentinelNoHistory, nil
	}
	prompt := "Synthesize the following interaction history into a master relationship narrative. Summaries:\n- " +
		strings.Join(summaries, "\n- ")
	return c.generate(ctx, narrativeModel, narrativeSystemPrompt, prompt)
}

func (c *GeminiClient) generate(ctx context.Context, model, system, prompt string) (string, error) {
	req := generateContentRequest{
		Contents:          []content{{Parts: []part{{Text: prompt}}}},
		SystemInstruction: &content{Parts: []part{{Text: system}}},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}

		var result generateContentResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}

		if result.Error != nil {
			if isRetryableStatus(result.Error.Code) {
				lastErr = result.Error
				continue
			}
			return "", result.Error
		}

		if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
			return "Summary unavailable.", nil
		}
		return strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text), nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isRetryableStatus(code int) bool {
	return code == 429 || code >= 500
}

func calculateBackoff(attempt int) time.Duration {
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt-1))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}
