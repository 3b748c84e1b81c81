package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/leadguard/scan-engine/internal/config"
	"github.com/leadguard/scan-engine/internal/retry"
)

// systemInstruction pins the analyst persona and the output contract. The
// response schema is enforced downstream by the verdict parser; this text
// only steers the model toward it.
const systemInstruction = `You are 'LeadGuard Core', an autonomous analyst dedicated to identifying recruitment fraud.

TASK: Analyze the provided lead (job offer, recruiter message, or document text) for signs of a scam, weighing the attached domain forensics and document metadata.

OUTPUT: You must return valid JSON with these keys:
- verdict: "CLEAR" | "CAUTION" | "SCAM"
- trust_score: number (1-100, how trustworthy the lead is)
- confidence: number (0-100, how certain you are)
- red_flags: string[]
- analysis: string (detailed reasoning)
- recommendation: string (what the recipient should do)
- category: string (short scam category, e.g. "advance-fee", "fake-recruiter", "none")`

// ExhaustedError reports that every attempt against the analysis endpoint
// failed or was rate limited. Last carries the final observed failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("analysis endpoint exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// AnalysisRequest carries everything the analyst model is shown
type AnalysisRequest struct {
	Content      string
	ForensicText string
	MetadataText string
}

// AttemptObserver counts individual endpoint attempts, if set
type AttemptObserver interface {
	ObserveAnalysisAttempt()
}

// Client invokes the Gemini generateContent endpoint under a bounded retry
// policy. Attempts for one request never run concurrently.
type Client struct {
	config     config.GeminiConfig
	logger     *slog.Logger
	httpClient *http.Client
	policy     retry.Policy

	// Observer is optional; main wires the metrics collector here
	Observer AttemptObserver
}

// NewClient creates an analysis client from configuration
func NewClient(cfg config.GeminiConfig, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		policy: retry.Policy{
			MaxAttempts:    cfg.MaxAttempts,
			RateLimitDelay: cfg.RateLimitDelay,
			RetryDelay:     cfg.RetryDelay,
		},
	}
}

// request/response envelopes for the generateContent API

type generateRequest struct {
	SystemInstruction payloadContent   `json:"system_instruction"`
	Contents          []payloadContent `json:"contents"`
	GenerationConfig  generationConfig `json:"generation_config"`
}

type payloadContent struct {
	Parts []payloadPart `json:"parts"`
}

type payloadPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	MaxOutputTokens  int     `json:"max_output_tokens"`
	ResponseMIMEType string  `json:"response_mime_type"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the evidence-enriched lead to the model and returns its raw
// text output. On exhaustion it fails with *ExhaustedError carrying the last
// observed failure.
func (c *Client) Analyze(ctx context.Context, req AnalysisRequest) (string, error) {
	if c.config.APIKey == "" {
		return "", &ExhaustedError{Attempts: 0, Last: fmt.Errorf("gemini api_key is not configured")}
	}

	prompt := buildPrompt(req)

	var output string
	err := c.policy.Do(ctx, func(attempt int) (retry.Outcome, error) {
		text, outcome, err := c.attempt(ctx, prompt)
		if err != nil {
			c.logger.Warn("analysis attempt failed",
				"attempt", attempt,
				"max_attempts", c.policy.MaxAttempts,
				"rate_limited", outcome == retry.RateLimited,
				"error", err)
			return outcome, err
		}
		output = text
		return retry.Success, nil
	})
	if err != nil {
		return "", &ExhaustedError{Attempts: c.policy.MaxAttempts, Last: err}
	}

	return output, nil
}

func (c *Client) attempt(ctx context.Context, prompt string) (string, retry.Outcome, error) {
	if c.Observer != nil {
		c.Observer.ObserveAnalysisAttempt()
	}

	payload := generateRequest{
		SystemInstruction: payloadContent{Parts: []payloadPart{{Text: systemInstruction}}},
		Contents:          []payloadContent{{Parts: []payloadPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      c.config.Temperature,
			TopP:             c.config.TopP,
			MaxOutputTokens:  c.config.MaxOutputTokens,
			ResponseMIMEType: "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", retry.Transient, fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimSuffix(c.config.BaseURL, "/"), c.config.Model, c.config.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", retry.Transient, fmt.Errorf("failed to create analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", retry.Transient, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return "", retry.RateLimited, fmt.Errorf("analysis endpoint rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", retry.Transient, fmt.Errorf("analysis endpoint returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var envelope generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", retry.Transient, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	text := envelope.text()
	if text == "" {
		return "", retry.Transient, fmt.Errorf("analysis endpoint returned no candidate text")
	}

	c.logger.Debug("analysis attempt succeeded", "duration", time.Since(start))
	return text, retry.Success, nil
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}

func buildPrompt(req AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("LEAD CONTENT:\n")
	b.WriteString(req.Content)
	b.WriteString("\n\nDOMAIN FORENSICS:\n")
	b.WriteString(req.ForensicText)
	if req.MetadataText != "" {
		b.WriteString("\n\n")
		b.WriteString(req.MetadataText)
	}
	return b.String()
}
