package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadguard/scan-engine/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler, delays *[]time.Duration) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.GeminiConfig{
		APIKey:          "test-key",
		BaseURL:         server.URL,
		Model:           "gemini-2.0-flash",
		Temperature:     0.1,
		TopP:            0.95,
		MaxOutputTokens: 2048,
		RequestTimeout:  2 * time.Second,
		MaxAttempts:     3,
		RateLimitDelay:  2 * time.Second,
		RetryDelay:      time.Second,
	}

	client := NewClient(cfg, testLogger())
	client.policy.Sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
	return client
}

func candidateBody(text string) string {
	envelope := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
	raw, _ := json.Marshal(envelope)
	return string(raw)
}

func TestAnalyze_Success(t *testing.T) {
	var captured generateRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, candidateBody(`{"verdict":"CLEAR"}`))
	}), nil)

	output, err := client.Analyze(context.Background(), AnalysisRequest{
		Content:      "Job offer text",
		ForensicText: "Domain acme.com is well established.",
		MetadataText: "Document metadata: producer X",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"verdict":"CLEAR"}`, output)

	// Generation parameters are pinned for determinism.
	assert.Equal(t, 0.1, captured.GenerationConfig.Temperature)
	assert.Equal(t, 0.95, captured.GenerationConfig.TopP)
	assert.Equal(t, 2048, captured.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMIMEType)

	require.Len(t, captured.Contents, 1)
	prompt := captured.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "Job offer text")
	assert.Contains(t, prompt, "well established")
	assert.Contains(t, prompt, "producer X")
	require.NotEmpty(t, captured.SystemInstruction.Parts)
	assert.Contains(t, captured.SystemInstruction.Parts[0].Text, "recruitment fraud")
}

func TestAnalyze_RateLimitedExhaustsWithGrowingBackoff(t *testing.T) {
	var delays []time.Duration
	requests := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	}), &delays)

	_, err := client.Analyze(context.Background(), AnalysisRequest{Content: "x"})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, requests)
	assert.Contains(t, exhausted.Last.Error(), "429")

	require.Len(t, delays, 2)
	assert.Equal(t, 2*time.Second, delays[0])
	assert.Equal(t, 4*time.Second, delays[1])
	assert.Less(t, delays[0], delays[1], "rate-limit backoff must strictly increase")
}

func TestAnalyze_TransientErrorThenSuccess(t *testing.T) {
	var delays []time.Duration
	requests := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			http.Error(w, "internal", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, candidateBody("ok"))
	}), &delays)

	output, err := client.Analyze(context.Background(), AnalysisRequest{Content: "x"})

	require.NoError(t, err)
	assert.Equal(t, "ok", output)
	assert.Equal(t, 2, requests)
	assert.Equal(t, []time.Duration{time.Second}, delays)
}

func TestAnalyze_EmptyCandidatesIsRetried(t *testing.T) {
	requests := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"candidates":[]}`)
	}), &[]time.Duration{})

	_, err := client.Analyze(context.Background(), AnalysisRequest{Content: "x"})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, requests, "empty output is a failure, not a silent empty answer")
	assert.Contains(t, exhausted.Last.Error(), "no candidate text")
}

func TestAnalyze_MissingAPIKey(t *testing.T) {
	client := NewClient(config.GeminiConfig{MaxAttempts: 3}, testLogger())

	_, err := client.Analyze(context.Background(), AnalysisRequest{Content: "x"})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Contains(t, err.Error(), "api_key")
}
