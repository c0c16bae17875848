package ai

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

// verifyOpenAIChatRequest validates an OpenAI-style chat completion request.
// It decodes the request body and verifies the structure is well-formed.
func verifyOpenAIChatRequest(t *testing.T, r *http.Request, w http.ResponseWriter) *openAIChatRequest {
	t.Helper()

	var req openAIChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("failed to decode request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return nil
	}

	if req.Model == "" {
		t.Error("model is empty")
	}
	if len(req.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(req.Messages))
		return &req
	}
	if req.Messages[0].Role != "user" {
		t.Errorf("message should be user, got %s", req.Messages[0].Role)
	}
	if !strings.Contains(req.Messages[0].Content, "Summary:") {
		t.Errorf("payload not forwarded verbatim: %q", req.Messages[0].Content)
	}

	return &req
}

// verifyOllamaChatRequest validates an Ollama chat request.
// It decodes the request body and verifies the structure is well-formed.
func verifyOllamaChatRequest(t *testing.T, r *http.Request, w http.ResponseWriter) *ollamaChatRequest {
	t.Helper()

	var req ollamaChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("failed to decode request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return nil
	}

	if req.Model == "" {
		t.Error("model is empty")
	}
	if len(req.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(req.Messages))
		return &req
	}
	if req.Messages[0].Role != "user" {
		t.Errorf("message should be user, got %s", req.Messages[0].Role)
	}
	if !strings.Contains(req.Messages[0].Content, "Summary:") {
		t.Errorf("payload not forwarded verbatim: %q", req.Messages[0].Content)
	}

	return &req
}

// testPayload mimics the dispatcher's payload shape.
const testPayload = "You are an AI assistant analyzing NGINX logs.\nSummary:\n{}\nAnomalies:\n{}\n\nPlease answer the question briefly and clearly:\nany errors?\n"

// verifyLocalProviderStats checks stats from local LLM providers (Ollama, LM Studio).
// Local providers have zero cost and expected token counts.
func verifyLocalProviderStats(t *testing.T, stats *Stats, provider string) {
	t.Helper()

	if stats.InputTokens != 1500 {
		t.Errorf("InputTokens = %v, want 1500", stats.InputTokens)
	}
	if stats.OutputTokens != 250 {
		t.Errorf("OutputTokens = %v, want 250", stats.OutputTokens)
	}
	if stats.CostUSD != 0 {
		t.Errorf("CostUSD = %v, want 0 (local inference)", stats.CostUSD)
	}
	if provider != "" && stats.Provider != provider {
		t.Errorf("Provider = %v, want %s", stats.Provider, provider)
	}
}
