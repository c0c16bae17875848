package ai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
)

func newTestAnthropicClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &Client{
		client:    anthropic.NewClient("sk-ant-test-key", anthropic.WithBaseURL(server.URL)),
		model:     "claude-sonnet-4-5",
		maxTokens: 1024,
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		apiKey      string
		model       string
		proxyURL    string
		expectError bool
	}{
		{
			name:     "Valid client without proxy",
			apiKey:   "sk-ant-test-key",
			model:    "claude-sonnet-4-5",
			proxyURL: "",
		},
		{
			name:     "Valid client with proxy",
			apiKey:   "sk-ant-test-key",
			model:    "claude-sonnet-4-5",
			proxyURL: "http://proxy.example.com:8080",
		},
		{
			name:        "Invalid proxy URL",
			apiKey:      "sk-ant-test-key",
			model:       "claude-sonnet-4-5",
			proxyURL:    "://invalid-url",
			expectError: true,
		},
		{
			name:        "Unsupported proxy scheme",
			apiKey:      "sk-ant-test-key",
			model:       "claude-sonnet-4-5",
			proxyURL:    "socks5://proxy.example.com:1080",
			expectError: true,
		},
		{
			name:        "Missing API key",
			model:       "claude-sonnet-4-5",
			expectError: true,
		},
		{
			name:        "Missing model",
			apiKey:      "sk-ant-test-key",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.apiKey, tt.model, tt.proxyURL, 60, 1024)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client.model != tt.model {
				t.Errorf("Expected model %s, got %s", tt.model, client.model)
			}
			if client.client == nil {
				t.Error("Expected Anthropic client to be initialized")
			}
		})
	}
}

func TestClient_Complete(t *testing.T) {
	client := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.MaxTokens != 1024 {
			t.Errorf("max_tokens = %d, want 1024", req.MaxTokens)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("expected a single user message, got %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "  Mostly 200s.  "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 1000, "output_tokens": 500}
		}`))
	})

	answer, stats, err := client.Complete(context.Background(), testPayload)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if answer != "Mostly 200s." {
		t.Errorf("Complete() answer = %q", answer)
	}
	if stats.Provider != "Anthropic" || stats.Model != "claude-sonnet-4-5" {
		t.Errorf("unexpected stats identity: %+v", stats)
	}
	// (1000*3 + 500*15)/1000000
	if math.Abs(stats.CostUSD-0.0105) > 1e-9 {
		t.Errorf("CostUSD = %f, want 0.0105", stats.CostUSD)
	}
}

func TestClient_Complete_RateLimited(t *testing.T) {
	client := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
	})

	_, _, err := client.Complete(context.Background(), testPayload)
	if err == nil {
		t.Fatal("Complete() expected error, got nil")
	}
	if !isRateLimitError(err) {
		t.Errorf("Expected rate limit classification, got %v", err)
	}

	var apiErr *anthropic.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("Sanitized error should still unwrap to *anthropic.APIError: %v", err)
	}
}

func TestCalculateStats(t *testing.T) {
	tests := []struct {
		name         string
		usage        string
		expectedCost float64
	}{
		{
			name:         "Basic calculation without cache",
			usage:        `{"input_tokens": 1000, "output_tokens": 500}`,
			expectedCost: 0.0105, // (1000*3 + 500*15)/1000000
		},
		{
			name:         "With cache creation",
			usage:        `{"input_tokens": 1000, "output_tokens": 500, "cache_creation_input_tokens": 2000}`,
			expectedCost: 0.018, // + 2000*3.75/1000000
		},
		{
			name:         "With cache read",
			usage:        `{"input_tokens": 1000, "output_tokens": 500, "cache_read_input_tokens": 5000}`,
			expectedCost: 0.012, // + 5000*0.30/1000000
		},
		{
			name:         "Zero tokens",
			usage:        `{}`,
			expectedCost: 0,
		},
	}

	client := &Client{model: "claude-sonnet-4-5"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var response anthropic.MessagesResponse
			if err := json.Unmarshal([]byte(`{"usage": `+tt.usage+`}`), &response); err != nil {
				t.Fatalf("failed to build response: %v", err)
			}

			stats := client.calculateStats(response, 2.5)

			if math.Abs(stats.CostUSD-tt.expectedCost) > 1e-9 {
				t.Errorf("CostUSD = %.6f, want %.6f", stats.CostUSD, tt.expectedCost)
			}
			if stats.DurationSeconds != 2.5 {
				t.Errorf("DurationSeconds = %v, want 2.5", stats.DurationSeconds)
			}
			if stats.Provider != "Anthropic" {
				t.Errorf("Provider = %s, want Anthropic", stats.Provider)
			}
		})
	}
}

func TestGetModelInfo(t *testing.T) {
	client := &Client{model: "claude-sonnet-4-5", maxTokens: 1024}

	info := client.GetModelInfo()

	if model, ok := info["model"].(string); !ok || model != "claude-sonnet-4-5" {
		t.Errorf("Expected model claude-sonnet-4-5, got %v", info["model"])
	}
	if provider, ok := info["provider"].(string); !ok || provider != "Anthropic" {
		t.Errorf("Expected provider 'Anthropic', got %v", info["provider"])
	}
	if maxTokens, ok := info["max_tokens"].(int); !ok || maxTokens != 1024 {
		t.Errorf("Expected max_tokens 1024, got %v", info["max_tokens"])
	}
	if client.GetProviderName() != "Anthropic" {
		t.Errorf("GetProviderName() = %s", client.GetProviderName())
	}
}
