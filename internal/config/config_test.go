package config

import (
	"bytes"
	"strings"
	"testing"
)

// checkError is a helper to verify error expectations in tests
func checkError(t *testing.T, err error, expectError bool, errorContains string) {
	t.Helper()
	if expectError {
		if err == nil {
			t.Error("Expected an error but got none")
			return
		}
		if errorContains != "" && !strings.Contains(err.Error(), errorContains) {
			t.Errorf("Expected error to contain '%s', got '%s'", errorContains, err.Error())
		}
	} else {
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	}
}

// validConfig returns a config that passes validation.
func validConfig() *Config {
	return &Config{
		AccessLogPath:    "/var/log/nginx/access.log",
		LogLimit:         500,
		MaxLogSizeMB:     50,
		LLMProvider:      "ollama_cli",
		OllamaBinary:     "ollama",
		OllamaModel:      "llama3",
		OllamaBaseURL:    "http://localhost:11434",
		LMStudioBaseURL:  "http://localhost:1234",
		LMStudioModel:    "local-model",
		ClaudeModel:      "claude-sonnet-4-5-20250929",
		AITimeoutSeconds: 60,
		AIMaxTokens:      1024,
		LogLevel:         "info",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		expectError   bool
		errorContains string
	}{
		{name: "Valid config", mutate: func(c *Config) {}},
		{name: "Missing access log path", mutate: func(c *Config) { c.AccessLogPath = " " }, expectError: true, errorContains: "ACCESS_LOG_PATH is required"},
		{name: "Limit zero", mutate: func(c *Config) { c.LogLimit = 0 }, expectError: true, errorContains: "LOG_LIMIT"},
		{name: "Limit too large", mutate: func(c *Config) { c.LogLimit = 100001 }, expectError: true, errorContains: "LOG_LIMIT"},
		{name: "Limit at bounds", mutate: func(c *Config) { c.LogLimit = 100000 }},
		{name: "Max log size too large", mutate: func(c *Config) { c.MaxLogSizeMB = 2048 }, expectError: true, errorContains: "MAX_LOG_SIZE_MB"},
		{name: "Unknown provider", mutate: func(c *Config) { c.LLMProvider = "openai" }, expectError: true, errorContains: "LLM_PROVIDER must be"},
		{name: "CLI provider without binary", mutate: func(c *Config) { c.OllamaBinary = "" }, expectError: true, errorContains: "OLLAMA_BINARY is required"},
		{name: "CLI provider without model", mutate: func(c *Config) { c.OllamaModel = "" }, expectError: true, errorContains: "OLLAMA_MODEL is required"},
		{name: "Ollama HTTP", mutate: func(c *Config) { c.LLMProvider = "ollama" }},
		{
			name:          "Ollama bad URL",
			mutate:        func(c *Config) { c.LLMProvider = "ollama"; c.OllamaBaseURL = "localhost:11434" },
			expectError:   true,
			errorContains: "OLLAMA_BASE_URL must start with",
		},
		{
			name:          "LM Studio bad URL",
			mutate:        func(c *Config) { c.LLMProvider = "lmstudio"; c.LMStudioBaseURL = "ftp://x" },
			expectError:   true,
			errorContains: "LMSTUDIO_BASE_URL must start with",
		},
		{
			name:          "Anthropic without key",
			mutate:        func(c *Config) { c.LLMProvider = "anthropic" },
			expectError:   true,
			errorContains: "ANTHROPIC_API_KEY is required",
		},
		{
			name:          "Anthropic key with wrong prefix",
			mutate:        func(c *Config) { c.LLMProvider = "anthropic"; c.AnthropicAPIKey = "invalid-key" },
			expectError:   true,
			errorContains: "must start with 'sk-ant-'",
		},
		{
			name:   "Anthropic valid",
			mutate: func(c *Config) { c.LLMProvider = "anthropic"; c.AnthropicAPIKey = "sk-ant-test-key-1234567890" },
		},
		{name: "Timeout too small", mutate: func(c *Config) { c.AITimeoutSeconds = 4 }, expectError: true, errorContains: "AI_TIMEOUT_SECONDS"},
		{name: "Timeout too large", mutate: func(c *Config) { c.AITimeoutSeconds = 601 }, expectError: true, errorContains: "AI_TIMEOUT_SECONDS"},
		{name: "Max tokens too small", mutate: func(c *Config) { c.AIMaxTokens = 99 }, expectError: true, errorContains: "AI_MAX_TOKENS"},
		{name: "Invalid log level", mutate: func(c *Config) { c.LogLevel = "verbose" }, expectError: true, errorContains: "LOG_LEVEL"},
		{name: "Log level case insensitive", mutate: func(c *Config) { c.LogLevel = "DEBUG" }},
		{
			name:   "Telegram alerts configured",
			mutate: func(c *Config) { c.TelegramBotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"; c.TelegramAlertsChannel = -1001234567890 },
		},
		{
			name:          "Telegram token without channel",
			mutate:        func(c *Config) { c.TelegramBotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz" },
			expectError:   true,
			errorContains: "TELEGRAM_CHANNEL_ALERTS_ID is required",
		},
		{
			name:          "Telegram channel without token",
			mutate:        func(c *Config) { c.TelegramAlertsChannel = -1001234567890 },
			expectError:   true,
			errorContains: "TELEGRAM_BOT_TOKEN is required",
		},
		{
			name:          "Telegram token invalid format",
			mutate:        func(c *Config) { c.TelegramBotToken = "invalid-token"; c.TelegramAlertsChannel = -1001234567890 },
			expectError:   true,
			errorContains: "invalid format",
		},
		{
			name:          "Telegram channel not a supergroup",
			mutate:        func(c *Config) { c.TelegramBotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"; c.TelegramAlertsChannel = 12345 },
			expectError:   true,
			errorContains: "supergroup/channel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)
			checkError(t, config.Validate(), tt.expectError, tt.errorContains)
		})
	}
}

func TestHasTelegramAlerts(t *testing.T) {
	config := validConfig()
	if config.HasTelegramAlerts() {
		t.Error("Expected alerts to be off by default")
	}
	config.TelegramBotToken = "123:abc"
	config.TelegramAlertsChannel = -1001234567890
	if !config.HasTelegramAlerts() {
		t.Error("Expected alerts to be on")
	}
}

func TestGetProxyURL(t *testing.T) {
	tests := []struct {
		name        string
		httpProxy   string
		httpsProxy  string
		isHTTPS     bool
		expectedURL string
	}{
		{"HTTPS with HTTPS proxy", "http://proxy:8080", "https://secure-proxy:8443", true, "https://secure-proxy:8443"},
		{"HTTPS falls back to HTTP proxy", "http://proxy:8080", "", true, "http://proxy:8080"},
		{"HTTP request", "http://proxy:8080", "https://secure-proxy:8443", false, "http://proxy:8080"},
		{"No proxy", "", "", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{HTTPProxy: tt.httpProxy, HTTPSProxy: tt.httpsProxy}
			if result := config.GetProxyURL(tt.isHTTPS); result != tt.expectedURL {
				t.Errorf("Expected proxy URL '%s', got '%s'", tt.expectedURL, result)
			}
		})
	}
}

func TestMaxLogBytes(t *testing.T) {
	config := &Config{MaxLogSizeMB: 50}
	if got := config.MaxLogBytes(); got != 50*1024*1024 {
		t.Errorf("MaxLogBytes() = %d", got)
	}
}

func TestLLMModel(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"ollama_cli", "llama3"},
		{"ollama", "llama3"},
		{"lmstudio", "local-model"},
		{"anthropic", "claude-sonnet-4-5-20250929"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			config := validConfig()
			config.LLMProvider = tt.provider
			if got := config.GetLLMModel(); got != tt.want {
				t.Errorf("GetLLMModel() = %q, want %q", got, tt.want)
			}

			config.SetLLMModel("custom")
			if got := config.GetLLMModel(); got != "custom" {
				t.Errorf("GetLLMModel() after SetLLMModel = %q", got)
			}
		})
	}
}

func TestConstantTimePrefixMatch(t *testing.T) {
	tests := []struct {
		s, prefix string
		want      bool
	}{
		{"sk-ant-api03-xyz", "sk-ant-", true},
		{"sk-ant-", "sk-ant-", true},
		{"sk-an", "sk-ant-", false},
		{"xx-ant-api03", "sk-ant-", false},
		{"", "sk-ant-", false},
	}

	for _, tt := range tests {
		if got := constantTimePrefixMatch(tt.s, tt.prefix); got != tt.want {
			t.Errorf("constantTimePrefixMatch(%q, %q) = %v, want %v", tt.s, tt.prefix, got, tt.want)
		}
	}
}

func TestParseCLI(t *testing.T) {
	var out bytes.Buffer
	opts, err := ParseCLI("nginx-chat", []string{
		"-log-path", "/tmp/access.log",
		"-limit", "200",
		"-provider", "anthropic",
		"-model", "claude-haiku",
		"-no-spellcheck",
		"-no-markdown",
	}, &out)
	if err != nil {
		t.Fatalf("ParseCLI() error = %v", err)
	}

	want := CLIOptions{
		LogPath:      "/tmp/access.log",
		Limit:        200,
		Provider:     "anthropic",
		Model:        "claude-haiku",
		NoSpellcheck: true,
		NoMarkdown:   true,
	}
	if *opts != want {
		t.Errorf("ParseCLI() = %+v, want %+v", *opts, want)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestParseCLI_Help(t *testing.T) {
	for _, arg := range []string{"-help", "-h"} {
		t.Run(arg, func(t *testing.T) {
			var out bytes.Buffer
			opts, err := ParseCLI("nginx-chat", []string{arg}, &out)
			if err != nil {
				t.Fatalf("ParseCLI() error = %v", err)
			}
			if !opts.ShowHelp {
				t.Error("ShowHelp = false")
			}
			if !strings.Contains(out.String(), "Usage: nginx-chat") {
				t.Errorf("usage not printed: %s", out.String())
			}
		})
	}
}

func TestParseCLI_Invalid(t *testing.T) {
	var out bytes.Buffer
	if _, err := ParseCLI("nginx-chat", []string{"-limit", "many"}, &out); err == nil {
		t.Error("Expected error for non-numeric -limit")
	}
	if _, err := ParseCLI("nginx-chat", []string{"-unknown"}, &out); err == nil {
		t.Error("Expected error for unknown flag")
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"ACCESS_LOG_PATH", "LOG_LIMIT", "MAX_LOG_SIZE_MB", "LLM_PROVIDER", "OLLAMA_BINARY",
		"OLLAMA_MODEL", "AI_TIMEOUT_SECONDS", "AI_MAX_TOKENS", "LOG_LEVEL", "LOG_CONSOLE",
		"ENABLE_SPELLCHECK", "RENDER_MARKDOWN", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHANNEL_ALERTS_ID",
	} {
		t.Setenv(key, "")
	}

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.AccessLogPath != "/var/log/nginx/access.log" {
		t.Errorf("AccessLogPath = %q", config.AccessLogPath)
	}
	if config.LogLimit != 500 {
		t.Errorf("LogLimit = %d, want 500", config.LogLimit)
	}
	if config.LLMProvider != "ollama_cli" || config.OllamaBinary != "ollama" || config.OllamaModel != "llama3" {
		t.Errorf("provider defaults = %s %s %s", config.LLMProvider, config.OllamaBinary, config.OllamaModel)
	}
	if config.AITimeoutSeconds != 60 {
		t.Errorf("AITimeoutSeconds = %d, want 60", config.AITimeoutSeconds)
	}
	if !config.EnableSpellcheck || !config.RenderMarkdown {
		t.Error("spellcheck and markdown should default to on")
	}
	if config.LogConsole {
		t.Error("console logging should default to off")
	}
}

func TestLoadWithCLI_Overrides(t *testing.T) {
	t.Setenv("ACCESS_LOG_PATH", "/env/access.log")
	t.Setenv("LOG_LIMIT", "50")
	t.Setenv("LLM_PROVIDER", "ollama_cli")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key-1234567890")

	config, err := LoadWithCLI(&CLIOptions{
		LogPath:      "/cli/access.log",
		Limit:        75,
		Provider:     "anthropic",
		Model:        "claude-haiku",
		NoSpellcheck: true,
	})
	if err != nil {
		t.Fatalf("LoadWithCLI() error = %v", err)
	}

	if config.AccessLogPath != "/cli/access.log" {
		t.Errorf("AccessLogPath = %q, CLI should win", config.AccessLogPath)
	}
	if config.LogLimit != 75 {
		t.Errorf("LogLimit = %d, CLI should win", config.LogLimit)
	}
	if config.LLMProvider != "anthropic" || config.ClaudeModel != "claude-haiku" {
		t.Errorf("provider/model = %s/%s", config.LLMProvider, config.ClaudeModel)
	}
	if config.EnableSpellcheck {
		t.Error("-no-spellcheck should disable spelling correction")
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	t.Setenv("LOG_LIMIT", "0")

	if _, err := Load(); err == nil {
		t.Error("Expected Load to fail for LOG_LIMIT=0")
	}
}
