package config

import (
	"crypto/subtle"
	"flag"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// CLIOptions holds command-line argument overrides
type CLIOptions struct {
	LogPath      string // -log-path: access log to analyse
	Limit        int    // -limit: trailing lines to load (0 = from config)
	Provider     string // -provider: LLM provider
	Model        string // -model: model for the selected provider
	NoSpellcheck bool   // -no-spellcheck: disable question correction
	NoMarkdown   bool   // -no-markdown: print answers as plain text
	ShowHelp     bool   // -help: show usage
	ShowVersion  bool   // -version: show version
}

// ParseCLI parses command-line arguments (without the program name).
// Usage is written to output on -help or on a parse error.
func ParseCLI(program string, args []string, output io.Writer) (*CLIOptions, error) {
	opts := &CLIOptions{}

	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&opts.LogPath, "log-path", "", "Path to the NGINX access log (overrides ACCESS_LOG_PATH)")
	fs.IntVar(&opts.Limit, "limit", 0, "Number of trailing log lines to load (overrides LOG_LIMIT)")
	fs.StringVar(&opts.Provider, "provider", "", "LLM provider: ollama_cli, ollama, lmstudio, anthropic")
	fs.StringVar(&opts.Model, "model", "", "Model name for the selected provider")
	fs.BoolVar(&opts.NoSpellcheck, "no-spellcheck", false, "Do not correct spelling in questions")
	fs.BoolVar(&opts.NoMarkdown, "no-markdown", false, "Print answers as plain text")
	fs.BoolVar(&opts.ShowHelp, "help", false, "Show usage information")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Show version information")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(output, "NGINX Log Chat - ask questions about your access log\n\n")
		_, _ = fmt.Fprintf(output, "Usage: %s [options]\n\n", program)
		_, _ = fmt.Fprintf(output, "Options:\n")
		fs.PrintDefaults()
		_, _ = fmt.Fprintf(output, "\nExamples:\n")
		_, _ = fmt.Fprintf(output, "  %s -log-path /var/log/nginx/access.log -limit 1000\n", program)
		_, _ = fmt.Fprintf(output, "  %s -provider anthropic -model claude-sonnet-4-5-20250929\n", program)
		_, _ = fmt.Fprintf(output, "  tail -n 200 access.log | %s -log-path /dev/stdin\n", program)
		_, _ = fmt.Fprintf(output, "\nEnvironment variables can be set in .env file or exported directly.\n")
		_, _ = fmt.Fprintf(output, "CLI arguments override environment variables.\n")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			opts.ShowHelp = true
			return opts, nil
		}
		return nil, err
	}
	if opts.ShowHelp {
		fs.Usage()
	}

	return opts, nil
}

// Config holds all application configuration
type Config struct {
	// Access log snapshot
	AccessLogPath string
	LogLimit      int
	MaxLogSizeMB  int

	// LLM Provider Selection
	LLMProvider string // "ollama_cli" (default), "ollama", "lmstudio" or "anthropic"

	// Ollama Settings (ollama_cli runs the binary, ollama talks HTTP)
	OllamaBinary  string
	OllamaModel   string
	OllamaBaseURL string

	// LM Studio Settings (used when LLMProvider = "lmstudio")
	LMStudioBaseURL string
	LMStudioModel   string

	// Anthropic/Claude Settings (used when LLMProvider = "anthropic")
	AnthropicAPIKey string
	ClaudeModel     string

	// AI Settings
	AITimeoutSeconds int
	AIMaxTokens      int

	// Proxy
	HTTPProxy  string
	HTTPSProxy string

	// Application logging
	LogLevel   string
	LogDir     string
	LogConsole bool

	// Console
	EnableSpellcheck bool
	RenderMarkdown   bool

	// Telegram (optional anomaly alert)
	TelegramBotToken      string
	TelegramAlertsChannel int64
}

var telegramTokenRegex = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Load loads configuration from .env file and environment variables
func Load() (*Config, error) {
	return LoadWithCLI(nil)
}

// LoadWithCLI loads configuration with CLI argument overrides
// Priority: CLI args > .env file > OS environment variables
func LoadWithCLI(cli *CLIOptions) (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// godotenv sets OS env vars from .env, which viper then reads
	_ = godotenv.Load()

	setDefaults()

	config := &Config{
		AccessLogPath: viper.GetString("ACCESS_LOG_PATH"),
		LogLimit:      viper.GetInt("LOG_LIMIT"),
		MaxLogSizeMB:  viper.GetInt("MAX_LOG_SIZE_MB"),

		LLMProvider:     viper.GetString("LLM_PROVIDER"),
		OllamaBinary:    viper.GetString("OLLAMA_BINARY"),
		OllamaModel:     viper.GetString("OLLAMA_MODEL"),
		OllamaBaseURL:   viper.GetString("OLLAMA_BASE_URL"),
		LMStudioBaseURL: viper.GetString("LMSTUDIO_BASE_URL"),
		LMStudioModel:   viper.GetString("LMSTUDIO_MODEL"),
		AnthropicAPIKey: viper.GetString("ANTHROPIC_API_KEY"),
		ClaudeModel:     viper.GetString("CLAUDE_MODEL"),

		AITimeoutSeconds: viper.GetInt("AI_TIMEOUT_SECONDS"),
		AIMaxTokens:      viper.GetInt("AI_MAX_TOKENS"),

		HTTPProxy:  viper.GetString("HTTP_PROXY"),
		HTTPSProxy: viper.GetString("HTTPS_PROXY"),

		LogLevel:   viper.GetString("LOG_LEVEL"),
		LogDir:     viper.GetString("LOG_DIR"),
		LogConsole: viper.GetBool("LOG_CONSOLE"),

		EnableSpellcheck: viper.GetBool("ENABLE_SPELLCHECK"),
		RenderMarkdown:   viper.GetBool("RENDER_MARKDOWN"),

		TelegramBotToken:      viper.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramAlertsChannel: viper.GetInt64("TELEGRAM_CHANNEL_ALERTS_ID"),
	}

	config.applyCLI(cli)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) applyCLI(cli *CLIOptions) {
	if cli == nil {
		return
	}
	if cli.LogPath != "" {
		c.AccessLogPath = cli.LogPath
	}
	if cli.Limit != 0 {
		c.LogLimit = cli.Limit
	}
	if cli.Provider != "" {
		c.LLMProvider = cli.Provider
	}
	if cli.Model != "" {
		c.SetLLMModel(cli.Model)
	}
	if cli.NoSpellcheck {
		c.EnableSpellcheck = false
	}
	if cli.NoMarkdown {
		c.RenderMarkdown = false
	}
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("ACCESS_LOG_PATH", "/var/log/nginx/access.log")
	viper.SetDefault("LOG_LIMIT", 500)
	viper.SetDefault("MAX_LOG_SIZE_MB", 50)

	viper.SetDefault("LLM_PROVIDER", "ollama_cli")
	viper.SetDefault("OLLAMA_BINARY", "ollama")
	viper.SetDefault("OLLAMA_MODEL", "llama3")
	viper.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	viper.SetDefault("LMSTUDIO_BASE_URL", "http://localhost:1234")
	viper.SetDefault("LMSTUDIO_MODEL", "local-model")
	viper.SetDefault("CLAUDE_MODEL", "claude-sonnet-4-5-20250929")

	viper.SetDefault("AI_TIMEOUT_SECONDS", 60)
	viper.SetDefault("AI_MAX_TOKENS", 1024)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_DIR", "./logs")
	viper.SetDefault("LOG_CONSOLE", false)

	viper.SetDefault("ENABLE_SPELLCHECK", true)
	viper.SetDefault("RENDER_MARKDOWN", true)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AccessLogPath) == "" {
		return fmt.Errorf("ACCESS_LOG_PATH is required")
	}
	if c.LogLimit < 1 || c.LogLimit > 100000 {
		return fmt.Errorf("LOG_LIMIT must be between 1 and 100000")
	}
	if c.MaxLogSizeMB < 1 || c.MaxLogSizeMB > 1024 {
		return fmt.Errorf("MAX_LOG_SIZE_MB must be between 1 and 1024")
	}

	if err := c.validateLLMProvider(); err != nil {
		return err
	}

	if c.AITimeoutSeconds < 5 || c.AITimeoutSeconds > 600 {
		return fmt.Errorf("AI_TIMEOUT_SECONDS must be between 5 and 600")
	}
	if c.AIMaxTokens < 100 || c.AIMaxTokens > 16000 {
		return fmt.Errorf("AI_MAX_TOKENS must be between 100 and 16000")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return c.validateTelegram()
}

// validateTelegram checks the optional alert settings: both or neither.
func (c *Config) validateTelegram() error {
	if c.TelegramBotToken == "" && c.TelegramAlertsChannel == 0 {
		return nil
	}
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when TELEGRAM_CHANNEL_ALERTS_ID is set")
	}
	if !telegramTokenRegex.MatchString(c.TelegramBotToken) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN has invalid format (expected: 'number:token')")
	}
	if c.TelegramAlertsChannel == 0 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ALERTS_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.TelegramAlertsChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ALERTS_ID must be a supergroup/channel ID (starts with -100)")
	}
	return nil
}

// HasTelegramAlerts returns true if the anomaly alert is configured
func (c *Config) HasTelegramAlerts() bool {
	return c.TelegramBotToken != "" && c.TelegramAlertsChannel != 0
}

// GetProxyURL returns the appropriate proxy URL for HTTP/HTTPS requests
func (c *Config) GetProxyURL(isHTTPS bool) string {
	if isHTTPS && c.HTTPSProxy != "" {
		return c.HTTPSProxy
	}
	if c.HTTPProxy != "" {
		return c.HTTPProxy
	}
	return ""
}

// MaxLogBytes returns MaxLogSizeMB in bytes.
func (c *Config) MaxLogBytes() int64 {
	return int64(c.MaxLogSizeMB) * 1024 * 1024
}

// constantTimePrefixMatch checks if s starts with prefix using constant-time comparison.
// Returns false if s is shorter than prefix.
func constantTimePrefixMatch(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s[:len(prefix)]), []byte(prefix)) == 1
}

// validateLLMProvider validates LLM provider configuration
func (c *Config) validateLLMProvider() error {
	switch c.LLMProvider {
	case "ollama_cli":
		if strings.TrimSpace(c.OllamaBinary) == "" {
			return fmt.Errorf("OLLAMA_BINARY is required when LLM_PROVIDER=ollama_cli")
		}
		if c.OllamaModel == "" {
			return fmt.Errorf("OLLAMA_MODEL is required when LLM_PROVIDER=ollama_cli")
		}

	case "ollama":
		if c.OllamaModel == "" {
			return fmt.Errorf("OLLAMA_MODEL is required when LLM_PROVIDER=ollama")
		}
		if !isHTTPURL(c.OllamaBaseURL) {
			return fmt.Errorf("OLLAMA_BASE_URL must start with 'http://' or 'https://'")
		}

	case "lmstudio":
		if !isHTTPURL(c.LMStudioBaseURL) {
			return fmt.Errorf("LMSTUDIO_BASE_URL must start with 'http://' or 'https://'")
		}
		// Model is optional for LM Studio (defaults to "local-model")

	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
		if !constantTimePrefixMatch(c.AnthropicAPIKey, "sk-ant-") {
			return fmt.Errorf("ANTHROPIC_API_KEY must start with 'sk-ant-'")
		}
		if c.ClaudeModel == "" {
			return fmt.Errorf("CLAUDE_MODEL is required when LLM_PROVIDER=anthropic")
		}

	default:
		return fmt.Errorf("LLM_PROVIDER must be 'ollama_cli', 'ollama', 'lmstudio', or 'anthropic' (got: %s)", c.LLMProvider)
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// GetLLMModel returns the model name for the current LLM provider
func (c *Config) GetLLMModel() string {
	switch c.LLMProvider {
	case "ollama_cli", "ollama":
		return c.OllamaModel
	case "lmstudio":
		return c.LMStudioModel
	default:
		return c.ClaudeModel
	}
}

// SetLLMModel sets the model name for the current LLM provider
func (c *Config) SetLLMModel(model string) {
	switch c.LLMProvider {
	case "ollama_cli", "ollama":
		c.OllamaModel = model
	case "lmstudio":
		c.LMStudioModel = model
	default:
		c.ClaudeModel = model
	}
}
