// Package notification sends an anomaly alert to a Telegram channel when a
// session starts on a snapshot that already contains server errors.
package notification

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	internalerrors "github.com/olegiv/nginx-log-chat-go/internal/errors"
	"github.com/olegiv/nginx-log-chat-go/internal/stats"
)

const (
	maxMessageLength = 4096
	// minMessageInterval is the minimum time between messages to the same channel
	minMessageInterval = 1 * time.Second
	// maxRetries is the maximum number of attempts for sending one message
	maxRetries = 3
	// baseRetryDelay is the initial delay between retries (doubles each attempt)
	baseRetryDelay = 2 * time.Second
	// maxListedCodes caps the status codes listed in one alert
	maxListedCodes = 20
)

// TelegramConfig configures the alert client.
type TelegramConfig struct {
	BotToken      string
	AlertsChannel int64
	// APIEndpoint overrides tgbotapi.APIEndpoint, mainly for tests.
	APIEndpoint string
}

// TelegramClient posts anomaly alerts.
type TelegramClient struct {
	bot             *tgbotapi.BotAPI
	alertsChannel   int64
	hostname        string
	retryDelay      time.Duration
	lastMessageTime time.Time
}

// Alert describes the snapshot an alert is about.
type Alert struct {
	Source    string
	Requests  int
	Anomalies stats.AnomalySet
}

// NewTelegramClient connects to the Bot API and verifies the token.
func NewTelegramClient(cfg TelegramConfig) (*TelegramClient, error) {
	if cfg.AlertsChannel == 0 {
		return nil, fmt.Errorf("telegram alerts channel is not set")
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, endpoint)
	if err != nil {
		// the token is part of the request URL
		return nil, internalerrors.Wrapf(err, "failed to create Telegram bot")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &TelegramClient{
		bot:           bot,
		alertsChannel: cfg.AlertsChannel,
		hostname:      hostname,
		retryDelay:    baseRetryDelay,
	}, nil
}

// SendAnomalyAlert posts the alert when the anomaly set is not empty. It
// reports whether a message was sent.
func (t *TelegramClient) SendAnomalyAlert(alert Alert) (bool, error) {
	if alert.Anomalies.Empty() {
		return false, nil
	}
	if err := t.sendToChannel(t.alertsChannel, t.formatMessage(alert)); err != nil {
		return false, fmt.Errorf("failed to send to alerts channel: %w", err)
	}
	return true, nil
}

func (t *TelegramClient) formatMessage(alert Alert) string {
	serverErrors := alert.Anomalies.ServerErrors

	var msg strings.Builder
	msg.WriteString("🚨 *NGINX Anomaly Alert*\n")
	msg.WriteString(fmt.Sprintf("🖥 Host\\: %s\n", escapeMarkdown(t.hostname)))
	msg.WriteString(fmt.Sprintf("📅 Date\\: %s\n", escapeMarkdown(time.Now().Format("2006-01-02 15:04:05"))))
	msg.WriteString(fmt.Sprintf("📄 Log\\: %s\n", escapeMarkdown(alert.Source)))
	msg.WriteString(fmt.Sprintf("📊 Requests analysed\\: %d\n\n", alert.Requests))

	msg.WriteString(fmt.Sprintf("🔴 *5xx errors* \\(%d\\)\n", serverErrors.Total()))
	for i, e := range serverErrors {
		if i == maxListedCodes {
			msg.WriteString(fmt.Sprintf("• %s\n", escapeMarkdown(fmt.Sprintf("... and %d more codes", len(serverErrors)-maxListedCodes))))
			break
		}
		msg.WriteString(fmt.Sprintf("• %s\\: %d\n", escapeMarkdown(e.Key), e.N))
	}

	if alert.Requests > 0 {
		share := float64(serverErrors.Total()) * 100 / float64(alert.Requests)
		msg.WriteString(fmt.Sprintf("\n⚡ Error rate\\: %s\n", escapeMarkdown(fmt.Sprintf("%.2f%%", share))))
	}

	return msg.String()
}

// sendToChannel sends a message to a Telegram channel with rate limiting
func (t *TelegramClient) sendToChannel(channelID int64, message string) error {
	for _, msg := range splitMessage(message) {
		t.waitForRateLimit()

		msgConfig := tgbotapi.NewMessage(channelID, msg)
		msgConfig.ParseMode = tgbotapi.ModeMarkdownV2

		if err := t.sendWithRetry(msgConfig); err != nil {
			return err
		}
		t.lastMessageTime = time.Now()
	}
	return nil
}

// waitForRateLimit ensures minimum interval between messages
func (t *TelegramClient) waitForRateLimit() {
	if t.lastMessageTime.IsZero() {
		return
	}
	if elapsed := time.Since(t.lastMessageTime); elapsed < minMessageInterval {
		time.Sleep(minMessageInterval - elapsed)
	}
}

// sendWithRetry sends a message with exponential backoff retry
func (t *TelegramClient) sendWithRetry(msgConfig tgbotapi.MessageConfig) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err := t.bot.Send(msgConfig)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		if retryAfter := retryAfterSeconds(err); retryAfter > 0 {
			time.Sleep(time.Duration(retryAfter) * time.Second)
			continue
		}
		time.Sleep(t.retryDelay * time.Duration(1<<(attempt-1)))
	}

	return internalerrors.Wrapf(lastErr, "failed to send message after %d attempts", maxRetries)
}

// retryAfterSeconds returns the server-requested wait for a 429 response, or
// 0 for any other error.
func retryAfterSeconds(err error) int {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.RetryAfter
	}
	return 0
}

// splitMessage splits a long message on line boundaries
func splitMessage(message string) []string {
	if len(message) <= maxMessageLength {
		return []string{message}
	}

	var messages []string
	var current strings.Builder

	for _, line := range strings.Split(message, "\n") {
		if current.Len()+len(line)+1 > maxMessageLength {
			if current.Len() > 0 {
				messages = append(messages, current.String())
				current.Reset()
			}
			if len(line) > maxMessageLength {
				for i := 0; i < len(line); i += maxMessageLength {
					end := min(i+maxMessageLength, len(line))
					messages = append(messages, line[i:end])
				}
				continue
			}
		}
		current.WriteString(line)
		current.WriteString("\n")
	}

	if current.Len() > 0 {
		messages = append(messages, current.String())
	}
	return messages
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
// See https://core.telegram.org/bots/api#markdownv2-style
func escapeMarkdown(text string) string {
	specialChars := []string{
		"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!", ":",
	}

	result := text
	for _, char := range specialChars {
		result = strings.ReplaceAll(result, char, "\\"+char)
	}
	return result
}

// Close stops the client.
func (t *TelegramClient) Close() error {
	t.bot.StopReceivingUpdates()
	return nil
}
