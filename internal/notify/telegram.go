package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/aftermath/internal/platform/transport"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	http    *transport.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. Telegram allows roughly one message per second per chat, so the
// client is throttled to that.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		baseURL: telegramAPI,
		token:   token,
		chatID:  chatID,
		http: transport.New(transport.Options{
			Timeout:   10 * time.Second,
			RateLimit: 1,
			Burst:     3,
		}),
	}
}

// Send posts a message to the configured chat. The title is rendered in
// bold using Markdown.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.baseURL, "/"), t.token)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	}
	if _, err := t.http.PostJSON(ctx, url, payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
