package channels

import (
	"context"
	"fmt"
	"log/slog"

	"leoactivation/pkg/api"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	jsoniter "github.com/json-iterator/go"
)

// TelegramConfig encapsulates the credentials required to authenticate
// with the Telegram Bot API.
type TelegramConfig struct {
	Token        string `json:"token"`   // The secret BOT API string provided by @BotFather
	ChatID       int64  `json:"chat_id"` // Broadcast target (channel or group)
	MessageLimit int    `json:"message_limit"`
}

// TelegramChannel broadcasts campaign messages to a configured chat.
// Telegram has no per-segment audience, the segment name is only
// carried for tracking in the result map.
type TelegramChannel struct {
	config TelegramConfig
	bot    *tgbotapi.BotAPI
}

// NewTelegramChannel authenticates with the Bot API up front so a bad
// token fails at load time, not at first activation.
func NewTelegramChannel(cfg TelegramConfig) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: missing token")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram: missing chat_id")
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 4000
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to create bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	return &TelegramChannel{config: cfg, bot: bot}, nil
}

// Key implements api.ActivationChannel
func (c *TelegramChannel) Key() string {
	return "telegram"
}

// Send implements api.ActivationChannel
func (c *TelegramChannel) Send(ctx context.Context, segment, message string, opts map[string]any) (map[string]any, error) {
	// Telegram Chat ID must be int64
	msgRunes := []rune(message)
	totalLen := len(msgRunes)
	chunks := 0

	for i := 0; i < totalLen; i += c.config.MessageLimit {
		end := i + c.config.MessageLimit
		if end > totalLen {
			end = totalLen
		}
		msg := tgbotapi.NewMessage(c.config.ChatID, string(msgRunes[i:end]))
		if _, err := c.bot.Send(msg); err != nil {
			return nil, fmt.Errorf("telegram: send chunk failed at index %d: %w", i, err)
		}
		chunks++
	}

	slog.Info("[Telegram] Broadcast delivered", "chat_id", c.config.ChatID, "segment", segment, "chunks", chunks)
	return map[string]any{
		"status":  "success",
		"channel": "telegram",
		"chunks":  chunks,
	}, nil
}

//----------------------------------------------------------------

type telegramFactory struct{}

func (f *telegramFactory) Create(rawConfig jsoniter.RawMessage, deps Deps) (api.ActivationChannel, error) {
	var cfg TelegramConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("telegram: invalid config: %w", err)
	}
	return NewTelegramChannel(cfg)
}

func init() {
	RegisterChannel("telegram", &telegramFactory{})
}
