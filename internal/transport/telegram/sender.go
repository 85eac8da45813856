package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultAPIBase is the public Telegram Bot API host.
const DefaultAPIBase = "https://api.telegram.org"

// Sender sends replies back to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// BotSender sends messages through the Telegram Bot API.
type BotSender struct {
	client *resty.Client
	token  string
}

// NewBotSender creates a sender for the given bot token. An empty
// apiBase selects the public API host.
func NewBotSender(token, apiBase string) *BotSender {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	client := resty.New().
		SetBaseURL(apiBase).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &BotSender{client: client, token: token}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// SendMessage posts one text message to a chat.
func (s *BotSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	var result apiResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{ChatID: chatID, Text: text}).
		SetResult(&result).
		Post(fmt.Sprintf("/bot%s/sendMessage", s.token))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram send: HTTP %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}
