// Package telegram adapts Telegram bot webhooks to the order engine:
// incoming updates become engine inputs and engine replies go back out
// through the Bot API.
package telegram

import "strconv"

// Update is the relevant subset of a Telegram Bot API update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// User is the sender of a message.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// SessionID returns the engine session key for a chat. One chat carries
// at most one order at a time.
func (c Chat) SessionID() string {
	return "tg-" + strconv.FormatInt(c.ID, 10)
}
