package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/orderdesk/orderdesk/internal/engine"
	"github.com/orderdesk/orderdesk/pkg/events"
)

const (
	noSessionReply      = "Send /start to begin a new order."
	receiptFailureReply = "Your order was recorded but the receipt could not be processed."
)

// Handler receives Telegram webhook updates and drives the engine.
type Handler struct {
	engine     *engine.Engine
	sender     Sender
	scriptName string
}

// NewHandler creates a webhook handler using the given flow script.
func NewHandler(eng *engine.Engine, sender Sender, scriptName string) *Handler {
	return &Handler{engine: eng, sender: sender, scriptName: scriptName}
}

// RegisterRoutes registers the webhook route on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /telegram/webhook", h.HandleUpdate)
}

// HandleUpdate processes one Telegram update. Telegram retries non-200
// responses, so handler errors are logged and acknowledged rather than
// surfaced.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.ErrorContext(r.Context(), "telegram: decode update", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if update.Message == nil || update.Message.Text == "" {
		// Stickers, photos, and other non-text content are ignored.
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	chat := update.Message.Chat
	reply := h.process(ctx, chat, update.Message.Text)
	if reply != "" {
		if err := h.sender.SendMessage(ctx, chat.ID, reply); err != nil {
			slog.ErrorContext(ctx, "telegram: send reply",
				slog.Int64("chat_id", chat.ID), slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) process(ctx context.Context, chat Chat, text string) string {
	sessionID := chat.SessionID()

	if strings.HasPrefix(text, "/") {
		return h.processCommand(ctx, chat, text)
	}

	res, err := h.engine.HandleInput(ctx, sessionID, text)
	switch {
	case errors.Is(err, engine.ErrNoActiveSession):
		return noSessionReply
	case err != nil:
		slog.ErrorContext(ctx, "telegram: handle input",
			slog.String("session_id", sessionID), slog.String("error", err.Error()))
		return "Something went wrong. Please try again."
	}
	return res.Reply
}

func (h *Handler) processCommand(ctx context.Context, chat Chat, text string) string {
	sessionID := chat.SessionID()
	command := strings.Fields(text)[0]

	switch command {
	case "/start", "/neworder":
		res, err := h.engine.Begin(ctx, sessionID, h.scriptName)
		if err != nil {
			slog.ErrorContext(ctx, "telegram: begin session",
				slog.String("session_id", sessionID), slog.String("error", err.Error()))
			return "Something went wrong. Please try again."
		}
		return res.Reply

	case "/cancel":
		// Same path as typing the cancel keyword mid-flow.
		res, err := h.engine.HandleInput(ctx, sessionID, "cancel")
		if errors.Is(err, engine.ErrNoActiveSession) {
			return noSessionReply
		}
		if err != nil {
			slog.ErrorContext(ctx, "telegram: cancel session",
				slog.String("session_id", sessionID), slog.String("error", err.Error()))
			return "Something went wrong. Please try again."
		}
		return res.Reply

	default:
		return "Unknown command. Send /start to begin a new order."
	}
}

// NotifyDeliveryFailures forwards webhook delivery failure events back
// to the affected chat. It blocks until the context is cancelled.
func (h *Handler) NotifyDeliveryFailures(ctx context.Context, pub *events.Publisher) {
	ch := pub.Subscribe("telegram-notifier", 64)
	defer pub.Unsubscribe("telegram-notifier")

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if env.Type != events.SystemError {
				continue
			}
			chatID, ok := chatIDFromSession(env.SessionID)
			if !ok {
				continue
			}
			if err := h.sender.SendMessage(ctx, chatID, receiptFailureReply); err != nil {
				slog.ErrorContext(ctx, "telegram: notify delivery failure",
					slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
			}
		}
	}
}

func chatIDFromSession(sessionID string) (int64, bool) {
	raw, ok := strings.CutPrefix(sessionID, "tg-")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
