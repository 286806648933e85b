package wpp

import (
	"context"
	"encoding/json"
)

// ChatState selects the composing, recording or paused indicator.
type ChatState int

const (
	ChatStateTyping    ChatState = 0
	ChatStateRecording ChatState = 1
	ChatStatePaused    ChatState = 2
)

// Ack of a presence call is whatever the page returned, often null.
type PresenceAck = json.RawMessage

// SendSeen marks the chat as read.
func (s *Sender) SendSeen(ctx context.Context, chatID string) (PresenceAck, error) {
	return s.evaluate(ctx, ScriptMarkRead, NormalizeChatID(chatID))
}

// StartTyping shows the composing indicator. A zero duration leaves it on
// until StopTyping.
func (s *Sender) StartTyping(ctx context.Context, to string, durationMs int) (PresenceAck, error) {
	arg := map[string]any{"to": NormalizeChatID(to)}
	if durationMs > 0 {
		arg["duration"] = durationMs
	}
	return s.evaluate(ctx, ScriptMarkComposing, arg)
}

func (s *Sender) StopTyping(ctx context.Context, to string) (PresenceAck, error) {
	return s.evaluate(ctx, ScriptMarkPaused, NormalizeChatID(to))
}

// SetOnlinePresence marks the account available or unavailable.
func (s *Sender) SetOnlinePresence(ctx context.Context, online bool) (PresenceAck, error) {
	return s.evaluate(ctx, ScriptMarkAvailable, online)
}

// SetChatState sets the legacy chat state of chatID.
//
// Deprecated: use StartTyping or StopTyping.
func (s *Sender) SetChatState(ctx context.Context, chatID string, state ChatState) (PresenceAck, error) {
	return s.evaluate(ctx, ScriptSetChatState, map[string]any{
		"chatState": int(state),
		"chatId":    NormalizeChatID(chatID),
	})
}
