package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"wppbot/internal/journal"
	"wppbot/internal/wpp"
)

type sendTextRequest struct {
	To      string          `json:"to"`
	Content string          `json:"content"`
	Options wpp.TextOptions `json:"options,omitempty"`
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	var req sendTextRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) {
		return
	}
	env, err := s.sender.SendText(r.Context(), req.To, req.Content, req.Options)
	s.reply(w, r, env, err)
}

type sendLinkRequest struct {
	To   string `json:"to"`
	URL  string `json:"url"`
	Text string `json:"text"`
}

func (s *Server) handleSendLink(w http.ResponseWriter, r *http.Request) {
	var req sendLinkRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) || !requireField(w, "url", req.URL) {
		return
	}
	msg, err := s.sender.SendLinkPreview(r.Context(), req.To, req.URL, req.Text)
	s.reply(w, r, msg, err)
}

type sendMessageRequest struct {
	Chat    string         `json:"chat"`
	Content string         `json:"content"`
	Options map[string]any `json:"options,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) || !requireField(w, "chat", req.Chat) {
		return
	}
	msg, err := s.sender.SendMessageOptions(r.Context(), req.Chat, req.Content, req.Options)
	s.reply(w, r, msg, err)
}

// Path names a file on the server host; Base64 carries a data URI.
// Exactly one is set.
type sendImageRequest struct {
	To              string `json:"to"`
	Path            string `json:"path,omitempty"`
	Base64          string `json:"base64,omitempty"`
	Filename        string `json:"filename,omitempty"`
	Caption         string `json:"caption,omitempty"`
	QuotedMessageID string `json:"quotedMessageId,omitempty"`
	ViewOnce        bool   `json:"viewOnce,omitempty"`
}

func (s *Server) handleSendImage(w http.ResponseWriter, r *http.Request) {
	var req sendImageRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) {
		return
	}
	opts := wpp.ImageOptions{
		Filename:        req.Filename,
		Caption:         req.Caption,
		QuotedMessageID: req.QuotedMessageID,
		ViewOnce:        req.ViewOnce,
	}

	var (
		env *wpp.Envelope
		err error
	)
	switch {
	case req.Path != "" && req.Base64 != "":
		writeError(w, http.StatusBadRequest, "path and base64 are mutually exclusive")
		return
	case req.Base64 != "":
		env, err = s.sender.SendImageFromBase64(r.Context(), req.To, req.Base64, opts)
	case req.Path != "":
		env, err = s.sender.SendImage(r.Context(), req.To, req.Path, opts)
	default:
		writeError(w, http.StatusBadRequest, "path or base64 is required")
		return
	}
	s.reply(w, r, env, err)
}

type sendFileRequest struct {
	To       string         `json:"to"`
	Path     string         `json:"path,omitempty"`
	Base64   string         `json:"base64,omitempty"`
	Filename string         `json:"filename,omitempty"`
	Caption  string         `json:"caption,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	var req sendFileRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) {
		return
	}

	var src wpp.FileSource
	switch {
	case req.Path != "" && req.Base64 != "":
		writeError(w, http.StatusBadRequest, "path and base64 are mutually exclusive")
		return
	case req.Base64 != "":
		src = wpp.EncodedFile(req.Base64)
	case req.Path != "":
		src = wpp.FilePath(req.Path)
	default:
		writeError(w, http.StatusBadRequest, "path or base64 is required")
		return
	}

	name := wpp.FileName(req.Filename, req.Caption)
	if req.Options != nil {
		name = wpp.FileOptions(req.Options)
	}
	env, err := s.sender.SendFile(r.Context(), req.To, src, name)
	s.reply(w, r, env, err)
}

type sendLocationRequest struct {
	To string `json:"to"`
	wpp.Location
}

func (s *Server) handleSendLocation(w http.ResponseWriter, r *http.Request) {
	var req sendLocationRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) {
		return
	}
	env, err := s.sender.SendLocation(r.Context(), req.To, req.Location)
	s.reply(w, r, env, err)
}

type sendVcardRequest struct {
	To       string   `json:"to"`
	Contacts []string `json:"contacts"`
	Name     string   `json:"name,omitempty"`
}

func (s *Server) handleSendVcard(w http.ResponseWriter, r *http.Request) {
	var req sendVcardRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) {
		return
	}
	if len(req.Contacts) == 0 {
		writeError(w, http.StatusBadRequest, "contacts is required")
		return
	}
	env, err := s.sender.SendContactVcard(r.Context(), req.To, req.Contacts, req.Name)
	s.reply(w, r, env, err)
}

type sendListRequest struct {
	To   string          `json:"to"`
	List wpp.ListOptions `json:"list"`
}

func (s *Server) handleSendList(w http.ResponseWriter, r *http.Request) {
	var req sendListRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) {
		return
	}
	msg, err := s.sender.SendListMessage(r.Context(), req.To, req.List)
	s.reply(w, r, msg, err)
}

type replyRequest struct {
	To              string `json:"to"`
	Content         string `json:"content"`
	QuotedMessageID string `json:"quotedMessageId"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) || !requireField(w, "quotedMessageId", req.QuotedMessageID) {
		return
	}
	msg, err := s.sender.Reply(r.Context(), req.To, req.Content, req.QuotedMessageID)
	s.reply(w, r, msg, err)
}

type forwardRequest struct {
	To             string   `json:"to"`
	MessageIDs     []string `json:"messageIds"`
	SkipMyMessages bool     `json:"skipMyMessages,omitempty"`
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	var req forwardRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) {
		return
	}
	if len(req.MessageIDs) == 0 {
		writeError(w, http.StatusBadRequest, "messageIds is required")
		return
	}
	raw, err := s.sender.ForwardMessages(r.Context(), req.To, req.MessageIDs, req.SkipMyMessages)
	s.reply(w, r, resultBody{Result: raw}, err)
}

// resultBody wraps the raw page answer of calls with no fixed shape.
type resultBody struct {
	Result json.RawMessage `json:"result"`
}

type seenRequest struct {
	ChatID string `json:"chatId"`
}

func (s *Server) handleSeen(w http.ResponseWriter, r *http.Request) {
	var req seenRequest
	if !decode(w, r, &req) || !requireField(w, "chatId", req.ChatID) {
		return
	}
	raw, err := s.sender.SendSeen(r.Context(), req.ChatID)
	s.reply(w, r, resultBody{Result: raw}, err)
}

type typingRequest struct {
	To         string `json:"to"`
	DurationMs int    `json:"durationMs,omitempty"`
	Stop       bool   `json:"stop,omitempty"`
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if !decode(w, r, &req) || !requireField(w, "to", req.To) {
		return
	}
	var (
		raw wpp.PresenceAck
		err error
	)
	if req.Stop {
		raw, err = s.sender.StopTyping(r.Context(), req.To)
	} else {
		raw, err = s.sender.StartTyping(r.Context(), req.To, req.DurationMs)
	}
	s.reply(w, r, resultBody{Result: raw}, err)
}

type presenceRequest struct {
	Online bool `json:"online"`
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if !decode(w, r, &req) {
		return
	}
	raw, err := s.sender.SetOnlinePresence(r.Context(), req.Online)
	s.reply(w, r, resultBody{Result: raw}, err)
}

type chatStateRequest struct {
	ChatID string        `json:"chatId"`
	State  wpp.ChatState `json:"state"`
}

func (s *Server) handleChatState(w http.ResponseWriter, r *http.Request) {
	var req chatStateRequest
	if !decode(w, r, &req) || !requireField(w, "chatId", req.ChatID) {
		return
	}
	if req.State < wpp.ChatStateTyping || req.State > wpp.ChatStatePaused {
		writeError(w, http.StatusBadRequest, "state must be 0 (typing), 1 (recording) or 2 (paused)")
		return
	}
	raw, err := s.sender.SetChatState(r.Context(), req.ChatID, req.State)
	s.reply(w, r, resultBody{Result: raw}, err)
}

type historyEntry struct {
	DispatchID string    `json:"dispatchId"`
	Session    string    `json:"session"`
	Op         string    `json:"op"`
	ChatID     string    `json:"chatId"`
	MessageID  string    `json:"messageId,omitempty"`
	Ack        wpp.Ack   `json:"ack"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	Phases     int       `json:"phases"`
	Started    time.Time `json:"started"`
	DurationMs int64     `json:"durationMs"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}

	q := r.URL.Query()
	f := journal.Filter{
		Session: s.sender.SessionName(),
		ChatID:  q.Get("chat"),
		Outcome: wpp.Outcome(q.Get("outcome")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		f.Since = t
	}

	recs, err := s.history.List(r.Context(), f)
	if err != nil {
		s.logger.Error("history query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	out := make([]historyEntry, len(recs))
	for i, rec := range recs {
		out[i] = historyEntry{
			DispatchID: rec.DispatchID,
			Session:    rec.Session,
			Op:         rec.Op,
			ChatID:     rec.ChatID,
			MessageID:  rec.MessageID,
			Ack:        rec.Ack,
			Outcome:    string(rec.Outcome),
			Error:      rec.Error,
			Phases:     rec.Phases,
			Started:    rec.Started,
			DurationMs: rec.Duration.Milliseconds(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dispatches": out})
}
