// Package wpp dispatches chat sends into a WhatsApp Web page through an
// Executor and normalizes what the page hands back.
package wpp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is the per-session diagnostics handle. It is read-only once the
// sender is built.
type Session struct {
	Name   string
	Logger *slog.Logger
}

// Sender turns typed send calls into page round trips. It holds no mutable
// state and is safe for concurrent use.
type Sender struct {
	exec      Executor
	session   string
	logger    *slog.Logger
	recorders []Recorder
}

type SenderConfig struct {
	Executor  Executor
	Session   Session
	Recorders []Recorder
}

func NewSender(cfg SenderConfig) *Sender {
	logger := cfg.Session.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Session.Name
	if name == "" {
		name = "default"
	}
	return &Sender{
		exec:      cfg.Executor,
		session:   name,
		logger:    logger.With("session", name),
		recorders: cfg.Recorders,
	}
}

// SessionName returns the session this sender dispatches for.
func (s *Sender) SessionName() string { return s.session }

// TextOptions are passed through to WPP.chat.sendTextMessage.
type TextOptions map[string]any

// SendText sends a text message and waits for the page to ack it.
func (s *Sender) SendText(ctx context.Context, to, content string, opts TextOptions) (*Envelope, error) {
	if opts == nil {
		opts = TextOptions{}
	}
	to = NormalizeChatID(to)
	return s.sendSingle(ctx, "send_text", to, ScriptSendText, map[string]any{
		"to":      to,
		"content": content,
		"options": opts,
	})
}

// SendLinkPreview sends url with a generated link preview. text is prepended
// unless it already contains url.
func (s *Sender) SendLinkPreview(ctx context.Context, chatID, url, text string) (*Message, error) {
	message := text
	if !strings.Contains(text, url) {
		message = text + "\n" + url
	}
	chatID = NormalizeChatID(chatID)
	return s.sendTwoPhase(ctx, "send_link_preview", chatID, ScriptSendText, map[string]any{
		"to":      chatID,
		"content": message,
		"options": TextOptions{"linkPreview": true},
	})
}

// SendMessageOptions sends content with raw wa-js send options and reads the
// created message back.
func (s *Sender) SendMessageOptions(ctx context.Context, chat, content string, opts map[string]any) (*Message, error) {
	if opts == nil {
		opts = map[string]any{}
	}
	chat = NormalizeChatID(chat)
	return s.sendTwoPhase(ctx, "send_message_options", chat, ScriptSendMessageOptions, map[string]any{
		"chat":    chat,
		"content": content,
		"options": opts,
	})
}

// Reply sends content quoting quotedMsgID and returns the stored record.
func (s *Sender) Reply(ctx context.Context, to, content, quotedMsgID string) (*Message, error) {
	to = NormalizeChatID(to)
	return s.sendTwoPhase(ctx, "reply", to, ScriptSendText, map[string]any{
		"to":      to,
		"content": content,
		"options": TextOptions{"quotedMsg": quotedMsgID},
	})
}

// ImageOptions are the optional parameters of an image send.
type ImageOptions struct {
	Filename        string
	Caption         string
	QuotedMessageID string
	ViewOnce        bool
}

// SendImage reads an image file and sends it. Non-image files are refused
// without touching the page.
func (s *Sender) SendImage(ctx context.Context, to, path string, opts ImageOptions) (*Envelope, error) {
	const op = "send_image"
	to = NormalizeChatID(to)

	att, err := EncodeFile(path)
	if err != nil {
		return nil, s.refuse(ctx, op, to, err)
	}
	if opts.Filename == "" {
		opts.Filename = att.Filename
	}
	return s.sendImageData(ctx, op, to, att.Data, opts)
}

// SendImageFromBase64 sends an already encoded data URI as an image.
func (s *Sender) SendImageFromBase64(ctx context.Context, to, data string, opts ImageOptions) (*Envelope, error) {
	to = NormalizeChatID(to)
	return s.sendImageData(ctx, "send_image", to, data, opts)
}

func (s *Sender) sendImageData(ctx context.Context, op, to, data string, opts ImageOptions) (*Envelope, error) {
	mimeType := MimeTypeOf(data)
	if mimeType == "" {
		return nil, s.refuse(ctx, op, to, ErrUnknownMimeType)
	}
	if !IsImage(mimeType) {
		return nil, s.refuse(ctx, op, to, ErrNotAnImage)
	}

	options := map[string]any{
		"type":       "image",
		"isViewOnce": opts.ViewOnce,
		"filename":   opts.Filename,
		"caption":    opts.Caption,
	}
	if opts.QuotedMessageID != "" {
		options["quotedMsg"] = opts.QuotedMessageID
	}
	return s.sendSingle(ctx, op, to, ScriptSendFile, map[string]any{
		"to":      to,
		"base64":  data,
		"options": options,
	})
}

// SendFile sends a document. src is either a path or a data URI; name is
// either a bare filename with caption or a full options bag.
func (s *Sender) SendFile(ctx context.Context, to string, src FileSource, name FileNameOrOptions) (*Envelope, error) {
	const op = "send_file"
	to = NormalizeChatID(to)

	options := name.options()
	if options == nil {
		return nil, s.refuse(ctx, op, to, errors.New("filename or options required"))
	}

	var data string
	switch src.kind {
	case sourceEncoded:
		data = src.value
	case sourcePath:
		att, err := EncodeFile(src.value)
		if err != nil {
			return nil, s.refuse(ctx, op, to, err)
		}
		data = att.Data
		if fn, _ := options["filename"].(string); fn == "" {
			options["filename"] = filepath.Base(src.value)
		}
	}
	if data == "" {
		return nil, s.refuse(ctx, op, to, ErrEmptyAttachment)
	}
	if MimeTypeOf(data) == "" {
		return nil, s.refuse(ctx, op, to, ErrUnknownMimeType)
	}

	return s.sendSingle(ctx, op, to, ScriptSendFile, map[string]any{
		"to":      to,
		"base64":  data,
		"options": options,
	})
}

// Location is a pin with an optional title.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Title     string  `json:"title,omitempty" yaml:"title,omitempty"`
}

func (s *Sender) SendLocation(ctx context.Context, to string, loc Location) (*Envelope, error) {
	to = NormalizeChatID(to)
	return s.sendSingle(ctx, "send_location", to, ScriptSendLocation, map[string]any{
		"to": to,
		"options": map[string]any{
			"lat":   loc.Latitude,
			"lng":   loc.Longitude,
			"title": loc.Title,
		},
	})
}

// SendContactVcard sends one or more contact cards. A single contact is sent
// as a plain id, several as a list.
func (s *Sender) SendContactVcard(ctx context.Context, to string, contactsID []string, name string) (*Envelope, error) {
	to = NormalizeChatID(to)
	var ids any = contactsID
	if len(contactsID) == 1 {
		ids = contactsID[0]
	}
	return s.sendSingle(ctx, "send_vcard", to, ScriptSendVcard, map[string]any{
		"to":         to,
		"contactsId": ids,
		"name":       name,
	})
}

// ListRow is one selectable entry of a list message.
type ListRow struct {
	RowID       string `json:"rowId" yaml:"rowId"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type ListSection struct {
	Title string    `json:"title" yaml:"title"`
	Rows  []ListRow `json:"rows" yaml:"rows"`
}

// ListOptions mirrors the argument of WPP.chat.sendListMessage.
type ListOptions struct {
	ButtonText  string        `json:"buttonText" yaml:"buttonText"`
	Description string        `json:"description" yaml:"description"`
	Title       string        `json:"title,omitempty" yaml:"title,omitempty"`
	Footer      string        `json:"footer,omitempty" yaml:"footer,omitempty"`
	Sections    []ListSection `json:"sections" yaml:"sections"`
}

func (s *Sender) SendListMessage(ctx context.Context, to string, opts ListOptions) (*Message, error) {
	to = NormalizeChatID(to)
	return s.sendTwoPhase(ctx, "send_list", to, ScriptSendList, map[string]any{
		"to":      to,
		"options": opts,
	})
}

// ForwardMessages forwards messageIDs to a chat and returns whatever the
// page resolved with.
func (s *Sender) ForwardMessages(ctx context.Context, to string, messageIDs []string, skipMyMessages bool) (json.RawMessage, error) {
	to = NormalizeChatID(to)
	start := time.Now()
	raw, err := s.evaluate(ctx, ScriptForward, map[string]any{
		"to":             to,
		"messages":       messageIDs,
		"skipMyMessages": skipMyMessages,
	})
	rec := s.newRecord("forward", to, start)
	rec.Phases = 1
	if err != nil {
		rec.Outcome, rec.Error = OutcomeDispatchFailed, err.Error()
		s.record(ctx, rec)
		return nil, err
	}
	rec.Outcome = OutcomeSent
	s.record(ctx, rec)
	return raw, nil
}

// sendSingle runs a one round trip send and normalizes its result.
func (s *Sender) sendSingle(ctx context.Context, op, to string, script Script, arg map[string]any) (*Envelope, error) {
	start := time.Now()
	rec := s.newRecord(op, to, start)
	rec.Phases = 1

	raw, err := s.evaluate(ctx, script, arg)
	if err != nil {
		rec.Outcome, rec.Error = OutcomeDispatchFailed, err.Error()
		s.record(ctx, rec)
		return nil, err
	}

	env := Normalize(Classify(raw))
	rec.MessageID, rec.Ack, rec.Error = env.ID, env.Ack, env.Error
	if env.Failed() {
		rec.Outcome = OutcomeRemoteFailed
		s.logger.Warn("page reported send failure", "op", op, "to", to, "err", env.Error)
	} else {
		rec.Outcome = OutcomeSent
		s.logger.Debug("message sent", "op", op, "to", to, "id", env.ID, "ack", env.Ack)
	}
	s.record(ctx, rec)
	return env, nil
}

// sendTwoPhase sends, then reads the created message back by the id the
// first round trip produced.
func (s *Sender) sendTwoPhase(ctx context.Context, op, to string, script Script, arg map[string]any) (*Message, error) {
	start := time.Now()
	rec := s.newRecord(op, to, start)
	rec.Phases = 1

	raw, err := s.evaluate(ctx, script, arg)
	if err != nil {
		rec.Outcome, rec.Error = OutcomeDispatchFailed, err.Error()
		s.record(ctx, rec)
		return nil, err
	}

	first := Normalize(Classify(raw))
	if first.Failed() || first.ID == "" {
		reason := first.Error
		if reason == "" {
			reason = ErrMissingID.Error()
		}
		rec.Outcome, rec.Ack, rec.Error = OutcomeRemoteFailed, AckError, reason
		s.logger.Warn("page reported send failure", "op", op, "to", to, "err", reason)
		s.record(ctx, rec)
		return &Message{ID: first.ID, ChatID: to, Ack: AckError, Error: reason}, nil
	}

	rec.Phases = 2
	rec.MessageID = first.ID
	fetched, err := s.evaluate(ctx, ScriptFetchByID, first.ID)
	if err != nil {
		rec.Outcome, rec.Error = OutcomeDispatchFailed, err.Error()
		s.record(ctx, rec)
		return nil, err
	}

	msg := ParseMessage(fetched)
	if msg == nil {
		// Sent, but the store no longer has it.
		msg = &Message{ID: first.ID, ChatID: to, Ack: first.Ack, Error: "message " + first.ID + " not found"}
		rec.Outcome = OutcomeRemoteFailed
	} else {
		rec.Outcome = OutcomeSent
	}
	rec.Ack, rec.Error = msg.Ack, msg.Error
	s.logger.Debug("message fetched", "op", op, "to", to, "id", msg.ID, "ack", msg.Ack)
	s.record(ctx, rec)
	return msg, nil
}

func (s *Sender) evaluate(ctx context.Context, script Script, arg any) (json.RawMessage, error) {
	s.logger.Debug("evaluate", "script", script)
	raw, err := s.exec.Evaluate(ctx, script, arg)
	if err != nil {
		s.logger.Error("evaluate failed", "script", script, "err", err)
		return nil, &DispatchError{Script: script, Err: err}
	}
	return raw, nil
}

// refuse reports a local validation failure. The page is never called.
func (s *Sender) refuse(ctx context.Context, op, to string, cause error) error {
	err := notAttempted(op, cause)
	s.logger.Warn("send not attempted", "op", op, "to", to, "err", cause)
	rec := s.newRecord(op, to, time.Now())
	rec.Outcome, rec.Ack, rec.Error = OutcomeNotAttempted, AckError, cause.Error()
	s.record(ctx, rec)
	return err
}

func (s *Sender) newRecord(op, to string, start time.Time) Record {
	return Record{
		DispatchID: uuid.NewString(),
		Session:    s.session,
		Op:         op,
		ChatID:     to,
		Started:    start,
	}
}

func (s *Sender) record(ctx context.Context, rec Record) {
	rec.Duration = time.Since(rec.Started)
	for _, r := range s.recorders {
		r.Record(ctx, rec)
	}
}
