package wpp

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Ack is the delivery status reported by the page.
type Ack int

const (
	AckError   Ack = -1
	AckPending Ack = 0
	AckServer  Ack = 1
	AckDevice  Ack = 2
	AckRead    Ack = 3
	AckPlayed  Ack = 4
)

func (a Ack) String() string {
	switch a {
	case AckError:
		return "error"
	case AckPending:
		return "pending"
	case AckServer:
		return "server"
	case AckDevice:
		return "device"
	case AckRead:
		return "read"
	case AckPlayed:
		return "played"
	default:
		return fmt.Sprintf("ack(%d)", int(a))
	}
}

// Envelope is the uniform outcome of every send. An empty Error means the
// page accepted the message.
type Envelope struct {
	Ack           Ack             `json:"ack"`
	ID            string          `json:"id"`
	SendMsgResult json.RawMessage `json:"sendMsgResult,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Failed reports whether the page rejected the send.
func (e *Envelope) Failed() bool { return e.Error != "" }

// ResultKind tags the shape a raw page result arrived in.
type ResultKind int

const (
	KindEmpty ResultKind = iota
	KindFull
	KindID
	KindFailed
)

func (k ResultKind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindID:
		return "id"
	case KindFailed:
		return "failed"
	default:
		return "empty"
	}
}

// RawResult is a page result after classification. Only the field matching
// Kind is meaningful.
type RawResult struct {
	Kind     ResultKind
	Envelope Envelope // KindFull
	ID       string   // KindID
	Reason   string   // KindFailed
}

// Classify decides which shape raw has by looking at the fields present.
func Classify(raw json.RawMessage) RawResult {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return RawResult{Kind: KindEmpty}
	}
	r := gjson.ParseBytes(raw)

	switch {
	case r.Type == gjson.String:
		if r.Str == "" {
			return RawResult{Kind: KindEmpty}
		}
		return RawResult{Kind: KindID, ID: r.Str}
	case !r.IsObject():
		return RawResult{Kind: KindEmpty}
	}

	id := messageIDOf(r.Get("id"))
	reason := errorOf(r)

	if id == "" {
		if reason != "" {
			return RawResult{Kind: KindFailed, Reason: reason}
		}
		if !r.Get("ack").Exists() {
			return RawResult{Kind: KindEmpty}
		}
	}

	env := Envelope{
		Ack:   Ack(r.Get("ack").Int()),
		ID:    id,
		Error: reason,
	}
	if v := r.Get("sendMsgResult"); v.Exists() && v.Type != gjson.Null {
		env.SendMsgResult = json.RawMessage(v.Raw)
	}
	if env.Error != "" {
		env.Ack = AckError
	}
	return RawResult{Kind: KindFull, Envelope: env}
}

// Normalize maps a classified result to the caller-facing envelope.
func Normalize(rr RawResult) *Envelope {
	switch rr.Kind {
	case KindFull:
		env := rr.Envelope
		return &env
	case KindID:
		return &Envelope{Ack: AckPending, ID: rr.ID}
	case KindFailed:
		return &Envelope{Ack: AckError, Error: rr.Reason}
	default:
		return &Envelope{Ack: AckError, Error: ErrMissingID.Error()}
	}
}

// messageIDOf reads a message id that is either a plain string or a
// serialized id object.
func messageIDOf(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.Str
	case v.IsObject():
		return v.Get("_serialized").String()
	default:
		return ""
	}
}

func errorOf(r gjson.Result) string {
	for _, key := range []string{"error", "message"} {
		v := r.Get(key)
		switch {
		case v.Type == gjson.String && v.Str != "":
			return v.Str
		case v.IsObject():
			if m := v.Get("message").String(); m != "" {
				return m
			}
			return v.Raw
		}
	}
	return ""
}

// Message is a full message record read back from the page store.
type Message struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chatId,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Type      string          `json:"type,omitempty"`
	Body      string          `json:"body,omitempty"`
	Timestamp int64           `json:"t,omitempty"`
	Ack       Ack             `json:"ack"`
	FromMe    bool            `json:"fromMe"`
	Error     string          `json:"error,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// ParseMessage decodes a record returned by fetch-by-id. A null record
// yields nil.
func ParseMessage(raw json.RawMessage) *Message {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return nil
	}
	return &Message{
		ID:        messageIDOf(r.Get("id")),
		ChatID:    messageIDOf(r.Get("chatId")),
		From:      messageIDOf(r.Get("from")),
		To:        messageIDOf(r.Get("to")),
		Type:      r.Get("type").String(),
		Body:      r.Get("body").String(),
		Timestamp: r.Get("t").Int(),
		Ack:       Ack(r.Get("ack").Int()),
		FromMe:    r.Get("fromMe").Bool() || r.Get("id.fromMe").Bool(),
		Raw:       raw,
	}
}
