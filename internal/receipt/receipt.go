// Package receipt publishes a delivery receipt for every send a Sender
// finishes, to a RabbitMQ topic exchange or an HMAC-signed HTTP webhook.
package receipt

import (
	"errors"
	"strings"
	"time"

	"wppbot/internal/wpp"
)

type Status string

const (
	StatusSent     Status = "sent"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Receipt is the JSON body published per dispatch.
type Receipt struct {
	DispatchID string    `json:"dispatch_id"`
	Session    string    `json:"session"`
	Op         string    `json:"op"`
	ChatID     string    `json:"chat_id"`
	MessageID  string    `json:"message_id,omitempty"`
	Ack        int       `json:"ack"`
	Status     Status    `json:"status"`
	At         time.Time `json:"at"`
	DurationMs int64     `json:"duration_ms"`

	// Set for rejected and failed only.
	Error *Error `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// FromRecord maps a finished dispatch to its receipt. Local validation
// failures become rejected, remote and transport failures become failed.
func FromRecord(rec wpp.Record) Receipt {
	r := Receipt{
		DispatchID: rec.DispatchID,
		Session:    rec.Session,
		Op:         rec.Op,
		ChatID:     rec.ChatID,
		MessageID:  rec.MessageID,
		Ack:        int(rec.Ack),
		At:         rec.Started.Add(rec.Duration).UTC(),
		DurationMs: rec.Duration.Milliseconds(),
	}
	switch rec.Outcome {
	case wpp.OutcomeSent:
		r.Status = StatusSent
	case wpp.OutcomeNotAttempted:
		r.Status = StatusRejected
		r.Error = &Error{Code: string(rec.Outcome), Details: rec.Error}
	default:
		r.Status = StatusFailed
		r.Error = &Error{Code: string(rec.Outcome), Details: rec.Error}
	}
	return r
}

// Validate rejects receipts that downstream consumers could not correlate.
func (r Receipt) Validate() error {
	var issues []string
	if r.DispatchID == "" {
		issues = append(issues, "dispatch_id required")
	}
	switch r.Status {
	case StatusSent:
		if r.Error != nil {
			issues = append(issues, "error must be empty for sent")
		}
	case StatusRejected, StatusFailed:
		if r.Error == nil || r.Error.Code == "" {
			issues = append(issues, "error.code required for "+string(r.Status))
		}
	default:
		issues = append(issues, "unknown status "+string(r.Status))
	}
	if len(issues) > 0 {
		return errors.New("invalid receipt: " + strings.Join(issues, "; "))
	}
	return nil
}

// RoutingKey appends the status to base, e.g. chat.receipt.sent.
func (r Receipt) RoutingKey(base string) string {
	if base == "" {
		return string(r.Status)
	}
	return base + "." + string(r.Status)
}
