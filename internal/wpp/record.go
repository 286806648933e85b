package wpp

import (
	"context"
	"time"
)

// Outcome classifies how a dispatch ended.
type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeRemoteFailed   Outcome = "remote_failed"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
	OutcomeNotAttempted   Outcome = "not_attempted"
)

// Record describes one finished send. Presence and typing calls are not
// recorded.
type Record struct {
	DispatchID string
	Session    string
	Op         string
	ChatID     string
	MessageID  string
	Ack        Ack
	Outcome    Outcome
	Error      string
	Phases     int
	Started    time.Time
	Duration   time.Duration
}

// Recorder observes finished sends. Implementations must be safe for
// concurrent use and must not block for long; errors are theirs to log.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, rec Record)

func (f RecorderFunc) Record(ctx context.Context, rec Record) { f(ctx, rec) }
