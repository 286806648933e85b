package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wppbot/internal/wpp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func baseRecord(outcome wpp.Outcome) wpp.Record {
	return wpp.Record{
		DispatchID: "d-1",
		Session:    "default",
		Op:         "send_text",
		ChatID:     "5511999999999@c.us",
		MessageID:  "true_5511999999999@c.us_ABC",
		Ack:        wpp.AckServer,
		Outcome:    outcome,
		Phases:     1,
		Started:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:   250 * time.Millisecond,
	}
}

func TestFromRecord_Statuses(t *testing.T) {
	tests := []struct {
		outcome wpp.Outcome
		status  Status
		hasErr  bool
	}{
		{wpp.OutcomeSent, StatusSent, false},
		{wpp.OutcomeNotAttempted, StatusRejected, true},
		{wpp.OutcomeRemoteFailed, StatusFailed, true},
		{wpp.OutcomeDispatchFailed, StatusFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			rec := baseRecord(tt.outcome)
			if tt.hasErr {
				rec.Error = "boom"
			}
			r := FromRecord(rec)
			assert.Equal(t, tt.status, r.Status)
			require.NoError(t, r.Validate())
			if tt.hasErr {
				require.NotNil(t, r.Error)
				assert.Equal(t, string(tt.outcome), r.Error.Code)
				assert.Equal(t, "boom", r.Error.Details)
			} else {
				assert.Nil(t, r.Error)
			}
		})
	}
}

func TestFromRecord_Fields(t *testing.T) {
	r := FromRecord(baseRecord(wpp.OutcomeSent))
	assert.Equal(t, "d-1", r.DispatchID)
	assert.Equal(t, 1, r.Ack)
	assert.EqualValues(t, 250, r.DurationMs)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 250_000_000, time.UTC), r.At)

	body, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"error"`)
	assert.Contains(t, string(body), `"status":"sent"`)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Receipt{Status: StatusSent}.Validate())
	assert.Error(t, Receipt{DispatchID: "x", Status: "delivered"}.Validate())
	assert.Error(t, Receipt{DispatchID: "x", Status: StatusFailed}.Validate())
	assert.Error(t, Receipt{DispatchID: "x", Status: StatusSent, Error: &Error{Code: "c"}}.Validate())
	assert.NoError(t, Receipt{DispatchID: "x", Status: StatusRejected, Error: &Error{Code: "c"}}.Validate())
}

func TestRoutingKey(t *testing.T) {
	r := Receipt{Status: StatusFailed}
	assert.Equal(t, "chat.receipt.failed", r.RoutingKey("chat.receipt"))
	assert.Equal(t, "failed", r.RoutingKey(""))
}

type fakePublisher struct {
	mu     sync.Mutex
	keys   []string
	sent   []Receipt
	err    error
	closed bool
}

func (f *fakePublisher) Publish(_ context.Context, key string, r Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.sent = append(f.sent, r)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestRecorder_PublishesAndDrainsOnClose(t *testing.T) {
	pub := &fakePublisher{}
	rec := NewRecorder(pub, RecorderConfig{RoutingKey: "chat.receipt", Logger: testLogger()})

	rec.Record(context.Background(), baseRecord(wpp.OutcomeSent))
	failed := baseRecord(wpp.OutcomeRemoteFailed)
	failed.DispatchID, failed.Error = "d-2", "chat not found"
	rec.Record(context.Background(), failed)

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.True(t, pub.closed)
	assert.Equal(t, []string{"chat.receipt.sent", "chat.receipt.failed"}, pub.keys)
	assert.Equal(t, "d-2", pub.sent[1].DispatchID)
}

func TestRecorder_DropsInvalid(t *testing.T) {
	pub := &fakePublisher{}
	rec := NewRecorder(pub, RecorderConfig{Logger: testLogger()})

	bad := baseRecord(wpp.OutcomeSent)
	bad.DispatchID = ""
	rec.Record(context.Background(), bad)
	require.NoError(t, rec.Close())

	assert.Empty(t, pub.sent)
}

func TestRecorder_RecordAfterCloseIsDropped(t *testing.T) {
	pub := &fakePublisher{}
	rec := NewRecorder(pub, RecorderConfig{Logger: testLogger()})
	require.NoError(t, rec.Close())

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), baseRecord(wpp.OutcomeSent))
	})
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Empty(t, pub.sent)
}

func TestRecorder_ConcurrentRecordAndClose(t *testing.T) {
	pub := &fakePublisher{}
	rec := NewRecorder(pub, RecorderConfig{Logger: testLogger()})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec.Record(context.Background(), baseRecord(wpp.OutcomeSent))
			}
		}()
	}
	require.NoError(t, rec.Close())
	wg.Wait()
}

func TestRecorder_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	rec := NewRecorder(pub, RecorderConfig{Logger: testLogger()})

	rec.Record(context.Background(), baseRecord(wpp.OutcomeSent))
	require.NoError(t, rec.Close())
	assert.Len(t, pub.sent, 1)
}

type blockingPublisher struct {
	fakePublisher
	release chan struct{}
}

func (b *blockingPublisher) Publish(ctx context.Context, key string, r Receipt) error {
	<-b.release
	return b.fakePublisher.Publish(ctx, key, r)
}

func TestRecorder_FullQueueDoesNotBlock(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	rec := NewRecorder(pub, RecorderConfig{QueueSize: 1, Logger: testLogger()})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			rec.Record(context.Background(), baseRecord(wpp.OutcomeSent))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(pub.release)
	require.NoError(t, rec.Close())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.LessOrEqual(t, len(pub.sent), 2)
	assert.GreaterOrEqual(t, len(pub.sent), 1)
}
