package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"wppbot/internal/wpp"
)

type Publisher interface {
	Publish(ctx context.Context, key string, r Receipt) error
	Close() error
}

type rmqPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger
}

// Dial connects to RabbitMQ and declares exchange as a durable topic
// exchange.
func Dial(url, exchange string, logger *slog.Logger) (Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &rmqPublisher{conn: conn, exchange: exchange, logger: logger}, nil
}

func (p *rmqPublisher) Publish(ctx context.Context, key string, r Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	cid := r.DispatchID
	if cid == "" {
		cid = uuid.NewString()
	}
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: cid,
		Type:          "wppbot.receipt.v1",
		AppId:         "wppbot",
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err == nil {
		p.logger.Debug("receipt published", "key", key, "exchange", p.exchange, "dispatch_id", r.DispatchID)
	}
	return err
}

func (p *rmqPublisher) Close() error {
	return p.conn.Close()
}

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// Recorder hands receipts to a Publisher from a background goroutine so a
// slow broker never stalls a send. When the queue is full receipts are
// dropped and logged.
type Recorder struct {
	pub        Publisher
	routingKey string
	timeout    time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Receipt
	wg     sync.WaitGroup
	once   sync.Once
}

var _ wpp.Recorder = (*Recorder)(nil)

type RecorderConfig struct {
	RoutingKey string
	QueueSize  int
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewRecorder(pub Publisher, cfg RecorderConfig) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Recorder{
		pub:        pub,
		routingKey: cfg.RoutingKey,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger.With("component", "receipts"),
		queue:      make(chan Receipt, cfg.QueueSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) Record(_ context.Context, rec wpp.Record) {
	rc := FromRecord(rec)
	if err := rc.Validate(); err != nil {
		r.logger.Warn("receipt dropped", "dispatch_id", rec.DispatchID, "err", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("receipt recorder closed, dropping", "dispatch_id", rec.DispatchID)
		return
	}
	select {
	case r.queue <- rc:
	default:
		r.logger.Warn("receipt queue full, dropping", "dispatch_id", rec.DispatchID)
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for rc := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.pub.Publish(ctx, rc.RoutingKey(r.routingKey), rc); err != nil {
			r.logger.Error("receipt publish failed", "dispatch_id", rc.DispatchID, "err", err)
		}
		cancel()
	}
}

// Close drains queued receipts and closes the publisher. Receipts recorded
// after Close are dropped.
func (r *Recorder) Close() error {
	var err error
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()

		r.wg.Wait()
		err = r.pub.Close()
	})
	return err
}
