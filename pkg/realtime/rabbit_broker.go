package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultExchange = "loanportal.changes"
	maxBackoff      = 30 * time.Second
)

// RabbitBroker publishes events to a fanout exchange. Every subscriber binds
// its own exclusive queue, so each portal instance sees every event.
type RabbitBroker struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	pubCh   *amqp.Channel
	closed  bool
	closeCh chan struct{}
}

func NewRabbitBroker(url, exchange string, logger *slog.Logger) (*RabbitBroker, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("rabbitmq url required")
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = defaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &RabbitBroker{url: url, exchange: exchange, logger: logger, closeCh: make(chan struct{})}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.connectLocked(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *RabbitBroker) connectLocked() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, b.exchange); err != nil {
		_ = conn.Close()
		return err
	}
	b.conn, b.pubCh = conn, ch
	return nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// Publish sends ev, reconnecting once if the channel was lost.
func (b *RabbitBroker) Publish(ctx context.Context, ev ChangeEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   ev.At,
		Body:        body,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("broker closed")
	}
	if b.pubCh == nil || b.pubCh.IsClosed() {
		if b.conn != nil {
			_ = b.conn.Close()
		}
		if err := b.connectLocked(); err != nil {
			return err
		}
	}
	return b.pubCh.PublishWithContext(ctx, b.exchange, "", false, false, msg)
}

// Subscribe binds an exclusive queue and consumes it in the background,
// redialling with backoff when the connection drops.
func (b *RabbitBroker) Subscribe(ctx context.Context, handler func(ChangeEvent)) error {
	deliveries, conn, err := b.bind()
	if err != nil {
		return err
	}
	go func() {
		backoff := time.Second
		for {
			b.drain(ctx, deliveries, handler)
			_ = conn.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case <-b.closeCh:
					return
				case <-time.After(backoff):
				}
				deliveries, conn, err = b.bind()
				if err == nil {
					backoff = time.Second
					break
				}
				b.logger.Warn("realtime subscriber reconnect failed", "err", err, "retry_in", backoff.String())
				if backoff < maxBackoff {
					backoff *= 2
				}
			}
		}
	}()
	return nil
}

func (b *RabbitBroker) bind() (<-chan amqp.Delivery, *amqp.Connection, error) {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, b.exchange); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, conn, nil
}

func (b *RabbitBroker) drain(ctx context.Context, deliveries <-chan amqp.Delivery, handler func(ChangeEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closeCh:
			return
		case d, ok := <-deliveries:
			if !ok {
				b.logger.Warn("realtime deliveries closed")
				return
			}
			var ev ChangeEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				b.logger.Warn("realtime event decode failed", "err", err)
				continue
			}
			handler(ev)
		}
	}
}

func (b *RabbitBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.closeCh)
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
