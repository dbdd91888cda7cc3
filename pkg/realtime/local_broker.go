package realtime

import (
	"context"
	"sync"
	"time"
)

// LocalBroker delivers events within the process. It is used when no
// RabbitMQ URL is configured and in tests.
type LocalBroker struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(ChangeEvent)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{handlers: make(map[int]func(ChangeEvent))}
}

func (b *LocalBroker) Publish(_ context.Context, ev ChangeEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	handlers := make([]func(ChangeEvent), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, handler func(ChangeEvent)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	b.handlers = make(map[int]func(ChangeEvent))
	b.mu.Unlock()
	return nil
}
