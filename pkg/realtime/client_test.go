package realtime

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"loanportal/pkg/domain"
)

func registeredClient(h *Hub, buffer int) *client {
	c := &client{
		hub:      h,
		identity: domain.Identity{UserID: "user-1"},
		send:     make(chan []byte, buffer),
		tables:   map[string]bool{TableDocuments: true},
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func TestClientEnqueueAfterClose(t *testing.T) {
	h := NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := registeredClient(h, 1)

	if !c.enqueue([]byte("a")) {
		t.Fatalf("first enqueue should succeed")
	}
	if c.enqueue([]byte("b")) {
		t.Fatalf("enqueue on a full buffer should fail")
	}
	c.close()
	c.close()
	if c.enqueue([]byte("c")) {
		t.Fatalf("enqueue after close must report failure")
	}
	if h.ClientCount() != 0 {
		t.Fatalf("closed client still registered")
	}
}

func TestDispatchRacesClose(t *testing.T) {
	h := NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := registeredClient(h, 64)
	ev := ChangeEvent{Table: TableDocuments, Type: EventInsert, UserID: "user-1"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Dispatch(ev)
			}
		}()
	}
	c.close()
	wg.Wait()
	if !c.isClosed() {
		t.Fatalf("client should be closed")
	}
}
