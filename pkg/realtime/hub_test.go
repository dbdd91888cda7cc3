package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"loanportal/pkg/domain"
)

func dialHub(t *testing.T, srv *httptest.Server, user string, admin bool, tables ...string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	if admin {
		url += "&admin=1"
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.WriteJSON(clientMessage{Action: "subscribe", Tables: tables}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var ack serverMessage
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != "subscribed" {
		t.Fatalf("expected subscribe ack, got %+v err=%v", ack, err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) ChangeEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestHubScopesEventsToOwner(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := domain.Identity{UserID: r.URL.Query().Get("user"), Role: domain.RoleUser}
		if r.URL.Query().Get("admin") == "1" {
			id.Role = domain.RoleAdmin
		}
		hub.ServeWS(w, r, id)
	}))
	defer srv.Close()

	owner := dialHub(t, srv, "u1", false, TableDocuments)
	admin := dialHub(t, srv, "ops", true, TableDocuments)

	hub.Dispatch(ChangeEvent{Table: TableNotifications, Type: EventInsert, UserID: "u1"})
	hub.Dispatch(ChangeEvent{Table: TableDocuments, Type: EventInsert, UserID: "u2", Record: map[string]string{"id": "d2"}})
	hub.Dispatch(ChangeEvent{Table: TableDocuments, Type: EventDelete, UserID: "u1", Record: map[string]string{"id": "d1"}})

	if ev := readEvent(t, owner); ev.Type != EventDelete || ev.UserID != "u1" {
		t.Fatalf("owner got %+v", ev)
	}
	if ev := readEvent(t, admin); ev.UserID != "u2" {
		t.Fatalf("admin first event %+v", ev)
	}
	if ev := readEvent(t, admin); ev.UserID != "u1" {
		t.Fatalf("admin second event %+v", ev)
	}
}

func TestLocalBrokerDeliversUntilCancelled(t *testing.T) {
	b := NewLocalBroker()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan ChangeEvent, 2)
	if err := b.Subscribe(ctx, func(ev ChangeEvent) { got <- ev }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = b.Publish(context.Background(), ChangeEvent{Table: TableDocuments, Type: EventInsert})
	select {
	case ev := <-got:
		if ev.At.IsZero() {
			t.Fatalf("publish should stamp the event time")
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for {
		b.mu.RLock()
		n := len(b.handlers)
		b.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("handler not removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestVisibleAndProgress(t *testing.T) {
	ev := ChangeEvent{Table: TableDocuments, UserID: "u1"}
	if !Visible(ev, domain.Identity{UserID: "u1"}) || Visible(ev, domain.Identity{UserID: "u2"}) {
		t.Fatalf("unexpected visibility for owner scoping")
	}
	if !Visible(ev, domain.Identity{UserID: "x", IsAdmin: true}) {
		t.Fatalf("admins see every event")
	}
	if Visible(ChangeEvent{Table: TableDocuments}, domain.Identity{}) {
		t.Fatalf("unowned events are admin only")
	}
	if p := NewUploadProgress("k", 512, 1024); p.Percent != 50 {
		t.Fatalf("percent = %d", p.Percent)
	}
	if p := NewUploadProgress("k", 10, 0); p.Percent != 0 {
		t.Fatalf("zero total percent = %d", p.Percent)
	}
}
