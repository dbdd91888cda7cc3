package app

import (
	"context"
	"errors"
	"testing"

	"loanportal/pkg/domain"
	"loanportal/pkg/realtime"
)

func TestMessagingThread(t *testing.T) {
	env := newTestEnv(t)
	app := env.application(t, owner)
	before := len(env.notifications(t, owner.UserID))

	sent, err := env.app.SendMessage(context.Background(), owner, "someone-else", "When will I hear back?")
	if err != nil {
		t.Fatalf("user message: %v", err)
	}
	if sent.UserID != owner.UserID || sent.IsAdmin || sent.ApplicationID != app.ID {
		t.Fatalf("user messages always land in their own thread: %+v", sent)
	}
	if got := len(env.notifications(t, owner.UserID)); got != before {
		t.Fatalf("user message must not notify")
	}

	reply, err := env.app.SendMessage(context.Background(), admin, owner.UserID, "<p>Tomorrow morning.</p>")
	if err != nil {
		t.Fatalf("admin message: %v", err)
	}
	if !reply.IsAdmin || reply.Content != "Tomorrow morning." || reply.SenderID != admin.UserID {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if !env.hasNotification(t, owner.UserID, "New Message", "loan specialist") {
		t.Fatalf("admin message must notify the customer")
	}
	if env.events.count(realtime.TableMessages, realtime.EventInsert) != 2 {
		t.Fatalf("expected two message INSERT events")
	}

	thread, err := env.app.ListMessages(context.Background(), owner, "", 0)
	if err != nil || len(thread) != 2 {
		t.Fatalf("thread: %d %v", len(thread), err)
	}
	if _, err := env.app.ListMessages(context.Background(), stranger, owner.UserID, 0); !errors.Is(err, ErrRestricted) {
		t.Fatalf("expected ErrRestricted, got %v", err)
	}
	if n, err := env.app.MarkMessagesRead(context.Background(), owner, ""); err != nil || n != 1 {
		t.Fatalf("owner mark read: %d %v", n, err)
	}
	if n, err := env.app.MarkMessagesRead(context.Background(), admin, owner.UserID); err != nil || n != 1 {
		t.Fatalf("admin mark read: %d %v", n, err)
	}
	recent, err := env.app.RecentMessages(context.Background(), admin, 10)
	if err != nil || len(recent) != 2 {
		t.Fatalf("recent: %d %v", len(recent), err)
	}
	if _, err := env.app.RecentMessages(context.Background(), owner, 10); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired, got %v", err)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	env := newTestEnv(t)
	for _, content := range []string{"", "  ", "<br/>"} {
		if _, err := env.app.SendMessage(context.Background(), owner, "", content); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("content %q: expected ErrEmptyMessage, got %v", content, err)
		}
	}
}

func TestNotificationsReadState(t *testing.T) {
	env := newTestEnv(t)
	uploadedDocument(t, env)

	items, unread, err := env.app.ListNotifications(context.Background(), owner, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || unread != 2 {
		t.Fatalf("items=%d unread=%d", len(items), unread)
	}
	if err := env.app.MarkNotificationRead(context.Background(), stranger, items[0].ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound for another user, got %v", err)
	}
	if err := env.app.MarkNotificationRead(context.Background(), owner, items[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	n, err := env.app.MarkAllNotificationsRead(context.Background(), owner)
	if err != nil || n != 1 {
		t.Fatalf("mark all: %d %v", n, err)
	}
	if _, unread, _ = env.app.ListNotifications(context.Background(), owner, 0); unread != 0 {
		t.Fatalf("unread = %d", unread)
	}
}

func TestSupportTickets(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.app.CreateTicket(context.Background(), owner, TicketRequest{Subject: "Help", Message: "x", Priority: "urgent"}); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	ticket, err := env.app.CreateTicket(context.Background(), owner, TicketRequest{Subject: "Login trouble", Message: "Cannot reset my password"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != domain.TicketOpen || ticket.Priority != "normal" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if _, err := env.app.CreateTicket(context.Background(), stranger, TicketRequest{Subject: "Rates", Message: "What is the APR?", Priority: "low"}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	mine, err := env.app.ListTickets(context.Background(), owner, "")
	if err != nil || len(mine) != 1 {
		t.Fatalf("own tickets: %d %v", len(mine), err)
	}
	all, err := env.app.ListTickets(context.Background(), admin, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("all tickets: %d %v", len(all), err)
	}

	if _, err := env.app.UpdateTicketStatus(context.Background(), owner, ticket.ID, domain.TicketClosed); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired, got %v", err)
	}
	if _, err := env.app.UpdateTicketStatus(context.Background(), admin, ticket.ID, "escalated"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := env.app.UpdateTicketStatus(context.Background(), admin, "missing", domain.TicketClosed); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
	resolved, err := env.app.UpdateTicketStatus(context.Background(), admin, ticket.ID, domain.TicketResolved)
	if err != nil || resolved.Status != domain.TicketResolved {
		t.Fatalf("resolve: %+v %v", resolved, err)
	}
	if !env.hasNotification(t, owner.UserID, "Support Ticket Resolved", "Login trouble") {
		t.Fatalf("resolution notification missing")
	}
}
