package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"loanportal/internal/util"
	"loanportal/pkg/domain"
	"loanportal/pkg/realtime"
	"loanportal/pkg/store"
	"loanportal/pkg/textutil"
)

const (
	maxMessageLength = 4000
	defaultListLimit = 50
	maxListLimit     = 200
)

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (a *App) ListNotifications(_ context.Context, id domain.Identity, limit int) ([]domain.Notification, int64, error) {
	if err := requireIdentity(id); err != nil {
		return nil, 0, err
	}
	items, err := a.store.ListNotifications(id.UserID, listLimit(limit))
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := a.store.UnreadNotificationCount(id.UserID)
	if err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, unread, nil
}

func (a *App) MarkNotificationRead(ctx context.Context, id domain.Identity, notificationID string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	if err := a.store.MarkNotificationRead(id.UserID, notificationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("mark notification: %w", err)
	}
	a.publish(ctx, realtime.TableNotifications, realtime.EventUpdate, id.UserID, map[string]any{"id": notificationID, "read": true})
	return nil
}

func (a *App) MarkAllNotificationsRead(ctx context.Context, id domain.Identity) (int64, error) {
	if err := requireIdentity(id); err != nil {
		return 0, err
	}
	n, err := a.store.MarkAllNotificationsRead(id.UserID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications: %w", err)
	}
	if n > 0 {
		a.publish(ctx, realtime.TableNotifications, realtime.EventUpdate, id.UserID, map[string]any{"read": true, "count": n})
	}
	return n, nil
}

// SendMessage appends to a support thread. Customers always write to their
// own thread; admins must name the customer and the customer is notified.
func (a *App) SendMessage(ctx context.Context, id domain.Identity, threadUserID, content string) (domain.Message, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Message{}, err
	}
	content = textutil.StripHTML(content)
	if content == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	if len(content) > maxMessageLength {
		return domain.Message{}, invalid("message must be at most %d characters", maxMessageLength)
	}
	fromAdmin := id.Admin() && strings.TrimSpace(threadUserID) != "" && threadUserID != id.UserID
	if !fromAdmin {
		threadUserID = id.UserID
	}
	msg := domain.Message{
		ID:        util.NewEntityID(),
		UserID:    threadUserID,
		SenderID:  id.UserID,
		IsAdmin:   fromAdmin,
		Content:   content,
		CreatedAt: a.timestamp(),
	}
	if app, ok, err := a.store.GetApplicationByUser(threadUserID); err == nil && ok {
		msg.ApplicationID = app.ID
	}
	if err := a.store.CreateMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	a.publish(ctx, realtime.TableMessages, realtime.EventInsert, threadUserID, msg)
	if fromAdmin {
		a.notify(ctx, threadUserID, "New Message", "You have a new message from your loan specialist.")
	}
	return msg, nil
}

// ListMessages returns a thread. Admins may read any customer's thread.
func (a *App) ListMessages(_ context.Context, id domain.Identity, threadUserID string, limit int) ([]domain.Message, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(threadUserID) == "" {
		threadUserID = id.UserID
	}
	if threadUserID != id.UserID && !id.Admin() {
		return nil, ErrRestricted
	}
	return a.store.ListMessages(threadUserID, listLimit(limit))
}

// MarkMessagesRead marks the other side's messages in a thread as read.
func (a *App) MarkMessagesRead(ctx context.Context, id domain.Identity, threadUserID string) (int64, error) {
	if err := requireIdentity(id); err != nil {
		return 0, err
	}
	fromAdmin := true
	if id.Admin() && strings.TrimSpace(threadUserID) != "" && threadUserID != id.UserID {
		fromAdmin = false
	} else {
		threadUserID = id.UserID
	}
	n, err := a.store.MarkMessagesRead(threadUserID, fromAdmin)
	if err != nil {
		return 0, fmt.Errorf("mark messages: %w", err)
	}
	if n > 0 {
		a.publish(ctx, realtime.TableMessages, realtime.EventUpdate, threadUserID, map[string]any{"userId": threadUserID, "read": true})
	}
	return n, nil
}

// RecentMessages is the admin inbox across all threads.
func (a *App) RecentMessages(_ context.Context, id domain.Identity, limit int) ([]domain.Message, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	return a.store.ListRecentMessages(listLimit(limit))
}

type TicketRequest struct {
	Subject  string `json:"subject" validate:"required,max=200"`
	Message  string `json:"message" validate:"required,max=4000"`
	Priority string `json:"priority" validate:"omitempty,oneof=low normal high"`
}

func (a *App) CreateTicket(ctx context.Context, id domain.Identity, req TicketRequest) (domain.SupportTicket, error) {
	if err := requireIdentity(id); err != nil {
		return domain.SupportTicket{}, err
	}
	if err := a.check(req); err != nil {
		return domain.SupportTicket{}, err
	}
	subject := textutil.StripHTML(req.Subject)
	body := textutil.StripHTML(req.Message)
	if subject == "" || body == "" {
		return domain.SupportTicket{}, invalid("subject and message are required")
	}
	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}
	now := a.timestamp()
	t := domain.SupportTicket{
		ID:        util.NewEntityID(),
		UserID:    id.UserID,
		Subject:   subject,
		Message:   body,
		Status:    domain.TicketOpen,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveTicket(t); err != nil {
		return domain.SupportTicket{}, fmt.Errorf("save ticket: %w", err)
	}
	a.log(ctx).Info("support ticket opened", "ticket_id", t.ID, "user_id", id.UserID, "priority", priority)
	a.publish(ctx, realtime.TableTickets, realtime.EventInsert, id.UserID, t)
	return t, nil
}

// ListTickets returns the caller's tickets, or every ticket for an admin.
func (a *App) ListTickets(_ context.Context, id domain.Identity, status domain.TicketStatus) ([]domain.SupportTicket, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	filter := store.TicketFilter{Status: status}
	if !id.Admin() {
		filter.UserID = id.UserID
	}
	return a.store.ListTickets(filter)
}

func (a *App) UpdateTicketStatus(ctx context.Context, id domain.Identity, ticketID string, status domain.TicketStatus) (domain.SupportTicket, error) {
	if err := requireAdmin(id); err != nil {
		return domain.SupportTicket{}, err
	}
	switch status {
	case domain.TicketOpen, domain.TicketInProgress, domain.TicketResolved, domain.TicketClosed:
	default:
		return domain.SupportTicket{}, ErrInvalidStatus
	}
	t, ok, err := a.store.GetTicket(ticketID)
	if err != nil {
		return domain.SupportTicket{}, fmt.Errorf("load ticket: %w", err)
	}
	if !ok {
		return domain.SupportTicket{}, ErrTicketNotFound
	}
	t.Status = status
	t.UpdatedAt = a.timestamp()
	if err := a.store.SaveTicket(t); err != nil {
		return domain.SupportTicket{}, fmt.Errorf("save ticket: %w", err)
	}
	a.publish(ctx, realtime.TableTickets, realtime.EventUpdate, t.UserID, t)
	if status == domain.TicketResolved {
		a.notify(ctx, t.UserID, "Support Ticket Resolved", fmt.Sprintf("Your request %q has been resolved.", t.Subject))
	}
	return t, nil
}
