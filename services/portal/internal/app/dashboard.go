package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"loanportal/pkg/domain"
	"loanportal/pkg/lifecycle"
)

const (
	dashboardNotificationLimit = 20
	dashboardMessageLimit      = 50
)

// Dashboard is everything the customer home screen renders.
type Dashboard struct {
	Application   domain.Application        `json:"application"`
	Stage         lifecycle.View            `json:"stage"`
	Documents     []DocumentGroup           `json:"documents"`
	Notifications []domain.Notification     `json:"notifications"`
	UnreadCount   int64                     `json:"unreadCount"`
	Messages      []domain.Message          `json:"messages"`
	Timeline      []domain.ApplicationStage `json:"timeline"`
	Appointments  []domain.Appointment      `json:"appointments"`
}

// Dashboard loads the caller's application, creating it on first visit,
// together with the rest of the home screen.
func (a *App) Dashboard(ctx context.Context, id domain.Identity) (Dashboard, error) {
	app, err := a.EnsureApplication(ctx, id)
	if err != nil {
		return Dashboard{}, err
	}
	out := Dashboard{Application: app, Stage: lifecycle.Describe(app)}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := a.store.ListDocuments(app.ID)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		out.Documents = GroupDocuments(docs)
		return nil
	})
	g.Go(func() error {
		items, err := a.store.ListNotifications(id.UserID, dashboardNotificationLimit)
		if err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}
		out.Notifications = items
		return nil
	})
	g.Go(func() error {
		n, err := a.store.UnreadNotificationCount(id.UserID)
		if err != nil {
			return fmt.Errorf("count notifications: %w", err)
		}
		out.UnreadCount = n
		return nil
	})
	g.Go(func() error {
		msgs, err := a.store.ListMessages(id.UserID, dashboardMessageLimit)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		out.Messages = msgs
		return nil
	})
	g.Go(func() error {
		stages, err := a.store.ListStages(app.ID)
		if err != nil {
			return fmt.Errorf("list stages: %w", err)
		}
		out.Timeline = stages
		return nil
	})
	g.Go(func() error {
		appts, err := a.store.ListAppointments(id.UserID)
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		out.Appointments = appts
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}
