package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loanportal/internal/util"
	"loanportal/pkg/domain"
	"loanportal/pkg/realtime"
	"loanportal/pkg/store"
	"loanportal/pkg/textutil"
)

const (
	defaultAppointmentMinutes = 30
	reminderWindow            = 24 * time.Hour
)

type AppointmentRequest struct {
	ScheduledAt     time.Time `json:"scheduledAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"omitempty,min=15,max=120"`
	Topic           string    `json:"topic" validate:"required,max=200"`
	Notes           string    `json:"notes" validate:"max=2000"`
}

// ScheduleAppointment books a consultation for the caller.
func (a *App) ScheduleAppointment(ctx context.Context, id domain.Identity, req AppointmentRequest) (domain.Appointment, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Appointment{}, err
	}
	if err := a.check(req); err != nil {
		return domain.Appointment{}, err
	}
	now := a.timestamp()
	if !req.ScheduledAt.After(now) {
		return domain.Appointment{}, ErrAppointmentInPast
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = defaultAppointmentMinutes
	}
	appt := domain.Appointment{
		ID:              util.NewEntityID(),
		UserID:          id.UserID,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: duration,
		Topic:           textutil.StripHTML(req.Topic),
		Status:          domain.AppointmentScheduled,
		Notes:           textutil.StripHTML(req.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if app, ok, err := a.store.GetApplicationByUser(id.UserID); err == nil && ok {
		appt.ApplicationID = app.ID
	}
	if err := a.store.SaveAppointment(appt); err != nil {
		return domain.Appointment{}, fmt.Errorf("save appointment: %w", err)
	}
	a.publish(ctx, realtime.TableAppointments, realtime.EventInsert, id.UserID, appt)
	a.notify(ctx, id.UserID, "Appointment Scheduled",
		fmt.Sprintf("Your consultation is booked for %s UTC.", appt.ScheduledAt.Format("Jan 2, 2006 at 3:04 PM")))
	return appt, nil
}

func (a *App) ListAppointments(_ context.Context, id domain.Identity) ([]domain.Appointment, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	return a.store.ListAppointments(id.UserID)
}

// CancelAppointment cancels a scheduled appointment owned by the caller, or
// any appointment for an admin.
func (a *App) CancelAppointment(ctx context.Context, id domain.Identity, appointmentID string) (domain.Appointment, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Appointment{}, err
	}
	appt, ok, err := a.store.GetAppointment(appointmentID)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}
	if !ok {
		return domain.Appointment{}, ErrAppointmentNotFound
	}
	if appt.UserID != id.UserID && !id.Admin() {
		return domain.Appointment{}, ErrRestricted
	}
	if appt.Status != domain.AppointmentScheduled {
		return domain.Appointment{}, ErrAppointmentClosed
	}
	appt.Status = domain.AppointmentCancelled
	appt.UpdatedAt = a.timestamp()
	if err := a.store.SaveAppointment(appt); err != nil {
		return domain.Appointment{}, fmt.Errorf("save appointment: %w", err)
	}
	a.publish(ctx, realtime.TableAppointments, realtime.EventUpdate, appt.UserID, appt)
	if appt.UserID != id.UserID {
		a.notify(ctx, appt.UserID, "Appointment Cancelled", "Your loan specialist cancelled your consultation. Please book a new time.")
	}
	return appt, nil
}

// SendDueReminders notifies once for every scheduled appointment starting
// within the next 24 hours. It returns how many reminders were sent.
func (a *App) SendDueReminders(ctx context.Context) (int, error) {
	now := a.timestamp()
	due, err := a.store.ListDueReminders(now, now.Add(reminderWindow))
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}
	sent := 0
	for _, appt := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := a.store.MarkAppointmentReminded(appt.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			a.log(ctx).Warn("mark reminder failed", "appointment_id", appt.ID, "err", err)
			continue
		}
		a.notify(ctx, appt.UserID, "Appointment Reminder",
			fmt.Sprintf("Reminder: your consultation %q starts %s UTC.", appt.Topic, appt.ScheduledAt.Format("Jan 2 at 3:04 PM")))
		a.metrics.ReminderSent()
		sent++
	}
	if sent > 0 {
		a.log(ctx).Info("appointment reminders sent", "count", sent)
	}
	return sent, nil
}
