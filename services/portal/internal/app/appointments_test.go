package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"loanportal/pkg/domain"
)

func TestScheduleAppointment(t *testing.T) {
	env := newTestEnv(t)
	app := env.application(t, owner)
	now := env.clock.Now()

	if _, err := env.app.ScheduleAppointment(context.Background(), owner, AppointmentRequest{ScheduledAt: now.Add(-time.Hour), Topic: "Vehicle options"}); !errors.Is(err, ErrAppointmentInPast) {
		t.Fatalf("expected ErrAppointmentInPast, got %v", err)
	}
	if _, err := env.app.ScheduleAppointment(context.Background(), owner, AppointmentRequest{ScheduledAt: now.Add(time.Hour), Topic: "x", DurationMinutes: 5}); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	appt, err := env.app.ScheduleAppointment(context.Background(), owner, AppointmentRequest{ScheduledAt: now.Add(48 * time.Hour), Topic: "Vehicle options"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if appt.DurationMinutes != 30 || appt.Status != domain.AppointmentScheduled || appt.ApplicationID != app.ID {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	list, err := env.app.ListAppointments(context.Background(), owner)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %d %v", len(list), err)
	}
}

func TestCancelAppointment(t *testing.T) {
	env := newTestEnv(t)
	appt, err := env.app.ScheduleAppointment(context.Background(), owner, AppointmentRequest{ScheduledAt: env.clock.Now().Add(time.Hour), Topic: "Terms"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := env.app.CancelAppointment(context.Background(), stranger, appt.ID); !errors.Is(err, ErrRestricted) {
		t.Fatalf("expected ErrRestricted, got %v", err)
	}
	cancelled, err := env.app.CancelAppointment(context.Background(), admin, appt.ID)
	if err != nil || cancelled.Status != domain.AppointmentCancelled {
		t.Fatalf("cancel: %+v %v", cancelled, err)
	}
	if !env.hasNotification(t, owner.UserID, "Appointment Cancelled", "") {
		t.Fatalf("owner not told about the admin cancellation")
	}
	if _, err := env.app.CancelAppointment(context.Background(), owner, appt.ID); !errors.Is(err, ErrAppointmentClosed) {
		t.Fatalf("expected ErrAppointmentClosed, got %v", err)
	}
	if _, err := env.app.CancelAppointment(context.Background(), owner, "missing"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestSendDueRemindersOnce(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()
	soon, err := env.app.ScheduleAppointment(context.Background(), owner, AppointmentRequest{ScheduledAt: now.Add(3 * time.Hour), Topic: "Signing"})
	if err != nil {
		t.Fatalf("schedule soon: %v", err)
	}
	if _, err := env.app.ScheduleAppointment(context.Background(), owner, AppointmentRequest{ScheduledAt: now.Add(72 * time.Hour), Topic: "Later"}); err != nil {
		t.Fatalf("schedule later: %v", err)
	}

	sent, err := env.app.SendDueReminders(context.Background())
	if err != nil || sent != 1 {
		t.Fatalf("first sweep: sent=%d err=%v", sent, err)
	}
	if !env.hasNotification(t, owner.UserID, "Appointment Reminder", "Signing") {
		t.Fatalf("reminder notification missing")
	}
	stored, _, _ := env.rows.GetAppointment(soon.ID)
	if stored.RemindedAt == nil {
		t.Fatalf("reminded_at not recorded")
	}
	if sent, err := env.app.SendDueReminders(context.Background()); err != nil || sent != 0 {
		t.Fatalf("second sweep: sent=%d err=%v", sent, err)
	}
	const want = `
# HELP loanportal_appointments_reminders_sent_total Appointment reminders delivered.
# TYPE loanportal_appointments_reminders_sent_total counter
loanportal_appointments_reminders_sent_total 1
`
	if err := testutil.GatherAndCompare(env.metrics.Registry(), strings.NewReader(want), "loanportal_appointments_reminders_sent_total"); err != nil {
		t.Fatalf("reminders metric: %v", err)
	}
}
