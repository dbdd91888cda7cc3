package store

import (
	"errors"
	"testing"
	"time"

	"loanportal/pkg/domain"
)

func TestMemoryStoreApplicationLookups(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	_ = s.SaveApplication(domain.Application{ID: "a1", TempUserID: "tmp-1", Status: domain.ApplicationSubmitted, FirstName: "Dana", CreatedAt: base})
	_ = s.SaveApplication(domain.Application{ID: "a2", UserID: "u1", Status: domain.ApplicationPreApproved, Email: "lee@example.com", CreatedAt: base.Add(time.Hour)})
	_ = s.SaveApplication(domain.Application{ID: "a3", UserID: "u1", Status: domain.ApplicationSubmitted, CreatedAt: base.Add(2 * time.Hour)})

	if a, ok, _ := s.GetApplicationByUser("u1"); !ok || a.ID != "a3" {
		t.Fatalf("expected newest application a3, got %+v", a)
	}
	if a, ok, _ := s.GetApplicationByTempUser("tmp-1"); !ok || a.ID != "a1" {
		t.Fatalf("expected a1 by temp id, got %+v", a)
	}
	if _, ok, _ := s.GetApplicationByUser(""); ok {
		t.Fatalf("empty user id must not match unlinked applications")
	}

	submitted, _ := s.ListApplications(ApplicationFilter{Status: domain.ApplicationSubmitted})
	if len(submitted) != 2 || submitted[0].ID != "a3" {
		t.Fatalf("unexpected submitted list %+v", submitted)
	}
	searched, _ := s.ListApplications(ApplicationFilter{Search: "LEE@"})
	if len(searched) != 1 || searched[0].ID != "a2" {
		t.Fatalf("unexpected search result %+v", searched)
	}
	paged, _ := s.ListApplications(ApplicationFilter{Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].ID != "a2" {
		t.Fatalf("unexpected page %+v", paged)
	}
}

func TestMemoryStoreDocumentReview(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveDocument(domain.Document{ID: "d1", ApplicationID: "a1", Status: domain.DocumentPending})

	doc, err := s.UpdateDocumentReview("d1", DocumentReview{Status: domain.DocumentRejected, Notes: "blurry", ReviewedBy: "admin"})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if doc.Status != domain.DocumentRejected || doc.ReviewedAt == nil || doc.ReviewNotes != "blurry" {
		t.Fatalf("unexpected reviewed doc %+v", doc)
	}
	if _, err := s.UpdateDocumentReview("missing", DocumentReview{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteDocument("d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteDocument("d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should report ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreNotificationsAndReminders(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	_ = s.CreateNotification(domain.Notification{ID: "n1", UserID: "u1", CreatedAt: now})
	_ = s.CreateNotification(domain.Notification{ID: "n2", UserID: "u1", CreatedAt: now.Add(time.Minute)})
	_ = s.CreateNotification(domain.Notification{ID: "n3", UserID: "u2", CreatedAt: now})

	if err := s.MarkNotificationRead("u2", "n1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other users must not mark n1, got %v", err)
	}
	if n, _ := s.MarkAllNotificationsRead("u1"); n != 2 {
		t.Fatalf("marked %d, want 2", n)
	}
	if c, _ := s.UnreadNotificationCount("u1"); c != 0 {
		t.Fatalf("unread = %d", c)
	}

	_ = s.SaveAppointment(domain.Appointment{ID: "ap1", UserID: "u1", Status: domain.AppointmentScheduled, ScheduledAt: now.Add(3 * time.Hour)})
	_ = s.SaveAppointment(domain.Appointment{ID: "ap2", UserID: "u1", Status: domain.AppointmentCancelled, ScheduledAt: now.Add(3 * time.Hour)})
	_ = s.SaveAppointment(domain.Appointment{ID: "ap3", UserID: "u1", Status: domain.AppointmentScheduled, ScheduledAt: now.Add(48 * time.Hour)})

	due, _ := s.ListDueReminders(now, now.Add(24*time.Hour))
	if len(due) != 1 || due[0].ID != "ap1" {
		t.Fatalf("due = %+v", due)
	}
	if err := s.MarkAppointmentReminded("ap1", now); err != nil {
		t.Fatalf("mark reminded: %v", err)
	}
	if err := s.MarkAppointmentReminded("ap1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second reminder mark should fail, got %v", err)
	}
	if due, _ := s.ListDueReminders(now, now.Add(24*time.Hour)); len(due) != 0 {
		t.Fatalf("reminded appointment must not be due again")
	}
}
