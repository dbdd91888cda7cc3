package store

import (
	"errors"
	"time"

	"loanportal/pkg/domain"
)

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("record not found")

// ApplicationFilter narrows the admin application list.
type ApplicationFilter struct {
	Status domain.ApplicationStatus
	// Search matches name or email, case-insensitively.
	Search string
	Limit  int
	Offset int
}

// DocumentReview is the reviewer decision written onto a document.
type DocumentReview struct {
	Status     domain.DocumentStatus
	Notes      string
	ReviewedBy string
	ReviewedAt time.Time
}

// TicketFilter narrows support ticket listings. Empty fields match all.
type TicketFilter struct {
	UserID string
	Status domain.TicketStatus
}

// Store persists the loan portal rows.
type Store interface {
	// applications
	SaveApplication(domain.Application) error
	GetApplication(id string) (domain.Application, bool, error)
	GetApplicationByUser(userID string) (domain.Application, bool, error)
	GetApplicationByTempUser(tempUserID string) (domain.Application, bool, error)
	ListApplications(filter ApplicationFilter) ([]domain.Application, error)

	// progress log and notes
	AppendStage(domain.ApplicationStage) error
	ListStages(applicationID string) ([]domain.ApplicationStage, error)
	AddNote(domain.ApplicationNote) error
	ListNotes(applicationID string) ([]domain.ApplicationNote, error)

	// documents
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocuments(applicationID string) ([]domain.Document, error)
	ListDocumentsByStatus(status domain.DocumentStatus, limit int) ([]domain.Document, error)
	UpdateDocumentReview(id string, review DocumentReview) (domain.Document, error)
	DeleteDocument(id string) error

	// notifications
	CreateNotification(domain.Notification) error
	ListNotifications(userID string, limit int) ([]domain.Notification, error)
	UnreadNotificationCount(userID string) (int64, error)
	MarkNotificationRead(userID, id string) error
	MarkAllNotificationsRead(userID string) (int64, error)

	// messages
	CreateMessage(domain.Message) error
	ListMessages(userID string, limit int) ([]domain.Message, error)
	ListRecentMessages(limit int) ([]domain.Message, error)
	MarkMessagesRead(userID string, fromAdmin bool) (int64, error)

	// appointments
	SaveAppointment(domain.Appointment) error
	GetAppointment(id string) (domain.Appointment, bool, error)
	ListAppointments(userID string) ([]domain.Appointment, error)
	ListDueReminders(from, to time.Time) ([]domain.Appointment, error)
	MarkAppointmentReminded(id string, at time.Time) error

	// support tickets
	SaveTicket(domain.SupportTicket) error
	GetTicket(id string) (domain.SupportTicket, bool, error)
	ListTickets(filter TicketFilter) ([]domain.SupportTicket, error)
}

// UserStore persists auth accounts.
type UserStore interface {
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	UserCount() (int, error)
}
