// Package realtime fans row change events out to websocket subscribers.
package realtime

import (
	"context"
	"time"

	"loanportal/pkg/domain"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Tables that emit change events.
const (
	TableApplications   = "applications"
	TableDocuments      = "documents"
	TableStages         = "application_stages"
	TableNotifications  = "notifications"
	TableMessages       = "admin_messages"
	TableAppointments   = "appointments"
	TableTickets        = "support_tickets"
	TableUploadProgress = "upload_progress"
)

// ChangeEvent describes one row change. UserID is the owning customer and
// decides which non-admin subscribers receive the event.
type ChangeEvent struct {
	Table  string    `json:"table"`
	Type   EventType `json:"type"`
	UserID string    `json:"userId,omitempty"`
	Record any       `json:"record,omitempty"`
	At     time.Time `json:"at"`
}

// UploadProgress is the record of an upload_progress event.
type UploadProgress struct {
	Key     string `json:"key"`
	Sent    int64  `json:"sent"`
	Total   int64  `json:"total"`
	Percent int    `json:"percent"`
}

// NewUploadProgress computes the rounded-down percentage.
func NewUploadProgress(key string, sent, total int64) UploadProgress {
	p := UploadProgress{Key: key, Sent: sent, Total: total}
	if total > 0 {
		p.Percent = int(sent * 100 / total)
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p
}

// Visible reports whether id may receive ev.
func Visible(ev ChangeEvent, id domain.Identity) bool {
	if id.Admin() {
		return true
	}
	return ev.UserID != "" && ev.UserID == id.UserID
}

// Publisher is what the application layer needs to emit events.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Broker distributes events between portal instances. Subscribe registers
// handler and returns once delivery is set up; delivery stops when ctx ends.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, handler func(ChangeEvent)) error
	Close() error
}
