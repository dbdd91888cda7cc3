package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"loanportal/pkg/domain"
)

// MemoryStore implements Store and UserStore in process for tests and
// local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	applications  map[string]domain.Application
	documents     map[string]domain.Document
	stages        map[string][]domain.ApplicationStage
	notes         map[string][]domain.ApplicationNote
	notifications []domain.Notification
	messages      []domain.Message
	appointments  map[string]domain.Appointment
	tickets       map[string]domain.SupportTicket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]domain.User),
		applications: make(map[string]domain.Application),
		documents:    make(map[string]domain.Document),
		stages:       make(map[string][]domain.ApplicationStage),
		notes:        make(map[string][]domain.ApplicationNote),
		appointments: make(map[string]domain.Appointment),
		tickets:      make(map[string]domain.SupportTicket),
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	_, found, err := s.GetUserByEmail(email)
	return found, err
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) ListUsers() ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UserCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryStore) SaveApplication(a domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.applications[a.ID]; ok && a.CreatedAt.IsZero() {
		a.CreatedAt = prev.CreatedAt
	}
	s.applications[a.ID] = a
	return nil
}

func (s *MemoryStore) GetApplication(id string) (domain.Application, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.applications[id]
	return a, ok, nil
}

func (s *MemoryStore) GetApplicationByUser(userID string) (domain.Application, bool, error) {
	return s.latestApplication(func(a domain.Application) bool { return userID != "" && a.UserID == userID })
}

func (s *MemoryStore) GetApplicationByTempUser(tempUserID string) (domain.Application, bool, error) {
	return s.latestApplication(func(a domain.Application) bool { return tempUserID != "" && a.TempUserID == tempUserID })
}

func (s *MemoryStore) latestApplication(match func(domain.Application) bool) (domain.Application, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best domain.Application
	found := false
	for _, a := range s.applications {
		if match(a) && (!found || a.CreatedAt.After(best.CreatedAt)) {
			best, found = a, true
		}
	}
	return best, found, nil
}

func (s *MemoryStore) ListApplications(filter ApplicationFilter) ([]domain.Application, error) {
	s.mu.RLock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]domain.Application, 0, len(s.applications))
	for _, a := range s.applications {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.FirstName+" "+a.LastName+" "+a.Email), search) {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) AppendStage(stage domain.ApplicationStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[stage.ApplicationID] = append(s.stages[stage.ApplicationID], stage)
	return nil
}

func (s *MemoryStore) ListStages(applicationID string) ([]domain.ApplicationStage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.ApplicationStage(nil), s.stages[applicationID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) AddNote(note domain.ApplicationNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.ApplicationID] = append(s.notes[note.ApplicationID], note)
	return nil
}

func (s *MemoryStore) ListNotes(applicationID string) ([]domain.ApplicationNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.ApplicationNote(nil), s.notes[applicationID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SaveDocument(d domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ID] = d
	return nil
}

func (s *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	return d, ok, nil
}

func (s *MemoryStore) ListDocuments(applicationID string) ([]domain.Document, error) {
	s.mu.RLock()
	out := make([]domain.Document, 0)
	for _, d := range s.documents {
		if d.ApplicationID == applicationID {
			out = append(out, d)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (s *MemoryStore) ListDocumentsByStatus(status domain.DocumentStatus, limit int) ([]domain.Document, error) {
	s.mu.RLock()
	out := make([]domain.Document, 0)
	for _, d := range s.documents {
		if d.Status == status {
			out = append(out, d)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return paginate(out, 0, limit), nil
}

func (s *MemoryStore) UpdateDocumentReview(id string, review DocumentReview) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	at := review.ReviewedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	d.Status = review.Status
	d.ReviewNotes = review.Notes
	d.ReviewedBy = review.ReviewedBy
	d.ReviewedAt = &at
	s.documents[id] = d
	return d, nil
}

func (s *MemoryStore) DeleteDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return ErrNotFound
	}
	delete(s.documents, id)
	return nil
}

func (s *MemoryStore) CreateNotification(n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *MemoryStore) ListNotifications(userID string, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	out := make([]domain.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, 0, limit), nil
}

func (s *MemoryStore) UnreadNotificationCount(userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, item := range s.notifications {
		if item.UserID == userID && !item.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkNotificationRead(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].UserID == userID {
			s.notifications[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkAllNotificationsRead(userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.notifications {
		if s.notifications[i].UserID == userID && !s.notifications[i].Read {
			s.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateMessage(m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *MemoryStore) ListMessages(userID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) ListRecentMessages(limit int) ([]domain.Message, error) {
	s.mu.RLock()
	out := append([]domain.Message(nil), s.messages...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, 0, limit), nil
}

func (s *MemoryStore) MarkMessagesRead(userID string, fromAdmin bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.UserID == userID && m.IsAdmin == fromAdmin && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveAppointment(a domain.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[a.ID] = a
	return nil
}

func (s *MemoryStore) GetAppointment(id string) (domain.Appointment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	return a, ok, nil
}

func (s *MemoryStore) ListAppointments(userID string) ([]domain.Appointment, error) {
	s.mu.RLock()
	out := make([]domain.Appointment, 0)
	for _, a := range s.appointments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *MemoryStore) ListDueReminders(from, to time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	out := make([]domain.Appointment, 0)
	for _, a := range s.appointments {
		if a.Status == domain.AppointmentScheduled && a.RemindedAt == nil &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *MemoryStore) MarkAppointmentReminded(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.RemindedAt != nil {
		return ErrNotFound
	}
	a.RemindedAt = &at
	a.UpdatedAt = at
	s.appointments[id] = a
	return nil
}

func (s *MemoryStore) SaveTicket(t domain.SupportTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	return nil
}

func (s *MemoryStore) GetTicket(id string) (domain.SupportTicket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	return t, ok, nil
}

func (s *MemoryStore) ListTickets(filter TicketFilter) ([]domain.SupportTicket, error) {
	s.mu.RLock()
	out := make([]domain.SupportTicket, 0)
	for _, t := range s.tickets {
		if filter.UserID != "" && t.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
