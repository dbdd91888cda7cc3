package store

import (
	"time"

	"loanportal/pkg/domain"
)

func (s *GormStore) CreateNotification(n domain.Notification) error {
	model := notificationToModel(n)
	return s.db.Create(&model).Error
}

// ListNotifications returns a user's notifications newest first.
func (s *GormStore) ListNotifications(userID string, limit int) ([]domain.Notification, error) {
	q := s.db.Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []NotificationModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		out = append(out, notificationFromModel(m))
	}
	return out, nil
}

func (s *GormStore) UnreadNotificationCount(userID string) (int64, error) {
	var count int64
	err := s.db.Model(&NotificationModel{}).Where("user_id = ? AND read = ?", userID, false).Count(&count).Error
	return count, err
}

// MarkNotificationRead flips one notification owned by userID.
func (s *GormStore) MarkNotificationRead(userID, id string) error {
	res := s.db.Model(&NotificationModel{}).Where("id = ? AND user_id = ?", id, userID).Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) MarkAllNotificationsRead(userID string) (int64, error) {
	res := s.db.Model(&NotificationModel{}).Where("user_id = ? AND read = ?", userID, false).Update("read", true)
	return res.RowsAffected, res.Error
}

func (s *GormStore) CreateMessage(m domain.Message) error {
	model := messageToModel(m)
	return s.db.Create(&model).Error
}

// ListMessages returns a customer's thread oldest first, keeping the last
// limit entries.
func (s *GormStore) ListMessages(userID string, limit int) ([]domain.Message, error) {
	q := s.db.Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []MessageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Message, len(models))
	for i, m := range models {
		out[len(models)-1-i] = messageFromModel(m)
	}
	return out, nil
}

// ListRecentMessages is the admin inbox across all threads, newest first.
func (s *GormStore) ListRecentMessages(limit int) ([]domain.Message, error) {
	q := s.db.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []MessageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(models))
	for _, m := range models {
		out = append(out, messageFromModel(m))
	}
	return out, nil
}

// MarkMessagesRead marks one direction of a thread as read.
func (s *GormStore) MarkMessagesRead(userID string, fromAdmin bool) (int64, error) {
	res := s.db.Model(&MessageModel{}).
		Where("user_id = ? AND is_admin = ? AND read = ?", userID, fromAdmin, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

func (s *GormStore) SaveAppointment(a domain.Appointment) error {
	model := appointmentToModel(a)
	return upsert(s.db, &model, []string{"application_id", "scheduled_at", "duration_minutes", "topic", "status", "notes", "reminded_at", "updated_at"})
}

func (s *GormStore) GetAppointment(id string) (domain.Appointment, bool, error) {
	var model AppointmentModel
	found, err := first(s.db, &model, "id = ?", id)
	if !found || err != nil {
		return domain.Appointment{}, false, err
	}
	return appointmentFromModel(model), true, nil
}

func (s *GormStore) ListAppointments(userID string) ([]domain.Appointment, error) {
	var models []AppointmentModel
	if err := s.db.Where("user_id = ?", userID).Order("scheduled_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Appointment, 0, len(models))
	for _, m := range models {
		out = append(out, appointmentFromModel(m))
	}
	return out, nil
}

// ListDueReminders returns scheduled, not yet reminded appointments starting
// inside [from, to).
func (s *GormStore) ListDueReminders(from, to time.Time) ([]domain.Appointment, error) {
	var models []AppointmentModel
	err := s.db.
		Where("status = ? AND reminded_at IS NULL AND scheduled_at >= ? AND scheduled_at < ?", string(domain.AppointmentScheduled), from, to).
		Order("scheduled_at asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Appointment, 0, len(models))
	for _, m := range models {
		out = append(out, appointmentFromModel(m))
	}
	return out, nil
}

func (s *GormStore) MarkAppointmentReminded(id string, at time.Time) error {
	res := s.db.Model(&AppointmentModel{}).Where("id = ? AND reminded_at IS NULL", id).Updates(map[string]any{
		"reminded_at": at,
		"updated_at":  at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SaveTicket(t domain.SupportTicket) error {
	model := ticketToModel(t)
	return upsert(s.db, &model, []string{"subject", "message", "status", "priority", "updated_at"})
}

func (s *GormStore) GetTicket(id string) (domain.SupportTicket, bool, error) {
	var model SupportTicketModel
	found, err := first(s.db, &model, "id = ?", id)
	if !found || err != nil {
		return domain.SupportTicket{}, false, err
	}
	return ticketFromModel(model), true, nil
}

func (s *GormStore) ListTickets(filter TicketFilter) ([]domain.SupportTicket, error) {
	q := s.db.Model(&SupportTicketModel{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	var models []SupportTicketModel
	if err := q.Order("created_at desc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SupportTicket, 0, len(models))
	for _, m := range models {
		out = append(out, ticketFromModel(m))
	}
	return out, nil
}
