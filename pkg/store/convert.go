package store

import (
	"encoding/json"

	"gorm.io/datatypes"

	"loanportal/pkg/domain"
)

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Role:         string(u.Role),
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Role:         domain.UserRole(m.Role),
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func applicationToModel(a domain.Application) ApplicationModel {
	return ApplicationModel{
		ID:                    a.ID,
		UserID:                a.UserID,
		TempUserID:            a.TempUserID,
		Status:                string(a.Status),
		CurrentStage:          a.CurrentStage,
		LoanAmountMin:         a.LoanAmountMin,
		LoanAmountMax:         a.LoanAmountMax,
		InterestRate:          a.InterestRate,
		InterestRateMin:       a.InterestRateMin,
		InterestRateMax:       a.InterestRateMax,
		TermMonths:            a.TermMonths,
		DownPayment:           a.DownPayment,
		DesiredMonthlyPayment: a.DesiredMonthlyPayment,
		FirstName:             a.FirstName,
		LastName:              a.LastName,
		Email:                 a.Email,
		Phone:                 a.Phone,
		AddressLine:           a.AddressLine,
		City:                  a.City,
		State:                 a.State,
		ZipCode:               a.ZipCode,
		EmploymentStatus:      a.EmploymentStatus,
		EmployerName:          a.EmployerName,
		AnnualIncome:          a.AnnualIncome,
		CreditScore:           a.CreditScore,
		VehicleType:           a.VehicleType,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
}

func applicationFromModel(m ApplicationModel) domain.Application {
	return domain.Application{
		ID:                    m.ID,
		UserID:                m.UserID,
		TempUserID:            m.TempUserID,
		Status:                domain.ApplicationStatus(m.Status),
		CurrentStage:          m.CurrentStage,
		LoanAmountMin:         m.LoanAmountMin,
		LoanAmountMax:         m.LoanAmountMax,
		InterestRate:          m.InterestRate,
		InterestRateMin:       m.InterestRateMin,
		InterestRateMax:       m.InterestRateMax,
		TermMonths:            m.TermMonths,
		DownPayment:           m.DownPayment,
		DesiredMonthlyPayment: m.DesiredMonthlyPayment,
		FirstName:             m.FirstName,
		LastName:              m.LastName,
		Email:                 m.Email,
		Phone:                 m.Phone,
		AddressLine:           m.AddressLine,
		City:                  m.City,
		State:                 m.State,
		ZipCode:               m.ZipCode,
		EmploymentStatus:      m.EmploymentStatus,
		EmployerName:          m.EmployerName,
		AnnualIncome:          m.AnnualIncome,
		CreditScore:           m.CreditScore,
		VehicleType:           m.VehicleType,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	var meta datatypes.JSON
	if len(d.Metadata) > 0 {
		if raw, err := json.Marshal(d.Metadata); err == nil {
			meta = datatypes.JSON(raw)
		}
	}
	return DocumentModel{
		ID:            d.ID,
		ApplicationID: d.ApplicationID,
		Category:      string(d.Category),
		Filename:      d.Filename,
		OriginalName:  d.OriginalName,
		ContentType:   d.ContentType,
		SizeBytes:     d.SizeBytes,
		Status:        string(d.Status),
		ReviewNotes:   d.ReviewNotes,
		ReviewedBy:    d.ReviewedBy,
		UploadedBy:    d.UploadedBy,
		Metadata:      meta,
		UploadedAt:    d.UploadedAt,
		ReviewedAt:    d.ReviewedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	var meta map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.Document{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		Category:      domain.DocumentCategory(m.Category),
		Filename:      m.Filename,
		OriginalName:  m.OriginalName,
		ContentType:   m.ContentType,
		SizeBytes:     m.SizeBytes,
		Status:        domain.DocumentStatus(m.Status),
		ReviewNotes:   m.ReviewNotes,
		ReviewedBy:    m.ReviewedBy,
		UploadedBy:    m.UploadedBy,
		Metadata:      meta,
		UploadedAt:    m.UploadedAt,
		ReviewedAt:    m.ReviewedAt,
	}
}

func stageToModel(s domain.ApplicationStage) ApplicationStageModel {
	return ApplicationStageModel{
		ID:            s.ID,
		ApplicationID: s.ApplicationID,
		StageNumber:   s.StageNumber,
		Status:        s.Status,
		Notes:         s.Notes,
		Timestamp:     s.Timestamp,
	}
}

func stageFromModel(m ApplicationStageModel) domain.ApplicationStage {
	return domain.ApplicationStage{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		StageNumber:   m.StageNumber,
		Status:        m.Status,
		Notes:         m.Notes,
		Timestamp:     m.Timestamp,
	}
}

func noteToModel(n domain.ApplicationNote) ApplicationNoteModel {
	return ApplicationNoteModel{ID: n.ID, ApplicationID: n.ApplicationID, AuthorID: n.AuthorID, Body: n.Body, CreatedAt: n.CreatedAt}
}

func noteFromModel(m ApplicationNoteModel) domain.ApplicationNote {
	return domain.ApplicationNote{ID: m.ID, ApplicationID: m.ApplicationID, AuthorID: m.AuthorID, Body: m.Body, CreatedAt: m.CreatedAt}
}

func notificationToModel(n domain.Notification) NotificationModel {
	return NotificationModel{ID: n.ID, UserID: n.UserID, Title: n.Title, Message: n.Message, Read: n.Read, CreatedAt: n.CreatedAt}
}

func notificationFromModel(m NotificationModel) domain.Notification {
	return domain.Notification{ID: m.ID, UserID: m.UserID, Title: m.Title, Message: m.Message, Read: m.Read, CreatedAt: m.CreatedAt}
}

func messageToModel(m domain.Message) MessageModel {
	return MessageModel{
		ID:            m.ID,
		UserID:        m.UserID,
		ApplicationID: m.ApplicationID,
		SenderID:      m.SenderID,
		IsAdmin:       m.IsAdmin,
		Content:       m.Content,
		Read:          m.Read,
		CreatedAt:     m.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:            m.ID,
		UserID:        m.UserID,
		ApplicationID: m.ApplicationID,
		SenderID:      m.SenderID,
		IsAdmin:       m.IsAdmin,
		Content:       m.Content,
		Read:          m.Read,
		CreatedAt:     m.CreatedAt,
	}
}

func appointmentToModel(a domain.Appointment) AppointmentModel {
	return AppointmentModel{
		ID:              a.ID,
		UserID:          a.UserID,
		ApplicationID:   a.ApplicationID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Topic:           a.Topic,
		Status:          string(a.Status),
		Notes:           a.Notes,
		RemindedAt:      a.RemindedAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func appointmentFromModel(m AppointmentModel) domain.Appointment {
	return domain.Appointment{
		ID:              m.ID,
		UserID:          m.UserID,
		ApplicationID:   m.ApplicationID,
		ScheduledAt:     m.ScheduledAt,
		DurationMinutes: m.DurationMinutes,
		Topic:           m.Topic,
		Status:          domain.AppointmentStatus(m.Status),
		Notes:           m.Notes,
		RemindedAt:      m.RemindedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func ticketToModel(t domain.SupportTicket) SupportTicketModel {
	return SupportTicketModel{
		ID:        t.ID,
		UserID:    t.UserID,
		Subject:   t.Subject,
		Message:   t.Message,
		Status:    string(t.Status),
		Priority:  t.Priority,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func ticketFromModel(m SupportTicketModel) domain.SupportTicket {
	return domain.SupportTicket{
		ID:        m.ID,
		UserID:    m.UserID,
		Subject:   m.Subject,
		Message:   m.Message,
		Status:    domain.TicketStatus(m.Status),
		Priority:  m.Priority,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
