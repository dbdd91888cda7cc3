package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loanportal/pkg/domain"
	"loanportal/pkg/lifecycle"
	"loanportal/services/portal/internal/app"
)

const (
	// multipart framing allowance on top of the file itself
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

func (s *Server) handlePrequal(w http.ResponseWriter, r *http.Request) {
	var req app.PrequalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	application, err := s.app.Prequalify(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"application": application,
		"tempUserId":  application.TempUserID,
	})
}

type claimRequest struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	TempUserID string `json:"tempUserId"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	application, err := s.app.ClaimApplication(r.Context(), req.UserID, req.Email, req.TempUserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.app.Dashboard(r.Context(), identityFrom(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	application, err := s.app.EnsureApplication(r.Context(), identityFrom(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"application": application,
		"stage":       lifecycle.Describe(application),
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req app.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	application, err := s.app.UpdateProfile(r.Context(), identityFrom(r), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.app.ListDocuments(r.Context(), identityFrom(r), chi.URLParam(r, "applicationID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": app.GroupDocuments(docs),
		"count":  len(docs),
	})
}

// handleUpload takes multipart fields "file" and "category". On the admin
// route the application comes from the path.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > app.MaxFileSize+multipartOverhead {
		fail(w, r, app.ValidateFile("", r.ContentLength))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(w, r, app.ValidateFile("", app.MaxFileSize+1))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	doc, err := s.app.UploadDocument(r.Context(), identityFrom(r), chi.URLParam(r, "applicationID"),
		domain.DocumentCategory(r.FormValue("category")), app.UploadFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.app.GetDocument(r.Context(), identityFrom(r), chi.URLParam(r, "documentID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDocumentURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.app.DocumentURL(r.Context(), identityFrom(r), chi.URLParam(r, "documentID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type documentStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	var req documentStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doc, err := s.app.UpdateDocumentStatus(r.Context(), identityFrom(r), chi.URLParam(r, "documentID"),
		domain.DocumentStatus(req.Status), req.Notes)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteDocument(r.Context(), identityFrom(r), chi.URLParam(r, "documentID")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	items, unread, err := s.app.ListNotifications(r.Context(), identityFrom(r), queryInt(r, "limit"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"unreadCount": unread,
	})
}

func (s *Server) handleReadNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.app.MarkNotificationRead(r.Context(), identityFrom(r), chi.URLParam(r, "notificationID")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) handleReadAllNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.MarkAllNotificationsRead(r.Context(), identityFrom(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Message handlers serve both the customer routes and the admin routes that
// carry the thread owner in {userID}.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.ListMessages(r.Context(), identityFrom(r), chi.URLParam(r, "userID"), queryInt(r, "limit"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.app.SendMessage(r.Context(), identityFrom(r), chi.URLParam(r, "userID"), req.Content)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleReadMessages(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.MarkMessagesRead(r.Context(), identityFrom(r), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.ListAppointments(r.Context(), identityFrom(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleScheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req app.AppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := s.app.ScheduleAppointment(r.Context(), identityFrom(r), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (s *Server) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := s.app.CancelAppointment(r.Context(), identityFrom(r), chi.URLParam(r, "appointmentID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.ListTickets(r.Context(), identityFrom(r), domain.TicketStatus(r.URL.Query().Get("status")))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req app.TicketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ticket, err := s.app.CreateTicket(r.Context(), identityFrom(r), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}
