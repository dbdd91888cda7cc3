package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"loanportal/pkg/domain"
	"loanportal/pkg/store"
	"loanportal/services/portal/internal/app"
)

func (s *Server) handleAdminListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := s.app.ListApplications(r.Context(), identityFrom(r), store.ApplicationFilter{
		Status: domain.ApplicationStatus(strings.TrimSpace(q.Get("status"))),
		Search: q.Get("q"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleAdminApplication(w http.ResponseWriter, r *http.Request) {
	detail, err := s.app.GetApplicationDetail(r.Context(), identityFrom(r), chi.URLParam(r, "applicationID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleAdminPatchApplication(w http.ResponseWriter, r *http.Request) {
	var req app.AdminPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	application, err := s.app.PatchApplication(r.Context(), identityFrom(r), chi.URLParam(r, "applicationID"), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application)
}

type statusChangeRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (s *Server) handleAdminChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	application, err := s.app.ChangeStatus(r.Context(), identityFrom(r), chi.URLParam(r, "applicationID"),
		domain.ApplicationStatus(strings.TrimSpace(req.Status)), req.Notes)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application)
}

type noteRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleAdminAddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := s.app.AddNote(r.Context(), identityFrom(r), chi.URLParam(r, "applicationID"), req.Body)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleAdminPendingDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.PendingDocuments(r.Context(), identityFrom(r), queryInt(r, "limit"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleAdminRecentMessages(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.RecentMessages(r.Context(), identityFrom(r), queryInt(r, "limit"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type ticketStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleAdminTicketStatus(w http.ResponseWriter, r *http.Request) {
	var req ticketStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ticket, err := s.app.UpdateTicketStatus(r.Context(), identityFrom(r), chi.URLParam(r, "ticketID"), domain.TicketStatus(req.Status))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) handleAdminStorage(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.ListStorage(r.Context(), identityFrom(r), r.URL.Query().Get("prefix"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
