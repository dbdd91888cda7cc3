package server

import (
	"net/http"
	"strings"

	"loanportal/internal/servicetoken"
	"loanportal/pkg/domain"
	"loanportal/services/auth/internal/app"
	"loanportal/services/auth/internal/security"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type adminUserUpdateRequest struct {
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, s.app.JWKS())
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req app.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.app.SignUp(r.Context(), req)
	if err != nil {
		s.audit(r, "auth.signup", security.OutcomeFail)
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", security.OutcomeFail)
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.audit(r, "auth.refresh", security.OutcomeFail)
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := servicetoken.BearerToken(r)
	if !ok {
		s.audit(r, "auth.logout", security.OutcomeFail)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req refreshRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.Logout(r.Context(), token, req.RefreshToken); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.UpdateMeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.UpdateMe(r.Context(), user, req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		s.audit(r, "auth.password.change", security.OutcomeFail)
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.RequestPasswordReset(r.Context(), req.Email); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the account exists, a reset code has been sent",
	})
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		s.audit(r, "auth.password.reset.confirm", security.OutcomeFail)
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// admin handlers
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	users, err := s.app.ListUsers()
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": users,
		"count": len(users),
	})
}

func (s *Server) handleAdminUserByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimSpace(r.PathValue("id"))
	var req adminUserUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var role *domain.UserRole
	if req.Role != "" {
		parsed := domain.UserRole(strings.ToLower(strings.TrimSpace(req.Role)))
		role = &parsed
	}
	var status *domain.UserStatus
	if req.Status != "" {
		parsed := domain.UserStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		status = &parsed
	}
	updated, err := s.app.AdminUpdateUser(r.Context(), user, id, role, status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
