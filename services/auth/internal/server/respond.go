package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"loanportal/internal/util"
	"loanportal/pkg/auth"
	"loanportal/services/auth/internal/app"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{app.ErrInvalidCredentials, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS"},
	// Disabled accounts look like bad credentials to the caller.
	{app.ErrUserDisabled, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS"},
	{app.ErrUnauthorized, http.StatusUnauthorized, "AUTH_UNAUTHORIZED"},
	{app.ErrInvalidRefreshToken, http.StatusUnauthorized, "AUTH_INVALID_REFRESH_TOKEN"},
	{app.ErrRefreshTokenRequired, http.StatusBadRequest, "AUTH_REFRESH_TOKEN_REQUIRED"},
	{app.ErrEmailAndPasswordRequired, http.StatusBadRequest, "AUTH_EMAIL_PASSWORD_REQUIRED"},
	{app.ErrEmailRequired, http.StatusBadRequest, "AUTH_EMAIL_REQUIRED"},
	{app.ErrEmailInvalid, http.StatusBadRequest, "AUTH_EMAIL_INVALID"},
	{app.ErrEmailAlreadyExists, http.StatusConflict, "AUTH_EMAIL_EXISTS"},
	{app.ErrNameTooLong, http.StatusBadRequest, "AUTH_NAME_TOO_LONG"},
	{app.ErrCurrentPasswordRequired, http.StatusBadRequest, "AUTH_CURRENT_PASSWORD_REQUIRED"},
	{app.ErrNewPasswordRequired, http.StatusBadRequest, "AUTH_NEW_PASSWORD_REQUIRED"},
	{app.ErrPasswordUnchanged, http.StatusBadRequest, "AUTH_PASSWORD_UNCHANGED"},
	{auth.ErrPasswordTooShort, http.StatusBadRequest, "AUTH_PASSWORD_WEAK"},
	{auth.ErrPasswordTooLong, http.StatusBadRequest, "AUTH_PASSWORD_WEAK"},
	{auth.ErrPasswordWeak, http.StatusBadRequest, "AUTH_PASSWORD_WEAK"},
	{app.ErrResetCodeInvalid, http.StatusBadRequest, "AUTH_RESET_CODE_INVALID"},
	{app.ErrResetLocked, http.StatusTooManyRequests, "AUTH_RESET_LOCKED"},
	{app.ErrUserNotFound, http.StatusNotFound, "AUTH_USER_NOT_FOUND"},
	{app.ErrInvalidRole, http.StatusBadRequest, "AUTH_INVALID_ROLE"},
	{app.ErrInvalidStatus, http.StatusBadRequest, "AUTH_INVALID_STATUS"},
	{app.ErrNothingToUpdate, http.StatusBadRequest, "AUTH_NOTHING_TO_UPDATE"},
	{app.ErrCannotChangeSelf, http.StatusBadRequest, "AUTH_CANNOT_CHANGE_SELF"},
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	code := "AUTH_REQUEST_FAILED"
	switch status {
	case http.StatusUnauthorized:
		code = "AUTH_UNAUTHORIZED"
	case http.StatusForbidden:
		code = "AUTH_FORBIDDEN"
	case http.StatusBadRequest:
		code = "AUTH_INVALID_REQUEST"
	case http.StatusInternalServerError:
		code = "AUTH_INTERNAL_ERROR"
	}
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: w.Header().Get(util.RequestIDHeader),
	})
}

// fail maps an app error to its status and envelope.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			msg := m.err.Error()
			if m.err == app.ErrUserDisabled {
				msg = app.ErrInvalidCredentials.Error()
			}
			writeJSON(w, m.status, errorResponse{
				Error:     msg,
				Code:      m.code,
				RequestID: util.RequestIDFromRequest(r),
			})
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "request timed out")
		return
	}
	util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
