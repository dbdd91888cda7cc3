package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"loanportal/internal/util"
	"loanportal/services/portal/internal/app"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	RequestID string            `json:"requestId,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

// fail maps an app error to its status and envelope. Unexpected errors are
// logged and hidden behind "internal error".
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *app.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     ve.Message,
			Code:      validationCode(ve.Message),
			RequestID: util.RequestIDFromRequest(r),
			Fields:    ve.Fields,
		})
		return
	}
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, errorResponse{
				Error:     m.err.Error(),
				Code:      m.code,
				RequestID: util.RequestIDFromRequest(r),
			})
			return
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{app.ErrUnauthenticated, http.StatusUnauthorized, "AUTH_INVALID_TOKEN"},
	{app.ErrRestricted, http.StatusForbidden, "PORTAL_RESTRICTED"},
	{app.ErrPermissionDenied, http.StatusForbidden, "PORTAL_FORBIDDEN"},
	{app.ErrAdminRequired, http.StatusForbidden, "PORTAL_ADMIN_REQUIRED"},
	{app.ErrApplicationNotFound, http.StatusNotFound, "APPLICATION_NOT_FOUND"},
	{app.ErrDocumentNotFound, http.StatusNotFound, "DOCUMENT_NOT_FOUND"},
	{app.ErrAppointmentNotFound, http.StatusNotFound, "APPOINTMENT_NOT_FOUND"},
	{app.ErrTicketNotFound, http.StatusNotFound, "TICKET_NOT_FOUND"},
	{app.ErrNotificationNotFound, http.StatusNotFound, "NOTIFICATION_NOT_FOUND"},
	{app.ErrFileUnavailable, http.StatusBadGateway, "FILE_UNAVAILABLE"},
	{app.ErrReviewNotesRequired, http.StatusBadRequest, "DOCUMENT_REVIEW_NOTES_REQUIRED"},
	{app.ErrInvalidCategory, http.StatusBadRequest, "DOCUMENT_INVALID_CATEGORY"},
	{app.ErrInvalidStatus, http.StatusBadRequest, "PORTAL_INVALID_STATUS"},
	{app.ErrEmptyMessage, http.StatusBadRequest, "MESSAGE_EMPTY"},
	{app.ErrAppointmentInPast, http.StatusBadRequest, "APPOINTMENT_IN_PAST"},
	{app.ErrAppointmentClosed, http.StatusConflict, "APPOINTMENT_CLOSED"},
}

func validationCode(msg string) string {
	message := strings.ToLower(msg)
	switch {
	case strings.HasPrefix(message, "file is too large"):
		return "DOCUMENT_FILE_TOO_LARGE"
	case strings.HasPrefix(message, "file type not supported"):
		return "DOCUMENT_UNSUPPORTED_FILE_TYPE"
	default:
		return "VALIDATION_FAILED"
	}
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "internal auth not configured":
		return "SYSTEM_INTERNAL_ERROR"
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == app.ErrAdminRequired.Error():
		return "PORTAL_ADMIN_REQUIRED"
	case message == "invalid json body":
		return "PORTAL_INVALID_REQUEST"
	case message == "invalid form data", strings.Contains(message, "file is required"):
		return "DOCUMENT_INVALID_UPLOAD_FORM"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "PORTAL_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "PORTAL_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusGatewayTimeout:
		return "SYSTEM_TIMEOUT"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return n
}
