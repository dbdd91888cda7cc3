package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	// ErrRestricted is shown to callers acting on an application they do not
	// own, or when storage refuses the write.
	ErrRestricted       = errors.New("restricted")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAdminRequired    = errors.New("admin access required")

	ErrApplicationNotFound  = errors.New("application not found")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrFileUnavailable means the stored file could not be confirmed
	// retrievable after every signed URL attempt.
	ErrFileUnavailable = errors.New("file is not available yet, please try again")

	ErrReviewNotesRequired = errors.New("review notes are required when rejecting a document")
	ErrInvalidCategory     = errors.New("invalid document category")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrEmptyMessage        = errors.New("message content required")
	ErrAppointmentInPast   = errors.New("appointment must be scheduled in the future")
	ErrAppointmentClosed   = errors.New("appointment is no longer scheduled")
)

// ValidationError is a user input problem. Message is safe to show as is.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// fromValidator turns validator failures into field -> tag pairs.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
		names = append(names, fe.Field())
	}
	sort.Strings(names)
	return &ValidationError{
		Message: "invalid fields: " + strings.Join(names, ", "),
		Fields:  fields,
	}
}
