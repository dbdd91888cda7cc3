package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	// ErrUserDisabled is returned when an account is disabled.
	// Handlers should generally NOT expose this to clients to avoid account enumeration.
	ErrUserDisabled = errors.New("user disabled")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailInvalid             = errors.New("email address is invalid")
	ErrEmailAlreadyExists       = errors.New("email already exists")
	ErrEmailRequired            = errors.New("email required")

	ErrRefreshTokenRequired = errors.New("refresh token required")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrUnauthorized         = errors.New("unauthorized")

	ErrCurrentPasswordRequired = errors.New("current password required")
	ErrNewPasswordRequired     = errors.New("new password required")
	ErrPasswordUnchanged       = errors.New("new password must differ from current password")
	ErrResetCodeInvalid        = errors.New("reset code invalid or expired")
	ErrResetLocked             = errors.New("too many reset attempts, request a new code")

	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrNothingToUpdate  = errors.New("role or status is required")
	ErrCannotChangeSelf = errors.New("cannot change own role or disable self")
	ErrNameTooLong      = errors.New("name must be at most 100 characters")
)
