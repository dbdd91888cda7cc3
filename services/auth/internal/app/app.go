package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"loanportal/internal/usertoken"
	"loanportal/internal/util"
	"loanportal/pkg/auth"
	"loanportal/pkg/domain"
	"loanportal/pkg/session"
	"loanportal/pkg/store"
)

const (
	maxNameLength = 100
	claimTimeout  = 5 * time.Second
)

// ResetSender delivers password reset codes to the account owner.
type ResetSender interface {
	SendResetCode(ctx context.Context, email, code string) error
}

// LogResetSender writes reset codes to the log. Development only.
type LogResetSender struct {
	Logger *slog.Logger
}

func (s LogResetSender) SendResetCode(_ context.Context, email, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("password reset code issued, no mail transport configured", "email", email, "code", code)
	return nil
}

// Config holds runtime configuration for the core application.
type Config struct {
	Users   store.UserStore
	Tokens  *session.Issuer
	Refresh *session.RefreshStore
	Resets  *session.ResetCodes
	// Portal is optional; without it signups do not create applications.
	Portal      ApplicationClaimer
	ResetSender ResetSender
	Logger      *slog.Logger
	Now         func() time.Time
}

// App is the core application service wiring together storage and auth logic.
type App struct {
	users   store.UserStore
	tokens  *session.Issuer
	refresh *session.RefreshStore
	resets  *session.ResetCodes
	portal  ApplicationClaimer
	sender  ResetSender
	logger  *slog.Logger
	now     func() time.Time
}

// TokenPair is what login, signup and refresh hand back.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Session is an authenticated user with fresh tokens.
type Session struct {
	User domain.User `json:"user"`
	TokenPair
}

// SignUpRequest carries the signup form. TempUserID links an earlier
// pre-qualification.
type SignUpRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	TempUserID string `json:"tempUserId"`
}

// UpdateMeRequest changes the caller's profile. Nil fields are left alone.
type UpdateMeRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Users == nil {
		return nil, errors.New("user store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer required")
	}
	if cfg.Refresh == nil {
		return nil, errors.New("refresh store required")
	}
	if cfg.Resets == nil {
		return nil, errors.New("reset code store required")
	}
	a := &App{
		users:   cfg.Users,
		tokens:  cfg.Tokens,
		refresh: cfg.Refresh,
		resets:  cfg.Resets,
		portal:  cfg.Portal,
		sender:  cfg.ResetSender,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.sender == nil {
		a.sender = LogResetSender{Logger: a.logger}
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// SignUp registers a new user. The first account becomes an admin.
func (a *App) SignUp(ctx context.Context, req SignUpRequest) (Session, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return Session{}, ErrEmailAndPasswordRequired
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return Session{}, err
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return Session{}, err
	}
	first, last := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if len([]rune(first)) > maxNameLength || len([]rune(last)) > maxNameLength {
		return Session{}, ErrNameTooLong
	}
	exists, err := a.users.HasUserEmail(email)
	if err != nil {
		return Session{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return Session{}, ErrEmailAlreadyExists
	}
	count, err := a.users.UserCount()
	if err != nil {
		return Session{}, fmt.Errorf("count users: %w", err)
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	role := domain.RoleUser
	if count == 0 {
		role = domain.RoleAdmin
	}
	now := a.now().UTC()
	user := domain.User{
		ID:           util.NewEntityID(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    first,
		LastName:     last,
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.users.SaveUser(user); err != nil {
		return Session{}, fmt.Errorf("save user: %w", err)
	}
	a.claimApplication(ctx, user, req.TempUserID)
	return a.issueSession(ctx, user)
}

// claimApplication asks the portal to link the pre-qualification. The
// portal also creates the application lazily, so failures are logged only.
func (a *App) claimApplication(ctx context.Context, user domain.User, tempUserID string) {
	if a.portal == nil || user.IsAdmin() {
		return
	}
	claimCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), claimTimeout)
	defer cancel()
	if err := a.portal.ClaimApplication(claimCtx, user, tempUserID); err != nil {
		a.log(ctx).Warn("application claim failed", "user_id", user.ID, "temp_user_id", tempUserID, "err", err)
	}
}

// Login validates credentials and issues a session.
func (a *App) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrEmailAndPasswordRequired
	}
	user, ok, err := a.users.GetUserByEmail(email)
	if err != nil {
		return Session{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	if user.Status == domain.StatusDisabled {
		return Session{}, ErrUserDisabled
	}
	return a.issueSession(ctx, user)
}

// Refresh rotates the refresh token and issues a new pair.
func (a *App) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, ErrRefreshTokenRequired
	}
	userID, next, err := a.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) || errors.Is(err, session.ErrRefreshTokenReplay) {
			if errors.Is(err, session.ErrRefreshTokenReplay) {
				a.log(ctx).Warn("refresh token replay, family revoked", "user_id", userID)
			}
			return Session{}, ErrInvalidRefreshToken
		}
		return Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	user, found, err := a.users.GetUserByID(userID)
	if err != nil {
		return Session{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found || user.Status == domain.StatusDisabled {
		_ = a.refresh.Revoke(ctx, next)
		return Session{}, ErrInvalidRefreshToken
	}
	access, expires, err := a.tokens.Issue(user)
	if err != nil {
		_ = a.refresh.Revoke(ctx, next)
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	return Session{User: user, TokenPair: TokenPair{
		AccessToken:  access,
		RefreshToken: next,
		TokenType:    "Bearer",
		ExpiresAt:    expires,
	}}, nil
}

// Logout revokes the access token and, when given, its refresh family.
func (a *App) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := a.tokens.Revoke(ctx, accessToken); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	if err := a.refresh.Revoke(ctx, strings.TrimSpace(refreshToken)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Authenticate resolves an active user from an access token.
func (a *App) Authenticate(ctx context.Context, accessToken string) (domain.User, error) {
	claims, err := a.tokens.Verify(ctx, accessToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrTokenRevoked) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("verify token: %w", err)
	}
	user, ok, err := a.users.GetUserByID(claims.Subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || user.Status == domain.StatusDisabled {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// UpdateMe changes the caller's email or name.
func (a *App) UpdateMe(ctx context.Context, user domain.User, req UpdateMeRequest) (domain.User, error) {
	changed := false
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return domain.User{}, err
		}
		if email != user.Email {
			existing, ok, err := a.users.GetUserByEmail(email)
			if err != nil {
				return domain.User{}, fmt.Errorf("check email: %w", err)
			}
			if ok && existing.ID != user.ID {
				return domain.User{}, ErrEmailAlreadyExists
			}
			user.Email = email
			changed = true
		}
	}
	for _, f := range []struct {
		in  *string
		out *string
	}{{req.FirstName, &user.FirstName}, {req.LastName, &user.LastName}} {
		if f.in == nil {
			continue
		}
		v := strings.TrimSpace(*f.in)
		if len([]rune(v)) > maxNameLength {
			return domain.User{}, ErrNameTooLong
		}
		if v != *f.out {
			*f.out = v
			changed = true
		}
	}
	if !changed {
		return user, nil
	}
	user.UpdatedAt = a.now().UTC()
	if err := a.users.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	a.log(ctx).Info("profile updated", "user_id", user.ID)
	return user, nil
}

// ChangePassword updates the password after verifying the current one and
// signs the user out everywhere.
func (a *App) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if strings.TrimSpace(currentPassword) == "" {
		return ErrCurrentPasswordRequired
	}
	if strings.TrimSpace(newPassword) == "" {
		return ErrNewPasswordRequired
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	user, ok, err := a.users.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	if user.Status == domain.StatusDisabled {
		return ErrUserDisabled
	}
	if !auth.CheckPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return ErrPasswordUnchanged
	}
	return a.setPassword(ctx, user, newPassword)
}

// RequestPasswordReset sends a reset code when the account exists. Unknown
// or disabled accounts succeed silently.
func (a *App) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	user, ok, err := a.users.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok || user.Status == domain.StatusDisabled {
		a.log(ctx).Info("password reset requested for unknown account")
		return nil
	}
	code, err := a.resets.Issue(ctx, email)
	if err != nil {
		return fmt.Errorf("issue reset code: %w", err)
	}
	if err := a.sender.SendResetCode(ctx, email, code); err != nil {
		return fmt.Errorf("send reset code: %w", err)
	}
	return nil
}

// ConfirmPasswordReset sets a new password when code matches.
func (a *App) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if strings.TrimSpace(newPassword) == "" {
		return ErrNewPasswordRequired
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	if err := a.resets.Consume(ctx, email, code); err != nil {
		switch {
		case errors.Is(err, session.ErrResetCodeInvalid):
			return ErrResetCodeInvalid
		case errors.Is(err, session.ErrResetCodeLocked):
			return ErrResetLocked
		default:
			return fmt.Errorf("check reset code: %w", err)
		}
	}
	user, ok, err := a.users.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok || user.Status == domain.StatusDisabled {
		return ErrResetCodeInvalid
	}
	return a.setPassword(ctx, user, newPassword)
}

// JWKS publishes the access-token verification keys.
func (a *App) JWKS() usertoken.JWKS {
	return a.tokens.JWKS()
}

// ListUsers returns all users (admin use only).
func (a *App) ListUsers() ([]domain.User, error) {
	return a.users.ListUsers()
}

// AdminUpdateUser allows admins to change role/status.
func (a *App) AdminUpdateUser(ctx context.Context, admin domain.User, userID string, role *domain.UserRole, status *domain.UserStatus) (domain.User, error) {
	if role == nil && status == nil {
		return domain.User{}, ErrNothingToUpdate
	}
	if role != nil && *role != domain.RoleUser && *role != domain.RoleAdmin {
		return domain.User{}, ErrInvalidRole
	}
	if status != nil && *status != domain.StatusActive && *status != domain.StatusDisabled {
		return domain.User{}, ErrInvalidStatus
	}
	target, ok, err := a.users.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	if target.ID == admin.ID {
		if (role != nil && *role != admin.Role) || (status != nil && *status == domain.StatusDisabled) {
			return domain.User{}, ErrCannotChangeSelf
		}
	}
	roleChanged := role != nil && *role != target.Role
	if role != nil {
		target.Role = *role
	}
	if status != nil {
		target.Status = *status
	}
	target.UpdatedAt = a.now().UTC()
	if err := a.users.SaveUser(target); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	// Tokens carry the role, so a role change also ends existing sessions.
	if roleChanged || (status != nil && *status == domain.StatusDisabled) {
		if err := a.revokeAll(ctx, target.ID, target.UpdatedAt); err != nil {
			return domain.User{}, fmt.Errorf("revoke user tokens: %w", err)
		}
	}
	a.log(ctx).Info("user updated by admin", "admin_id", admin.ID, "user_id", target.ID, "role", string(target.Role), "status", string(target.Status))
	return target, nil
}

func (a *App) issueSession(ctx context.Context, user domain.User) (Session, error) {
	access, expires, err := a.tokens.Issue(user)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := a.refresh.Issue(ctx, user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return Session{User: user, TokenPair: TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    expires,
	}}, nil
}

func (a *App) setPassword(ctx context.Context, user domain.User, newPassword string) error {
	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	revokeSince := a.now().UTC()
	user.PasswordHash = passwordHash
	user.UpdatedAt = revokeSince
	if err := a.users.SaveUser(user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := a.revokeAll(ctx, user.ID, revokeSince); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (a *App) revokeAll(ctx context.Context, userID string, since time.Time) error {
	if err := a.tokens.RevokeUser(ctx, userID, since); err != nil {
		return err
	}
	return a.refresh.RevokeUser(ctx, userID)
}

func (a *App) log(ctx context.Context) *slog.Logger {
	if l := util.LoggerFromContext(ctx); l != slog.Default() {
		return l
	}
	return a.logger
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrEmailInvalid
	}
	return email, nil
}
