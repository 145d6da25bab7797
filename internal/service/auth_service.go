package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-chat-server/internal/model"
	"go-chat-server/pkg/apierror"
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
)

var (
	nicknameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)
	emailRegex    = regexp.MustCompile(`^\S+@\S+\.\S+$`)
)

// UserStore is the persistence contract for user records. The lockout policy
// itself lives in AuthService; the store only writes the computed state.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByNickname(ctx context.Context, nickname string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	UpdateLoginAttempts(ctx context.Context, userID string, attempts int, lockedUntil *time.Time) error
	RecordSuccessfulLogin(ctx context.Context, userID string) error
	SetResetToken(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, userID string, passwordHash string) error
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
}

// ResetMailer delivers password reset tokens. Failures are logged, never
// surfaced to the caller.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, email string, token string) error
}

type AuthService struct {
	users              UserStore
	tokens             *TokenService
	captcha            *CaptchaService
	mailer             ResetMailer
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
	resetTokenTTL      time.Duration
	now                func() time.Time
}

func NewAuthService(users UserStore, tokens *TokenService, captcha *CaptchaService, mailer ResetMailer,
	lockoutMaxAttempts int, lockoutDuration time.Duration, resetTokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:              users,
		tokens:             tokens,
		captcha:            captcha,
		mailer:             mailer,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
		resetTokenTTL:      resetTokenTTL,
		now:                time.Now,
	}
}

// Register validates the captcha (consuming it either way), creates the user
// and issues a token pair.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest, ip string, userAgent string) (model.TokenPair, error) {
	if !s.captcha.Validate(req.CaptchaID, req.CaptchaText) {
		return model.TokenPair{}, model.ErrCaptchaInvalid
	}

	nickname := strings.TrimSpace(req.Nickname)
	if !nicknameRegex.MatchString(nickname) {
		return model.TokenPair{}, apierror.Validation(
			"nickname must be 3-30 characters of letters, numbers, hyphens and underscores", "nickname")
	}
	if len(req.Password) < minPasswordLength {
		return model.TokenPair{}, apierror.Validation("password must be at least 8 characters", "password")
	}

	var email *string
	if trimmed := strings.ToLower(strings.TrimSpace(req.Email)); trimmed != "" {
		if !emailRegex.MatchString(trimmed) {
			return model.TokenPair{}, apierror.Validation("invalid email address", "email")
		}
		email = &trimmed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Nickname:     nickname,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.TokenPair{}, err
	}

	slog.Info("user registered", "user_id", user.ID, "nickname", user.Nickname)
	return s.issuePair(ctx, user, ip, userAgent)
}

// Login verifies credentials under the lockout policy. Unknown nickname and
// wrong password produce the same error so accounts cannot be enumerated.
func (s *AuthService) Login(ctx context.Context, nickname string, password string, ip string, userAgent string) (model.TokenPair, error) {
	user, err := s.users.FindByNickname(ctx, nickname)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.TokenPair{}, err
	}

	now := s.now()
	if user.IsLocked(now) {
		remaining := int(user.LockedUntil.Sub(now).Minutes()) + 1
		return model.TokenPair{}, apierror.Forbidden(
			fmt.Sprintf("account locked, try again in %d minutes", remaining))
	}

	if !user.IsActive {
		return model.TokenPair{}, model.ErrAccountDeactivated
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if recordErr := s.recordFailedLogin(ctx, user); recordErr != nil {
			return model.TokenPair{}, recordErr
		}
		slog.Warn("failed login attempt", "user_id", user.ID, "nickname", user.Nickname, "ip", ip)
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	if err := s.users.RecordSuccessfulLogin(ctx, user.ID); err != nil {
		return model.TokenPair{}, err
	}

	slog.Info("user logged in", "user_id", user.ID, "nickname", user.Nickname)
	return s.issuePair(ctx, user, ip, userAgent)
}

// recordFailedLogin applies the lockout policy: crossing the threshold locks
// the account for the lockout window; a failure after an expired lock starts
// a fresh count at 1.
func (s *AuthService) recordFailedLogin(ctx context.Context, user model.User) error {
	now := s.now()

	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		return s.users.UpdateLoginAttempts(ctx, user.ID, 1, nil)
	}

	attempts := user.FailedLoginAttempts + 1
	lockedUntil := user.LockedUntil
	if attempts >= s.lockoutMaxAttempts && !user.IsLocked(now) {
		until := now.Add(s.lockoutDuration)
		lockedUntil = &until
		slog.Warn("account locked after repeated failures",
			"user_id", user.ID, "attempts", attempts, "until", until)
	}

	return s.users.UpdateLoginAttempts(ctx, user.ID, attempts, lockedUntil)
}

// Refresh rotates the presented refresh token and issues a new access token.
// Rotation errors, including reuse detection, surface unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, ip string, userAgent string) (model.TokenPair, error) {
	userID, newRefresh, err := s.tokens.Rotate(ctx, refreshToken, ip, userAgent)
	if err != nil {
		return model.TokenPair{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, model.ErrRefreshTokenInvalid
	}
	if err != nil {
		return model.TokenPair{}, err
	}
	if !user.IsActive {
		return model.TokenPair{}, model.ErrAccountDeactivated
	}

	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		User:         user.Public(),
	}, nil
}

// Logout revokes one session. Revoking an already-dead token fails loudly so
// callers know the session was already gone.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, refreshToken)
}

func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		return err
	}
	slog.Info("user logged out everywhere", "user_id", userID)
	return nil
}

func (s *AuthService) GetCurrentUser(ctx context.Context, userID string) (model.User, error) {
	return s.users.FindByID(ctx, userID)
}

// RequestPasswordReset always reports success so email addresses cannot be
// probed. The raw token goes to the mailer; only its digest is stored.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		slog.Warn("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	rawToken := hex.EncodeToString(buf)

	if err := s.users.SetResetToken(ctx, user.ID, hashResetToken(rawToken), s.now().Add(s.resetTokenTTL)); err != nil {
		return err
	}

	slog.Info("password reset requested", "user_id", user.ID)

	if user.Email != nil && s.mailer != nil {
		if err := s.mailer.SendPasswordReset(ctx, *user.Email, rawToken); err != nil {
			slog.Error("failed to send password reset email", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

// ResetPassword verifies the presented token by digest, installs the new
// password and clears reset plus lockout state.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken string, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apierror.Validation("password must be at least 8 characters", "password")
	}

	user, err := s.users.FindByResetTokenHash(ctx, hashResetToken(rawToken))
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.ResetPassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	slog.Info("password reset completed", "user_id", user.ID)
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID string, currentPassword string, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apierror.Validation("password must be at least 8 characters", "password")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return apierror.Unauthorized("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	slog.Info("password changed", "user_id", userID)
	return nil
}

func (s *AuthService) issuePair(ctx context.Context, user model.User, ip string, userAgent string) (model.TokenPair, error) {
	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return model.TokenPair{}, err
	}

	refresh, err := s.tokens.IssueRefresh(ctx, user.ID, ip, userAgent)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		User:         user.Public(),
	}, nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
