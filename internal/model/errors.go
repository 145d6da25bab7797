package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrNicknameTaken      = errors.New("nickname already exists")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account is deactivated")

	// Access token errors; kept distinct so callers can message users
	// appropriately.
	ErrAccessTokenExpired = errors.New("access token expired")
	ErrAccessTokenInvalid = errors.New("invalid access token")

	// Refresh token errors
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
	ErrRefreshTokenReused  = errors.New("refresh token reuse detected")

	// Password reset errors
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")

	// Captcha errors
	ErrCaptchaInvalid = errors.New("invalid or expired captcha")

	// Chat errors
	ErrMessageNotFound = errors.New("message not found")
	ErrForbidden       = errors.New("forbidden")
)
