package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"

	"go-chat-server/internal/model"
	"go-chat-server/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// writeError is the single boundary translator from domain errors to HTTP
// status codes. Unexpected errors are logged with full detail and reported;
// the client only sees a generic message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.Is(err, model.ErrCaptchaInvalid):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid or expired captcha"
	case errors.Is(err, model.ErrNicknameTaken):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Nickname already exists"
	case errors.Is(err, model.ErrEmailTaken):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Email already exists"
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid credentials"
	case errors.Is(err, model.ErrAccessTokenExpired):
		status = http.StatusUnauthorized
		body.Code = "TOKEN_EXPIRED"
		body.Message = "Access token expired"
	case errors.Is(err, model.ErrAccessTokenInvalid):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid access token"
	case errors.Is(err, model.ErrRefreshTokenReused):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Token reuse detected, all sessions revoked"
	case errors.Is(err, model.ErrRefreshTokenInvalid):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid refresh token"
	case errors.Is(err, model.ErrResetTokenInvalid):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid or expired reset token"
	case errors.Is(err, model.ErrAccountDeactivated):
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Account is deactivated"
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Access denied"
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	case errors.Is(err, model.ErrMessageNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Message not found"
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
		sentry.CaptureException(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}
