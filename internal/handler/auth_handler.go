package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go-chat-server/internal/middleware"
	"go-chat-server/internal/model"
	"go-chat-server/internal/service"
	"go-chat-server/pkg/apierror"
)

type AuthHandler struct {
	service    *service.AuthService
	captcha    *service.CaptchaService
	cookies    cookieWriter
	revealText bool
}

func NewAuthHandler(authService *service.AuthService, captcha *service.CaptchaService,
	secureCookies bool, revealCaptchaText bool, accessTTL time.Duration, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		service:    authService,
		captcha:    captcha,
		revealText: revealCaptchaText,
		cookies: cookieWriter{
			secure:     secureCookies,
			accessTTL:  accessTTL,
			refreshTTL: refreshTTL,
		},
	}
}

func (h *AuthHandler) Captcha(w http.ResponseWriter, _ *http.Request) {
	id, text, err := h.captcha.Generate()
	if err != nil {
		writeError(w, err)
		return
	}

	resp := model.CaptchaResponse{CaptchaID: id}
	if h.revealText {
		resp.CaptchaText = text
	}

	writeSuccess(w, http.StatusOK, resp, nil)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	pair, err := h.service.Register(r.Context(), payload, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setAuthCookies(w, pair.AccessToken, pair.RefreshToken)
	writeSuccess(w, http.StatusCreated, model.AuthResponse{User: pair.User, AccessToken: pair.AccessToken}, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	pair, err := h.service.Login(r.Context(), payload.Nickname, payload.Password,
		middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setAuthCookies(w, pair.AccessToken, pair.RefreshToken)
	writeSuccess(w, http.StatusOK, model.AuthResponse{User: pair.User, AccessToken: pair.AccessToken}, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&payload)

	token := refreshTokenFrom(r, strings.TrimSpace(payload.RefreshToken))
	if token == "" {
		writeError(w, apierror.Validation("refresh token is required", "refresh_token"))
		return
	}

	pair, err := h.service.Refresh(r.Context(), token, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setAuthCookies(w, pair.AccessToken, pair.RefreshToken)
	writeSuccess(w, http.StatusOK, model.AuthResponse{User: pair.User, AccessToken: pair.AccessToken}, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&payload)

	token := refreshTokenFrom(r, strings.TrimSpace(payload.RefreshToken))
	if token == "" {
		writeError(w, apierror.Validation("refresh token is required", "refresh_token"))
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		h.cookies.clearAuthCookies(w)
		writeError(w, err)
		return
	}

	h.cookies.clearAuthCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	if err := h.service.LogoutAll(r.Context(), claims.UserID); err != nil {
		writeError(w, err)
		return
	}

	h.cookies.clearAuthCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user.Public(), nil)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RequestPasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	payload.Email = strings.TrimSpace(payload.Email)
	if payload.Email == "" {
		writeError(w, apierror.Validation("email is required", "email"))
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), payload.Email); err != nil {
		writeError(w, err)
		return
	}

	// Same response whether or not the email exists.
	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "If the email exists, a reset link will be sent",
	}, nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	if strings.TrimSpace(payload.Token) == "" {
		writeError(w, apierror.Validation("token is required", "token"))
		return
	}

	if err := h.service.ResetPassword(r.Context(), payload.Token, payload.Password); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"message": "Password reset successful"}, nil)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	defer r.Body.Close()

	var payload model.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	if err := h.service.ChangePassword(r.Context(), claims.UserID, payload.CurrentPassword, payload.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"message": "Password changed successfully"}, nil)
}
