package model

type RegisterRequest struct {
	Nickname    string `json:"nickname"`
	Password    string `json:"password"`
	Email       string `json:"email,omitempty"`
	CaptchaID   string `json:"captcha_id"`
	CaptchaText string `json:"captcha_text"`
}

type LoginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RequestPasswordResetRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type UpdateUserRoleRequest struct {
	Role string `json:"role"`
}

type UpdateUserStatusRequest struct {
	IsActive bool `json:"is_active"`
}
