package model

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type CaptchaResponse struct {
	CaptchaID string `json:"captcha_id"`
	// CaptchaText is only populated outside production so frontends can be
	// exercised without an image renderer.
	CaptchaText string `json:"captcha_text,omitempty"`
}

type AuthResponse struct {
	User        AuthUser `json:"user"`
	AccessToken string   `json:"access_token"`
}

type DashboardOverview struct {
	TotalUsers     int `json:"total_users"`
	ActiveUsers    int `json:"active_users"`
	TotalMessages  int `json:"total_messages"`
	ActiveSessions int `json:"active_sessions"`
}

type DashboardResponse struct {
	Overview    DashboardOverview `json:"overview"`
	RecentUsers []AuthUser        `json:"recent_users"`
}
