package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the persisted account record. The password hash and the reset
// fields never leave the server.
type User struct {
	ID                   string     `json:"id"`
	Nickname             string     `json:"nickname"`
	Email                *string    `json:"email,omitempty"`
	PasswordHash         string     `json:"-"`
	Role                 string     `json:"role"`
	IsActive             bool       `json:"is_active"`
	FailedLoginAttempts  int        `json:"-"`
	LockedUntil          *time.Time `json:"-"`
	PasswordResetToken   *string    `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`
	LastLoginAt          *time.Time `json:"last_login_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsLocked reports whether the lockout window is still open.
func (u User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

func (u User) Public() AuthUser {
	return AuthUser{ID: u.ID, Nickname: u.Nickname, Email: u.Email, Role: u.Role}
}

type AuthClaims struct {
	UserID   string `json:"sub"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
	Type     string `json:"typ"`
	TokenID  string `json:"jti"`
}

// AuthUser is the public projection of a User returned by auth endpoints.
type AuthUser struct {
	ID       string  `json:"id"`
	Nickname string  `json:"nickname"`
	Email    *string `json:"email,omitempty"`
	Role     string  `json:"role"`
}

type TokenPair struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         AuthUser `json:"user"`
}
