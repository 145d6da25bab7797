package model

import "time"

// RefreshToken is the persisted session record. Only the sha256 digest of the
// opaque value is stored; the raw value crosses the wire exactly once.
type RefreshToken struct {
	ID          string     `json:"id"`
	TokenHash   string     `json:"-"`
	UserID      string     `json:"user_id"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Revoked     bool       `json:"revoked"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy  *string    `json:"replaced_by,omitempty"`
	CreatedByIP string     `json:"created_by_ip,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsActive reports whether the token may still be rotated. Revocation and
// expiry are both terminal.
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}
