package models

import "time"

// Session is the server-side record of one issued refresh token.
// Only the SHA-256 hash of the signed token is kept; the raw token
// travels to the client and never touches storage.
type Session struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	JTI       string    `json:"jti"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the session can still mint access tokens.
func (s Session) Active(now time.Time) bool {
	return !s.IsRevoked && s.ExpiresAt.After(now)
}
