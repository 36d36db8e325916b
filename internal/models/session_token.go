package models

import "time"

// SessionToken is a short-lived bearer credential minted after OTP verification.
type SessionToken struct {
	BaseModel

	UserID     string     `gorm:"type:uuid;not null;index" json:"user_id"`
	Key        string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// IsExpired reports whether now is strictly after the expiry instant.
func (t *SessionToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
