package models

import "time"

// OneTimeCode is an emailed login code. Only the SHA-256 digest is stored.
type OneTimeCode struct {
	BaseModel

	UserID    string     `gorm:"type:uuid;not null;index" json:"user_id"`
	CodeHash  string     `gorm:"size:64;not null;index" json:"-"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	IsUsed    bool       `gorm:"not null;default:false;index" json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// IsExpired reports whether now is strictly after the expiry instant.
func (c *OneTimeCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
