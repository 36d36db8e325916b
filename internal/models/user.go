package models

import "time"

// User is an account identified by email. Accounts are provisioned on first
// login; Password is only set for users who registered with one.
type User struct {
	BaseModel

	Email    string `gorm:"uniqueIndex;size:254;not null" json:"email"`
	Password string `json:"-"`
	IsAdmin  bool   `gorm:"not null;default:false" json:"is_admin"`
	IsActive bool   `gorm:"not null;default:true" json:"is_active"`

	LastLoginAt *time.Time `gorm:"index" json:"last_login_at"`

	Secrets []Secret       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Codes   []OneTimeCode  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Tokens  []SessionToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
