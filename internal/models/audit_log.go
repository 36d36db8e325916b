package models

import "gorm.io/datatypes"

// Audit results.
const (
	AuditResultSuccess = "success"
	AuditResultFailure = "failure"
)

// AuditLog records security relevant events. It never holds secret material.
type AuditLog struct {
	BaseModel

	UserID    *string           `gorm:"type:uuid;index" json:"user_id"`
	Action    string            `gorm:"size:64;not null;index" json:"action"`
	Resource  string            `gorm:"size:128;index" json:"resource"`
	Result    string            `gorm:"size:16;not null" json:"result"`
	IPAddress string            `gorm:"size:64" json:"ip_address"`
	UserAgent string            `gorm:"size:512" json:"user_agent"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
}
