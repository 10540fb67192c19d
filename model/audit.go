package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one mutating API operation.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"size:64;index" json:"trace_id"`
	AccountID  *int64         `gorm:"index" json:"account_id"`
	Action     string         `gorm:"size:64;index" json:"action"`
	ResourceID string         `gorm:"size:36;index" json:"resource_id"`
	Request    datatypes.JSON `json:"request"`
	Error      string         `gorm:"size:255" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
