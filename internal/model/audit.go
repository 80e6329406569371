package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is an append-only record of a state-changing operation.
// Failures are logged too, with Success=false and the error text in Detail.
type AuditLogEntry struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	EmailID   string    `json:"email_id" gorm:"type:varchar(36);index"`
	Action    string    `json:"action" gorm:"type:varchar(64);not null;index"`
	Actor     string    `json:"actor" gorm:"type:varchar(16);not null"` // ai, user, rule, system
	Detail    string    `json:"detail" gorm:"type:text"`
	Success   bool      `json:"success" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for AuditLogEntry.
func (AuditLogEntry) TableName() string {
	return "audit_log"
}

// NewAuditEntry creates a successful audit entry; callers flip Success and
// append error detail for failure records.
func NewAuditEntry(emailID, action, actor, detail string) *AuditLogEntry {
	return &AuditLogEntry{
		ID:        uuid.New().String(),
		EmailID:   emailID,
		Action:    action,
		Actor:     actor,
		Detail:    detail,
		Success:   true,
		CreatedAt: time.Now().UTC(),
	}
}

// Audit actor values.
const (
	ActorAI     = "ai"
	ActorUser   = "user"
	ActorRule   = "rule"
	ActorSystem = "system"
)
