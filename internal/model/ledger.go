package model

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedMessage is the ingestion idempotency ledger. A row is written only
// after an email has been fully handled; messages present here are skipped on
// subsequent polls even across restarts.
type ProcessedMessage struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID   string    `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_processed_message_mailbox"`
	Mailbox     string    `json:"mailbox" gorm:"type:varchar(255);not null;uniqueIndex:idx_processed_message_mailbox"`
	ProcessedAt time.Time `json:"processed_at" gorm:"not null"`
}

// TableName specifies the table name for ProcessedMessage.
func (ProcessedMessage) TableName() string {
	return "processed_messages"
}

// MutedSender suppresses all handling for a sender. Pattern is either a full
// address or a bare domain; muted mail is archived silently with no AI calls.
type MutedSender struct {
	ID        string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	Pattern   string     `json:"pattern" gorm:"type:varchar(320);not null;uniqueIndex"`
	Reason    string     `json:"reason" gorm:"type:varchar(500)"`
	MutedAt   time.Time  `json:"muted_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// TableName specifies the table name for MutedSender.
func (MutedSender) TableName() string {
	return "muted_senders"
}

// NewMutedSender mutes pattern indefinitely.
func NewMutedSender(pattern, reason string) *MutedSender {
	return &MutedSender{
		ID:      uuid.New().String(),
		Pattern: pattern,
		Reason:  reason,
		MutedAt: time.Now().UTC(),
	}
}

// Active reports whether the mute is still in force at now.
func (m *MutedSender) Active(now time.Time) bool {
	return m.ExpiresAt == nil || now.Before(*m.ExpiresAt)
}

// Setting is a generic durable key-value row. The coordinator keeps its
// restart-critical coordination state here: the morning-summary-sent marker,
// the notification dedup map, and the summary ordinal map.
type Setting struct {
	Key       string    `json:"key" gorm:"type:varchar(128);primaryKey"`
	Value     string    `json:"value" gorm:"type:mediumtext"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// Well-known settings keys.
const (
	SettingMorningSummaryDate = "morning_summary_sent_date"
	SettingDedupState         = "notification_dedup_state"
	SettingSummaryOrdinals    = "summary_ordinal_map"
	SettingPendingDigest      = "pending_digest_email_ids"
	SettingChatWatermark      = "chat_reply_watermark"
)
