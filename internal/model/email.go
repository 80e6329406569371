package model

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StringList is a []string persisted as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

// EmailRecord represents one inbound message tracked through its lifecycle.
// (MessageID, Mailbox) is the natural unique key: re-ingestion of the same
// provider message is an upsert, never a duplicate row.
type EmailRecord struct {
	ID        string `json:"id" gorm:"type:varchar(36);primaryKey"`
	MessageID string `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_message_mailbox"`
	Mailbox   string `json:"mailbox" gorm:"type:varchar(255);not null;uniqueIndex:idx_message_mailbox"`
	ThreadID  string `json:"thread_id" gorm:"type:varchar(255);index"`

	SenderEmail    string     `json:"sender_email" gorm:"type:varchar(320);not null;index"`
	SenderName     string     `json:"sender_name" gorm:"type:varchar(255)"`
	ToRecipients   StringList `json:"to_recipients" gorm:"type:text"`
	CcRecipients   StringList `json:"cc_recipients" gorm:"type:text"`
	Subject        string     `json:"subject" gorm:"type:varchar(998);not null"`
	BodyPreview    string     `json:"body_preview" gorm:"type:text"`
	BodyFull       string     `json:"body_full" gorm:"type:mediumtext"`
	ReceivedAt     time.Time  `json:"received_at" gorm:"not null;index"`
	HasAttachments bool       `json:"has_attachments" gorm:"default:false"`
	Importance     string     `json:"importance" gorm:"type:varchar(16);default:'normal'"`

	State     EmailState    `json:"state" gorm:"type:varchar(32);not null;default:'new';index"`
	Category  EmailCategory `json:"category" gorm:"type:varchar(32)"`
	Priority  int           `json:"priority" gorm:"default:3"`
	SpamScore int           `json:"spam_score" gorm:"default:0"`
	Summary   string        `json:"summary" gorm:"type:text"`

	IsVIP            bool   `json:"is_vip" gorm:"column:is_vip;default:false"`
	ThreadContext    string `json:"thread_context" gorm:"type:text"`
	AutoSendEligible bool   `json:"auto_send_eligible" gorm:"default:false"`

	CurrentDraft  string     `json:"current_draft" gorm:"type:text"`
	DraftVersions StringList `json:"draft_versions" gorm:"type:text"`
	DraftMode     DraftMode  `json:"draft_mode" gorm:"type:varchar(16);default:'professional'"`
	ApprovalToken string     `json:"approval_token" gorm:"type:varchar(6);index"`

	ChatMessageID string `json:"chat_message_id" gorm:"type:varchar(255)"`
	ChatThreadID  string `json:"chat_thread_id" gorm:"type:varchar(255)"`

	FollowUpAt            *time.Time `json:"follow_up_at"`
	FollowUpNote          string     `json:"follow_up_note" gorm:"type:text"`
	FollowUpRemindedCount int        `json:"follow_up_reminded_count" gorm:"default:0"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SentAt    *time.Time `json:"sent_at"`
	HandledBy string     `json:"handled_by" gorm:"type:varchar(16);default:'pending'"`

	ErrorMessage string `json:"error_message" gorm:"type:text"`
	RetryCount   int    `json:"retry_count" gorm:"default:0"`
}

// TableName specifies the table name for EmailRecord.
func (EmailRecord) TableName() string {
	return "emails"
}

// NewEmailRecord creates a record in the NEW state for an ingested message.
func NewEmailRecord(messageID, mailbox string) *EmailRecord {
	now := time.Now().UTC()
	return &EmailRecord{
		ID:         uuid.New().String(),
		MessageID:  messageID,
		Mailbox:    mailbox,
		State:      StateNew,
		Priority:   3,
		Importance: "normal",
		DraftMode:  ModeProfessional,
		HandledBy:  HandledByPending,
		ReceivedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the email to target, enforcing the state machine.
// StateError is always reachable; everything else must be in the
// allowed-successor set or an *InvalidTransitionError is returned.
func (e *EmailRecord) Transition(target EmailState) error {
	if !CanTransition(e.State, target) {
		return &InvalidTransitionError{From: e.State, To: target}
	}
	e.State = target
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// ForceState sets the state without consulting the transition table. Only the
// user-override states (follow_up, acknowledged) go through here; classifier
// paths must use Transition.
func (e *EmailRecord) ForceState(target EmailState) {
	e.State = target
	e.UpdatedAt = time.Now().UTC()
}

// GenerateApprovalToken issues a fresh 6-hex-char single-use token. A new
// token is issued on every draft generation so stale approvals cannot fire.
func (e *EmailRecord) GenerateApprovalToken() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to uuid bytes
		u := uuid.New()
		copy(b, u[:3])
	}
	e.ApprovalToken = hex.EncodeToString(b)
	return e.ApprovalToken
}

// AddDraftVersion pushes the current draft into history and installs draft.
func (e *EmailRecord) AddDraftVersion(draft string) {
	if e.CurrentDraft != "" {
		e.DraftVersions = append(e.DraftVersions, e.CurrentDraft)
	}
	e.CurrentDraft = draft
	e.UpdatedAt = time.Now().UTC()
}

// SenderDomain returns the lowercased domain part of the sender address.
func (e *EmailRecord) SenderDomain() string {
	addr := strings.ToLower(e.SenderEmail)
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return ""
}

// SenderDisplay returns the sender name, falling back to the address.
func (e *EmailRecord) SenderDisplay() string {
	if e.SenderName != "" {
		return e.SenderName
	}
	return e.SenderEmail
}
