package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

// IsMessageProcessed reports whether (messageID, mailbox) has been fully
// handled in a previous cycle.
func (s *Store) IsMessageProcessed(messageID, mailbox string) (bool, error) {
	var processed model.ProcessedMessage
	result := s.db.Where("message_id = ? AND mailbox = ?", messageID, mailbox).First(&processed)
	if result.Error == nil {
		return true, nil
	}
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check processed ledger: %w", result.Error)
}

// MarkMessageProcessed writes the idempotency ledger row. Written only after
// handling completes, so a crash mid-email leads to a retry, not a skip.
func (s *Store) MarkMessageProcessed(messageID, mailbox string) error {
	processed := model.ProcessedMessage{
		MessageID:   messageID,
		Mailbox:     mailbox,
		ProcessedAt: time.Now().UTC(),
	}
	if result := s.db.Create(&processed); result.Error != nil {
		return fmt.Errorf("failed to mark message processed: %w", result.Error)
	}
	return nil
}

// IsSenderMuted checks the sender address, then its bare domain, against the
// muted-senders table. Expired mutes are ignored.
func (s *Store) IsSenderMuted(senderEmail string) (bool, error) {
	addr := strings.ToLower(senderEmail)
	domain := ""
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		domain = addr[i+1:]
	}
	var muted []model.MutedSender
	result := s.db.Where("pattern IN ?", []string{addr, domain}).Find(&muted)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check muted senders: %w", result.Error)
	}
	now := time.Now().UTC()
	for i := range muted {
		if muted[i].Active(now) {
			return true, nil
		}
	}
	return false, nil
}

// MuteSender adds or refreshes a mute for pattern (address or domain).
func (s *Store) MuteSender(pattern, reason string) (*model.MutedSender, error) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	var existing model.MutedSender
	result := s.db.Where("pattern = ?", pattern).First(&existing)
	if result.Error == nil {
		existing.Reason = reason
		existing.MutedAt = time.Now().UTC()
		existing.ExpiresAt = nil
		if result := s.db.Save(&existing); result.Error != nil {
			return nil, fmt.Errorf("failed to refresh mute: %w", result.Error)
		}
		return &existing, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up muted sender: %w", result.Error)
	}
	m := model.NewMutedSender(pattern, reason)
	if result := s.db.Create(m); result.Error != nil {
		return nil, fmt.Errorf("failed to mute sender: %w", result.Error)
	}
	return m, nil
}

// UnmuteSender removes a mute.
func (s *Store) UnmuteSender(pattern string) error {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	result := s.db.Delete(&model.MutedSender{}, "pattern = ?", pattern)
	if result.Error != nil {
		return fmt.Errorf("failed to unmute sender: %w", result.Error)
	}
	return nil
}

// GetMutedSenders lists all mutes.
func (s *Store) GetMutedSenders() ([]model.MutedSender, error) {
	var muted []model.MutedSender
	if result := s.db.Order("muted_at DESC").Find(&muted); result.Error != nil {
		return nil, fmt.Errorf("failed to list muted senders: %w", result.Error)
	}
	return muted, nil
}

// AppendAudit writes one audit entry. Audit writes never fail the operation
// they describe; callers log the returned error and continue.
func (s *Store) AppendAudit(entry *model.AuditLogEntry) error {
	if result := s.db.Create(entry); result.Error != nil {
		return fmt.Errorf("failed to append audit entry: %w", result.Error)
	}
	return nil
}

// GetAuditForEmail returns an email's audit trail, oldest first.
func (s *Store) GetAuditForEmail(emailID string) ([]model.AuditLogEntry, error) {
	var entries []model.AuditLogEntry
	result := s.db.Where("email_id = ?", emailID).Order("created_at ASC").Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", result.Error)
	}
	return entries, nil
}
