package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

// UpsertEmail inserts the record, or refreshes the mutable message fields when
// a row with the same (message_id, mailbox) already exists. The lifecycle
// columns are deliberately excluded from the update set so a re-ingested
// message never resets its own state.
func (s *Store) UpsertEmail(e *model.EmailRecord) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "message_id"}, {Name: "mailbox"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sender_email", "sender_name", "subject", "body_preview", "body_full",
			"has_attachments", "importance", "updated_at",
		}),
	}).Create(e)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert email: %w", result.Error)
	}
	return nil
}

// SaveEmail persists all columns of an existing record.
func (s *Store) SaveEmail(e *model.EmailRecord) error {
	if result := s.db.Save(e); result.Error != nil {
		return fmt.Errorf("failed to save email: %w", result.Error)
	}
	return nil
}

// GetEmail loads an email by internal id.
func (s *Store) GetEmail(id string) (*model.EmailRecord, error) {
	var e model.EmailRecord
	result := s.db.Where("id = ?", id).First(&e)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get email: %w", result.Error)
	}
	return &e, nil
}

// GetEmailByMessageID loads an email by its provider identity.
func (s *Store) GetEmailByMessageID(messageID, mailbox string) (*model.EmailRecord, error) {
	var e model.EmailRecord
	result := s.db.Where("message_id = ? AND mailbox = ?", messageID, mailbox).First(&e)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get email by message id: %w", result.Error)
	}
	return &e, nil
}

// GetEmailByToken resolves an approval token. Only emails still awaiting
// approval match; a spent or regenerated token resolves to nothing.
func (s *Store) GetEmailByToken(token string) (*model.EmailRecord, error) {
	var e model.EmailRecord
	result := s.db.Where("approval_token = ? AND state = ?", token, model.StateAwaitingApproval).First(&e)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get email by token: %w", result.Error)
	}
	return &e, nil
}

// GetEmailsByState lists emails in a state, newest first.
func (s *Store) GetEmailsByState(state model.EmailState, limit int) ([]model.EmailRecord, error) {
	var emails []model.EmailRecord
	q := s.db.Where("state = ?", state).Order("received_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if result := q.Find(&emails); result.Error != nil {
		return nil, fmt.Errorf("failed to list emails by state: %w", result.Error)
	}
	return emails, nil
}

// GetStuckNewEmails returns emails left in the NEW state by a crash mid-cycle,
// oldest first, so they are re-run before fresh mail.
func (s *Store) GetStuckNewEmails() ([]model.EmailRecord, error) {
	var emails []model.EmailRecord
	result := s.db.Where("state = ?", model.StateNew).Order("received_at ASC").Find(&emails)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list stuck emails: %w", result.Error)
	}
	return emails, nil
}

// GetLatestAwaitingApproval returns the most recently updated email awaiting
// approval, used to resolve bare approve/edit commands with no token.
func (s *Store) GetLatestAwaitingApproval() (*model.EmailRecord, error) {
	var e model.EmailRecord
	result := s.db.Where("state = ?", model.StateAwaitingApproval).
		Order("updated_at DESC").First(&e)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get latest awaiting email: %w", result.Error)
	}
	return &e, nil
}

// GetThreadEmails returns previously stored emails in the same thread,
// excluding the given record, newest first.
func (s *Store) GetThreadEmails(threadID, excludeID string, limit int) ([]model.EmailRecord, error) {
	if threadID == "" {
		return nil, nil
	}
	var emails []model.EmailRecord
	q := s.db.Where("thread_id = ? AND id <> ?", threadID, excludeID).Order("received_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if result := q.Find(&emails); result.Error != nil {
		return nil, fmt.Errorf("failed to list thread emails: %w", result.Error)
	}
	return emails, nil
}

// GetDueFollowUps returns follow-up emails whose due time has passed.
func (s *Store) GetDueFollowUps(now time.Time) ([]model.EmailRecord, error) {
	var emails []model.EmailRecord
	result := s.db.Where("state = ? AND follow_up_at IS NOT NULL AND follow_up_at <= ?",
		model.StateFollowUp, now).Find(&emails)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list due follow-ups: %w", result.Error)
	}
	return emails, nil
}

// GetArchivableFYI returns FYI-notified emails untouched for longer than age.
func (s *Store) GetArchivableFYI(now time.Time, age time.Duration) ([]model.EmailRecord, error) {
	var emails []model.EmailRecord
	cutoff := now.Add(-age)
	result := s.db.Where("state = ? AND updated_at <= ?", model.StateFYINotified, cutoff).Find(&emails)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list archivable emails: %w", result.Error)
	}
	return emails, nil
}

// GetAutoSentSince returns AI-sent emails since the cutoff, for the morning
// summary's auto-sent section.
func (s *Store) GetAutoSentSince(cutoff time.Time) ([]model.EmailRecord, error) {
	var emails []model.EmailRecord
	result := s.db.Where("state = ? AND handled_by = ? AND sent_at >= ?",
		model.StateSent, model.HandledByAI, cutoff).Order("sent_at DESC").Find(&emails)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list auto-sent emails: %w", result.Error)
	}
	return emails, nil
}

// GetEmails lists emails with optional state/category filters, newest first.
func (s *Store) GetEmails(state, category string, limit, offset int) ([]model.EmailRecord, int64, error) {
	q := s.db.Model(&model.EmailRecord{})
	if state != "" {
		q = q.Where("state = ?", state)
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var total int64
	if result := q.Count(&total); result.Error != nil {
		return nil, 0, fmt.Errorf("failed to count emails: %w", result.Error)
	}
	var emails []model.EmailRecord
	result := q.Order("received_at DESC").Limit(limit).Offset(offset).Find(&emails)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list emails: %w", result.Error)
	}
	return emails, total, nil
}

// EmailStats are dashboard rollups.
type EmailStats struct {
	Total            int64            `json:"total"`
	ByState          map[string]int64 `json:"by_state"`
	ByCategory       map[string]int64 `json:"by_category"`
	ByPriority       map[int]int64    `json:"by_priority"`
	SpamFiltered     int64            `json:"spam_filtered"`
	AwaitingApproval int64            `json:"awaiting_approval"`
	TopSenders       []SenderCount    `json:"top_senders"`
}

// SenderCount is one row of the top-senders rollup.
type SenderCount struct {
	SenderEmail string `json:"sender_email"`
	Count       int64  `json:"count"`
}

// GetStats computes dashboard rollups over the given window.
func (s *Store) GetStats(since time.Time) (*EmailStats, error) {
	stats := &EmailStats{
		ByState:    make(map[string]int64),
		ByCategory: make(map[string]int64),
		ByPriority: make(map[int]int64),
	}
	base := s.db.Model(&model.EmailRecord{}).Where("received_at >= ?", since)

	if result := base.Session(&gorm.Session{}).Count(&stats.Total); result.Error != nil {
		return nil, fmt.Errorf("failed to count emails: %w", result.Error)
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var stateRows []bucket
	result := base.Session(&gorm.Session{}).Select("state AS `key`, COUNT(*) AS count").
		Group("state").Scan(&stateRows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to group by state: %w", result.Error)
	}
	for _, row := range stateRows {
		stats.ByState[row.Key] = row.Count
	}

	var categoryRows []bucket
	result = base.Session(&gorm.Session{}).Where("category <> ''").
		Select("category AS `key`, COUNT(*) AS count").Group("category").Scan(&categoryRows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to group by category: %w", result.Error)
	}
	for _, row := range categoryRows {
		stats.ByCategory[row.Key] = row.Count
	}

	type priorityBucket struct {
		Priority int
		Count    int64
	}
	var priorityRows []priorityBucket
	result = base.Session(&gorm.Session{}).Select("priority, COUNT(*) AS count").
		Group("priority").Scan(&priorityRows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to group by priority: %w", result.Error)
	}
	for _, row := range priorityRows {
		stats.ByPriority[row.Priority] = row.Count
	}

	stats.SpamFiltered = stats.ByState[string(model.StateSpamDetected)]
	stats.AwaitingApproval = stats.ByState[string(model.StateAwaitingApproval)]

	result = base.Session(&gorm.Session{}).
		Select("sender_email, COUNT(*) AS count").Group("sender_email").
		Order("count DESC").Limit(10).Scan(&stats.TopSenders)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to compute top senders: %w", result.Error)
	}
	return stats, nil
}
